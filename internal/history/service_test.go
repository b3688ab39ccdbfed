package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/fasttube/fasttube/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(func() { tdb.Close() })
	return NewService(tdb.DB, testutil.NopLogger())
}

func TestCreateAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Create(ctx, CreateInput{
		DownloadID: "d1",
		URL:        "https://example.com/v",
		Title:      "A Video",
		Status:     "finished",
		FilePath:   "/tmp/v.mp4",
		FileSize:   5000,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if entry.ID == 0 || entry.Title != "A Video" || entry.FileSize != 5000 {
		t.Errorf("unexpected entry: %+v", entry)
	}

	result, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.TotalCount != 1 || len(result.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", result)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateInput{
			DownloadID: fmt.Sprintf("d%d", i),
			URL:        "https://example.com/v",
			Title:      fmt.Sprintf("Video %d", i),
			Status:     "finished",
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	result, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Entries[0].Title != "Video 2" {
		t.Errorf("expected newest first, got %s", result.Entries[0].Title)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Create(ctx, CreateInput{DownloadID: "d1", URL: "u", Title: "ok", Status: "finished"})
	svc.Create(ctx, CreateInput{DownloadID: "d2", URL: "u", Title: "bad", Status: "error", Error: "boom"})

	result, err := svc.List(ctx, ListOptions{Status: "error"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.TotalCount != 1 || result.Entries[0].Error != "boom" {
		t.Errorf("status filter broken: %+v", result)
	}
}

func TestRetentionCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < maxEntries+20; i++ {
		_, err := svc.Create(ctx, CreateInput{
			DownloadID: fmt.Sprintf("d%d", i),
			URL:        "https://example.com/v",
			Title:      fmt.Sprintf("Video %d", i),
			Status:     "finished",
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	result, err := svc.List(ctx, ListOptions{PageSize: maxEntries})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.TotalCount != maxEntries {
		t.Errorf("expected history capped at %d, got %d", maxEntries, result.TotalCount)
	}
	if result.Entries[0].Title != fmt.Sprintf("Video %d", maxEntries+19) {
		t.Errorf("newest entry missing after prune: %s", result.Entries[0].Title)
	}
}

func TestDeleteAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Create(ctx, CreateInput{DownloadID: "d1", URL: "u", Title: "t", Status: "finished"})
	if err := svc.DeleteAll(ctx); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	result, err := svc.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.TotalCount != 0 {
		t.Errorf("expected empty history, got %d", result.TotalCount)
	}
}
