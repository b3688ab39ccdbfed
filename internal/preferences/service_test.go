package preferences

import (
	"context"
	"testing"

	"github.com/fasttube/fasttube/internal/testutil"
)

func TestGetReturnsDefaultsOnFreshDatabase(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	svc := NewService(tdb.DB)
	prefs, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	want := DefaultPreferences()
	if prefs.Format != want.Format || prefs.MaxDownloads != want.MaxDownloads {
		t.Errorf("expected defaults, got %+v", prefs)
	}
	if !prefs.Subs || !prefs.Notifications || !prefs.Autostart {
		t.Errorf("boolean defaults wrong: %+v", prefs)
	}
}

func TestSetRoundTrips(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	svc := NewService(tdb.DB)
	in := Preferences{
		Format:               "Best Audio",
		Quality:              "720",
		Subs:                 false,
		Notifications:        false,
		Sounds:               true,
		MaxDownloads:         5,
		Autostart:            false,
		DownloadInterception: true,
		FileTypeFilters:      []string{"mp4", "mkv"},
	}
	if err := svc.Set(context.Background(), in); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	out, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if out.Format != "Best Audio" || out.Quality != "720" || out.Subs || out.MaxDownloads != 5 {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if len(out.FileTypeFilters) != 2 || out.FileTypeFilters[0] != "mp4" {
		t.Errorf("file type filters lost: %+v", out.FileTypeFilters)
	}
}

func TestSetRejectsNonPositiveMaxDownloads(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	svc := NewService(tdb.DB)
	prefs := DefaultPreferences()
	prefs.MaxDownloads = 0
	if err := svc.Set(context.Background(), prefs); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDownloadDefaults(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	svc := NewService(tdb.DB)
	prefs := DefaultPreferences()
	prefs.Format = "Best Video"
	prefs.Quality = "1080"
	prefs.Subs = false
	if err := svc.Set(context.Background(), prefs); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	format, quality, subs := svc.DownloadDefaults(context.Background())
	if format != "Best Video" || quality != "1080" || subs {
		t.Errorf("unexpected defaults: %s %s %v", format, quality, subs)
	}
}

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets()
	if err != nil {
		t.Fatalf("load presets failed: %v", err)
	}
	if len(presets) == 0 {
		t.Fatal("expected at least one preset")
	}
	for _, p := range presets {
		if p.Name == "" || p.Format == "" {
			t.Errorf("preset missing fields: %+v", p)
		}
	}
}
