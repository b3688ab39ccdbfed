package api

import (
	"context"

	"github.com/fasttube/fasttube/internal/downloads"
	"github.com/fasttube/fasttube/internal/history"
)

// historySinkAdapter adapts history.Service to the coordinator's HistorySink.
type historySinkAdapter struct {
	svc *history.Service
}

// NewHistorySink wraps the history service for the coordinator.
func NewHistorySink(svc *history.Service) downloads.HistorySink {
	return &historySinkAdapter{svc: svc}
}

func (a *historySinkAdapter) Append(ctx context.Context, entry downloads.HistoryEntry) error {
	_, err := a.svc.Create(ctx, history.CreateInput{
		DownloadID: entry.DownloadID,
		URL:        entry.URL,
		Title:      entry.Title,
		Status:     entry.Status,
		FilePath:   entry.FilePath,
		FileSize:   entry.FileSize,
		Error:      entry.Error,
	})
	return err
}
