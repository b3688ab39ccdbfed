package history

import "time"

// Entry is one completed, failed or cancelled download as recorded for the
// history view.
type Entry struct {
	ID         int64     `json:"id"`
	DownloadID string    `json:"downloadId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	FilePath   string    `json:"filePath,omitempty"`
	FileSize   int64     `json:"fileSize,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateInput is the data captured when a download reaches a terminal state.
type CreateInput struct {
	DownloadID string
	URL        string
	Title      string
	Status     string
	FilePath   string
	FileSize   int64
	Error      string
}

// ListOptions controls history listing.
type ListOptions struct {
	Status   string
	Page     int
	PageSize int
}

// ListResponse is a paginated history page.
type ListResponse struct {
	Entries    []*Entry `json:"entries"`
	TotalCount int64    `json:"totalCount"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
}
