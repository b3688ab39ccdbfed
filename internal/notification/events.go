package notification

import "time"

// EventType identifies the type of notification event
type EventType string

const (
	EventDownloadStarted  EventType = "download_started"
	EventDownloadFinished EventType = "download_finished"
	EventDownloadFailed   EventType = "download_failed"
	EventHelperError      EventType = "helper_error"
)

// Event is a user-facing notification.
type Event struct {
	Type       EventType `json:"type"`
	DownloadID string    `json:"downloadId,omitempty"`
	Title      string    `json:"title"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
