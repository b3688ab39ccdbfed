// Package downloads implements the download coordinator: it tracks in-flight
// download records, correlates asynchronous helper updates back to them,
// mirrors every change into the store and broadcasts it to UI surfaces.
package downloads

import (
	"context"
	"errors"
	"time"

	"github.com/fasttube/fasttube/internal/native"
)

var (
	ErrMissingURL = errors.New("download request has no url")
)

// Status is the lifecycle state of a download record.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError || s == StatusCancelled
}

// Active reports whether the record counts toward the activity badge.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusDownloading
}

// DefaultTitle is used when a request carries no title and none can be
// resolved from the page.
const DefaultTitle = "Unknown"

// Record is one user-initiated download. Exactly one record exists per id.
type Record struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"` // 0-100
	Speed      float64   `json:"speed"`
	Downloaded int64     `json:"downloaded"`
	Total      int64     `json:"total"`
	ETA        int64     `json:"eta"`
	Error      string    `json:"error,omitempty"`
	FilePath   string    `json:"filePath,omitempty"`
	FileSize   int64     `json:"fileSize,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	LastUpdate time.Time `json:"lastUpdate"`

	// confirmed is set once the helper has echoed this record's id, which
	// excludes the record from by-URL fallback matching. Session-local.
	confirmed bool
}

// Clone returns a copy safe to hand to broadcasts and API responses.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Request is a UI-originated download request.
type Request struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	FormatID string `json:"formatId,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Subs     *bool  `json:"subs,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

// Control actions a UI can apply to an existing record.
const (
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlCancel = "cancel"
	ControlOpen   = "open"
)

// ProgressEvent is broadcast after every applied transition; Data is nil when
// the record was removed.
type ProgressEvent struct {
	Action string  `json:"action"`
	ID     string  `json:"id"`
	Data   *Record `json:"data"`
}

// BadgeEvent carries the number of active (queued or downloading) records.
type BadgeEvent struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// Sender delivers requests to the native helper. Implemented by
// native.Manager.
type Sender interface {
	Send(req native.Request, correlationID string)
	EnsureConnection() error
	Connected() bool
}

// Store mirrors the active record set. It is a best-effort mirror: failures
// are logged, never propagated.
type Store interface {
	SaveAll(ctx context.Context, records map[string]*Record) error
	Load(ctx context.Context) (map[string]*Record, error)
}

// Broadcaster fans events out to connected UI surfaces.
type Broadcaster interface {
	Broadcast(payload interface{}) error
}

// Defaults supplies the user's synced download preferences.
type Defaults interface {
	DownloadDefaults(ctx context.Context) (format, quality string, subs bool)
}

// HistoryEntry records a download that reached a terminal state.
type HistoryEntry struct {
	DownloadID string
	URL        string
	Title      string
	Status     string
	FilePath   string
	FileSize   int64
	Error      string
}

// HistorySink appends terminal downloads to the persistent history.
type HistorySink interface {
	Append(ctx context.Context, entry HistoryEntry) error
}

// Notifier shows fire-and-forget OS/UI notifications.
type Notifier interface {
	DownloadStarted(id, title string)
	DownloadFinished(id, title string)
	DownloadFailed(id, title, errMsg string)
}

// TitleResolver fills in a missing title from the page itself.
type TitleResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}
