// Package native owns the connection to the helper process that performs
// actual downloads. It speaks newline-delimited JSON over the helper's local
// control socket, either through a long-lived duplex channel or through
// one-shot request/response calls when no channel is available.
package native

import "math"

// Actions understood by the helper.
const (
	ActionProbe    = "probe"
	ActionEnqueue  = "enqueue"
	ActionCancel   = "cancel"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionOpenFile = "openFile"
)

// Request is an outbound message to the helper.
type Request struct {
	Action    string `json:"action"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	FormatID  string `json:"formatId,omitempty"`
	Format    string `json:"format,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Subs      string `json:"subs,omitempty"` // "y" or "n"
	Confirm   bool   `json:"confirm"`
	Show      bool   `json:"show"`
	RequestID string `json:"requestId,omitempty"`
}

// Message is the raw inbound shape. Helper versions disagree on field names,
// so every known alias is listed here and folded into an Update by Normalize
// before anything else sees it.
type Message struct {
	RequestID string `json:"requestId,omitempty"`
	URL       string `json:"url,omitempty"`
	Status    string `json:"status,omitempty"`

	Percent  *float64 `json:"percent,omitempty"`
	Progress *float64 `json:"progress,omitempty"`

	Speed         *float64 `json:"speed,omitempty"`
	DownloadSpeed *float64 `json:"downloadSpeed,omitempty"`

	Downloaded      *int64 `json:"downloaded,omitempty"`
	DownloadedBytes *int64 `json:"downloadedBytes,omitempty"`

	Total      *int64 `json:"total,omitempty"`
	TotalBytes *int64 `json:"totalBytes,omitempty"`
	FileSize   *int64 `json:"fileSize,omitempty"`

	ETA           *int64 `json:"eta,omitempty"`
	TimeRemaining *int64 `json:"timeRemaining,omitempty"`

	FilePath string `json:"filePath,omitempty"`
	Path     string `json:"path,omitempty"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// Probe responses.
	Qualities []int        `json:"qualities,omitempty"`
	AudioOnly bool         `json:"audio_only,omitempty"`
	Formats   []FormatInfo `json:"formats,omitempty"`
}

// FormatInfo describes one downloadable format reported by a probe.
type FormatInfo struct {
	ID          string   `json:"id"`
	Height      int      `json:"height,omitempty"`
	Ext         string   `json:"ext,omitempty"`
	FPS         float64  `json:"fps,omitempty"`
	SizeMB      *float64 `json:"sizeMB,omitempty"`
	VCodec      string   `json:"vcodec,omitempty"`
	ACodec      string   `json:"acodec,omitempty"`
	Progressive bool     `json:"progressive"`
}

// Statuses the helper reports. "progress"/"downloading", "finished"/"completed"
// and "error"/"failed" are pairwise synonymous.
const (
	StatusProgress    = "progress"
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusFailed      = "failed"
)

// Update is the canonical, alias-free form of a helper status message.
type Update struct {
	RequestID  string
	URL        string
	Status     string
	Percent    int
	Speed      float64
	Downloaded int64
	Total      int64
	ETA        int64
	FilePath   string
	FileSize   int64
	Error      string
}

// IsProgress reports whether the update describes ongoing transfer.
func (u Update) IsProgress() bool {
	return u.Status == StatusProgress || u.Status == StatusDownloading
}

// IsFinished reports whether the update describes successful completion.
func (u Update) IsFinished() bool {
	return u.Status == StatusFinished || u.Status == StatusCompleted
}

// IsFailure reports whether the update describes a failed download.
func (u Update) IsFailure() bool {
	return u.Status == StatusError || u.Status == StatusFailed
}

// Normalize folds every aliased field into its canonical slot. For each group
// the first present alias wins; absent groups default to zero values. Percent
// is rounded to the nearest integer and clamped to [0,100].
func (m *Message) Normalize() Update {
	u := Update{
		RequestID: m.RequestID,
		URL:       m.URL,
		Status:    m.Status,
	}

	u.Percent = clampPercent(firstFloat(m.Percent, m.Progress))
	u.Speed = firstFloat(m.Speed, m.DownloadSpeed)
	u.Downloaded = firstInt(m.Downloaded, m.DownloadedBytes)
	u.Total = firstInt(m.Total, m.TotalBytes, m.FileSize)
	u.ETA = firstInt(m.ETA, m.TimeRemaining)

	if m.FileSize != nil {
		u.FileSize = *m.FileSize
	}

	u.FilePath = m.FilePath
	if u.FilePath == "" {
		u.FilePath = m.Path
	}

	u.Error = m.Error
	if u.Error == "" {
		u.Error = m.Message
	}

	return u
}

func clampPercent(v float64) int {
	p := int(math.Round(v))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}
