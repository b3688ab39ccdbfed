package downloads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fasttube/fasttube/internal/native"
)

// Config holds coordinator tunables. Grace periods control how long a
// terminal record stays visible before it is dropped from the active set.
type Config struct {
	CancelledGrace time.Duration
	FinishedGrace  time.Duration
	ErrorGrace     time.Duration

	// MaxAge is the aging-sweep threshold for terminal records.
	MaxAge time.Duration

	// IdleTimeout fails a "downloading" record whose helper went silent for
	// this long, so the terminal-state cleanup can reclaim it. Zero disables
	// the policy.
	IdleTimeout time.Duration
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		CancelledGrace: time.Second,
		FinishedGrace:  5 * time.Second,
		ErrorGrace:     10 * time.Second,
		MaxAge:         time.Hour,
		IdleTimeout:    30 * time.Minute,
	}
}

// Coordinator is the process-wide download state manager. It is constructed
// once at startup and injected into every surface that needs it; all state
// lives here, never in package globals.
type Coordinator struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	records map[string]*Record
	timers  map[string]*time.Timer

	store  Store
	sender Sender
	hub    Broadcaster

	defaults Defaults
	history  HistorySink
	notifier Notifier
	titles   TitleResolver

	now func() time.Time
}

// New creates a coordinator. Optional collaborators are attached with the
// Set* methods before any traffic flows.
func New(cfg Config, store Store, sender Sender, hub Broadcaster, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		logger:  logger.With().Str("component", "downloads").Logger(),
		records: make(map[string]*Record),
		timers:  make(map[string]*time.Timer),
		store:   store,
		sender:  sender,
		hub:     hub,
		now:     time.Now,
	}
}

// SetDefaults attaches the synced preference source.
func (c *Coordinator) SetDefaults(d Defaults) { c.defaults = d }

// SetHistory attaches the persistent download history.
func (c *Coordinator) SetHistory(h HistorySink) { c.history = h }

// SetNotifier attaches the notification surface.
func (c *Coordinator) SetNotifier(n Notifier) { c.notifier = n }

// SetTitleResolver attaches the page-title resolver used when a request
// carries no title.
func (c *Coordinator) SetTitleResolver(t TitleResolver) { c.titles = t }

// Restore loads the persisted record set from the store, typically after a
// daemon restart. Terminal records get a fresh grace timer so they still
// disappear on schedule.
func (c *Coordinator) Restore(ctx context.Context) error {
	records, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for id, rec := range records {
		c.records[id] = rec
	}
	c.mu.Unlock()

	for id, rec := range records {
		if rec.Status.Terminal() {
			c.scheduleRemoval(id, c.graceFor(rec.Status))
		}
	}

	c.logger.Info().Int("count", len(records)).Msg("restored download state")
	return nil
}

// Enqueue turns a UI download request into a new record and an outbound
// enqueue message. The returned id is handed to the caller immediately; the
// helper's acknowledgement arrives asynchronously.
func (c *Coordinator) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.URL == "" {
		return "", ErrMissingURL
	}

	title := req.Title
	if title == "" && c.titles != nil {
		if resolved, err := c.titles.Resolve(ctx, req.URL); err == nil && resolved != "" {
			title = resolved
		}
	}
	if title == "" {
		title = DefaultTitle
	}

	id := uuid.NewString()
	now := c.now()
	rec := &Record{
		ID:         id,
		URL:        req.URL,
		Title:      title,
		Status:     StatusQueued,
		Timestamp:  now,
		LastUpdate: now,
	}

	c.mu.Lock()
	c.records[id] = rec
	snapshot := rec.Clone()
	c.mu.Unlock()

	c.persist(ctx)
	c.broadcastRecord(snapshot)
	c.broadcastBadge()

	// Best effort; Send falls back to a one-shot call when this fails.
	if err := c.sender.EnsureConnection(); err != nil {
		c.logger.Debug().Err(err).Msg("no helper channel at enqueue time")
	}

	c.sender.Send(c.buildEnqueue(ctx, req, snapshot), id)

	if c.notifier != nil {
		c.notifier.DownloadStarted(id, title)
	}

	c.logger.Info().Str("id", id).Str("url", req.URL).Msg("queued download")
	return id, nil
}

// buildEnqueue merges per-request overrides over synced preferences over
// hard-coded defaults. An exact formatId clears quality: exact format
// selection and quality-tier selection are mutually exclusive.
func (c *Coordinator) buildEnqueue(ctx context.Context, req Request, rec *Record) native.Request {
	format := req.Format
	quality := req.Quality
	subs := true

	if c.defaults != nil {
		prefFormat, prefQuality, prefSubs := c.defaults.DownloadDefaults(ctx)
		if format == "" {
			format = prefFormat
		}
		if quality == "" {
			quality = prefQuality
		}
		subs = prefSubs
	}
	if format == "" {
		format = "Best Video + Audio"
	}
	if req.Subs != nil {
		subs = *req.Subs
	}
	if req.FormatID != "" {
		quality = ""
	}

	subsFlag := "n"
	if subs {
		subsFlag = "y"
	}

	return native.Request{
		Action:    native.ActionEnqueue,
		URL:       rec.URL,
		Title:     rec.Title,
		FormatID:  req.FormatID,
		Format:    format,
		Quality:   quality,
		Subs:      subsFlag,
		Confirm:   false,
		Show:      true,
		RequestID: rec.ID,
	}
}

// Control applies a user-issued action to an existing record and relays it to
// the helper. Unknown ids and unknown controls are no-ops.
func (c *Coordinator) Control(ctx context.Context, control, id string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug().Str("control", control).Str("id", id).Msg("control for unknown download")
		return
	}

	var req native.Request
	switch control {
	case ControlCancel:
		rec.Status = StatusCancelled
		req = native.Request{Action: native.ActionCancel, RequestID: id}
	case ControlPause:
		rec.Status = StatusPaused
		req = native.Request{Action: native.ActionPause, RequestID: id}
	case ControlResume:
		rec.Status = StatusDownloading
		req = native.Request{Action: native.ActionResume, RequestID: id}
	case ControlOpen:
		// No local state change; the helper opens the completed artifact.
		req = native.Request{Action: native.ActionOpenFile, RequestID: id}
	default:
		c.mu.Unlock()
		c.logger.Warn().Str("control", control).Str("id", id).Msg("unknown control action")
		return
	}
	snapshot := rec.Clone()
	c.mu.Unlock()

	if control != ControlOpen {
		c.persist(ctx)
		c.broadcastRecord(snapshot)
		c.broadcastBadge()
	}

	c.sender.Send(req, id)

	if control == ControlCancel {
		c.scheduleRemoval(id, c.cfg.CancelledGrace)
	}
}

// ApplyUpdate maps an inbound helper message to the record it describes and
// applies the status transition it implies. Messages that match no record are
// dropped; they must never create a record or touch an unrelated one.
func (c *Coordinator) ApplyUpdate(u native.Update) {
	c.mu.Lock()

	id := u.RequestID
	if id == "" {
		id = c.matchByURLLocked(u.URL)
		if id == "" {
			c.mu.Unlock()
			c.logger.Warn().Str("url", u.URL).Str("status", u.Status).Msg("helper message matches no download")
			return
		}
	}

	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug().Str("id", id).Str("status", u.Status).Msg("helper message for unknown download")
		return
	}

	rec.confirmed = true
	rec.LastUpdate = c.now()

	removal := time.Duration(-1)
	var terminal *Record

	switch {
	case u.IsProgress():
		progress := u.Percent
		if rec.Status == StatusDownloading && progress < rec.Progress {
			// Progress never moves backwards while downloading.
			progress = rec.Progress
		}
		rec.Status = StatusDownloading
		rec.Progress = progress
		rec.Speed = u.Speed
		rec.Downloaded = u.Downloaded
		rec.Total = u.Total
		rec.ETA = u.ETA

	case u.IsFinished():
		rec.Status = StatusFinished
		rec.Progress = 100
		rec.FilePath = u.FilePath
		rec.FileSize = u.FileSize
		if rec.FileSize == 0 {
			rec.FileSize = rec.Total
		}
		removal = c.cfg.FinishedGrace
		terminal = rec.Clone()

	case u.IsFailure():
		rec.Status = StatusError
		rec.Error = u.Error
		if rec.Error == "" {
			rec.Error = "Download failed"
		}
		removal = c.cfg.ErrorGrace
		terminal = rec.Clone()

	default:
		c.mu.Unlock()
		c.logger.Debug().Str("id", id).Str("status", u.Status).Msg("ignoring helper message with unknown status")
		return
	}

	snapshot := rec.Clone()
	c.mu.Unlock()

	c.persist(context.Background())
	c.broadcastRecord(snapshot)
	c.broadcastBadge()

	if terminal != nil {
		c.finishTerminal(terminal)
	}
	if removal >= 0 {
		c.scheduleRemoval(id, removal)
	}
}

// matchByURLLocked implements the fallback correlation for helpers that do
// not echo the request id: the message is attributed to a record only when
// exactly one unconfirmed record exists for the URL. Anything more ambiguous
// is dropped rather than risk corrupting an unrelated record.
func (c *Coordinator) matchByURLLocked(url string) string {
	if url == "" {
		return ""
	}

	match := ""
	for id, rec := range c.records {
		if rec.URL != url || rec.confirmed {
			continue
		}
		if match != "" {
			return ""
		}
		match = id
	}
	return match
}

// MarkSendFailed transitions a record to error after every delivery strategy
// for its request failed. Wired as the sender's send-failure handler.
func (c *Coordinator) MarkSendFailed(id, message string) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	rec.Status = StatusError
	rec.Error = message
	rec.LastUpdate = c.now()
	snapshot := rec.Clone()
	c.mu.Unlock()

	c.persist(context.Background())
	c.broadcastRecord(snapshot)
	c.broadcastBadge()
	c.finishTerminal(snapshot)
	c.scheduleRemoval(id, c.cfg.ErrorGrace)
}

// List returns a snapshot of the active record set keyed by id.
func (c *Coordinator) List() map[string]*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*Record, len(c.records))
	for id, rec := range c.records {
		out[id] = rec.Clone()
	}
	return out
}

// Get returns a snapshot of one record, or nil.
func (c *Coordinator) Get(id string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[id]; ok {
		return rec.Clone()
	}
	return nil
}

// ActiveCount returns the number of queued or downloading records.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, rec := range c.records {
		if rec.Status.Active() {
			count++
		}
	}
	return count
}

// Sweep removes terminal records older than MaxAge and fails silently stuck
// downloads per the idle-timeout policy. Idempotent and safe to run
// concurrently with message handling.
func (c *Coordinator) Sweep(ctx context.Context) error {
	now := c.now()

	c.mu.Lock()
	var removed []string
	var stuck []*Record

	for id, rec := range c.records {
		if rec.Status.Terminal() && now.Sub(rec.Timestamp) > c.cfg.MaxAge {
			delete(c.records, id)
			if t, ok := c.timers[id]; ok {
				t.Stop()
				delete(c.timers, id)
			}
			removed = append(removed, id)
			continue
		}

		if c.cfg.IdleTimeout > 0 && rec.Status == StatusDownloading && now.Sub(rec.LastUpdate) > c.cfg.IdleTimeout {
			rec.Status = StatusError
			rec.Error = "native helper stopped reporting progress"
			rec.LastUpdate = now
			stuck = append(stuck, rec.Clone())
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 && len(stuck) == 0 {
		return nil
	}

	c.persist(ctx)
	for _, id := range removed {
		c.broadcastProgress(id, nil)
	}
	for _, rec := range stuck {
		c.broadcastRecord(rec)
		c.finishTerminal(rec)
		c.scheduleRemoval(rec.ID, c.cfg.ErrorGrace)
	}
	c.broadcastBadge()

	c.logger.Info().Int("removed", len(removed)).Int("stuck", len(stuck)).Msg("maintenance sweep")
	return nil
}

// HealthCheck proactively re-opens the helper channel when downloads exist
// but no channel is open.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	hasRecords := len(c.records) > 0
	c.mu.Unlock()

	if !hasRecords || c.sender.Connected() {
		return nil
	}

	c.logger.Info().Msg("downloads present but helper disconnected, reconnecting")
	return c.sender.EnsureConnection()
}

// Close stops all pending removal timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// scheduleRemoval arms (or re-arms) the grace timer dropping a record from
// the active set.
func (c *Coordinator) scheduleRemoval(id string, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(after, func() {
		c.remove(id)
	})
}

func (c *Coordinator) remove(id string) {
	c.mu.Lock()
	if _, ok := c.records[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.records, id)
	delete(c.timers, id)
	c.mu.Unlock()

	c.persist(context.Background())
	c.broadcastProgress(id, nil)
	c.broadcastBadge()
}

func (c *Coordinator) graceFor(status Status) time.Duration {
	switch status {
	case StatusCancelled:
		return c.cfg.CancelledGrace
	case StatusFinished:
		return c.cfg.FinishedGrace
	default:
		return c.cfg.ErrorGrace
	}
}

// finishTerminal records history and fires notifications for a record that
// just reached a terminal state. Failures here never propagate.
func (c *Coordinator) finishTerminal(rec *Record) {
	if c.history != nil {
		err := c.history.Append(context.Background(), HistoryEntry{
			DownloadID: rec.ID,
			URL:        rec.URL,
			Title:      rec.Title,
			Status:     string(rec.Status),
			FilePath:   rec.FilePath,
			FileSize:   rec.FileSize,
			Error:      rec.Error,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("id", rec.ID).Msg("failed to record download history")
		}
	}

	if c.notifier == nil {
		return
	}
	switch rec.Status {
	case StatusFinished:
		c.notifier.DownloadFinished(rec.ID, rec.Title)
	case StatusError:
		c.notifier.DownloadFailed(rec.ID, rec.Title, rec.Error)
	}
}

// persist mirrors the full record set into the store. The store is
// best-effort: the in-memory map stays authoritative within a session.
func (c *Coordinator) persist(ctx context.Context) {
	c.mu.Lock()
	snapshot := make(map[string]*Record, len(c.records))
	for id, rec := range c.records {
		snapshot[id] = rec.Clone()
	}
	c.mu.Unlock()

	if err := c.store.SaveAll(ctx, snapshot); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist download state")
	}
}

func (c *Coordinator) broadcastRecord(rec *Record) {
	c.broadcastProgress(rec.ID, rec)
}

// broadcastProgress emits a progress event; data nil means the record was
// removed. Broadcast failures are swallowed, no UI may be listening.
func (c *Coordinator) broadcastProgress(id string, rec *Record) {
	if c.hub == nil {
		return
	}
	if err := c.hub.Broadcast(ProgressEvent{Action: "progress", ID: id, Data: rec}); err != nil {
		c.logger.Debug().Err(err).Str("id", id).Msg("progress broadcast failed")
	}
}

func (c *Coordinator) broadcastBadge() {
	if c.hub == nil {
		return
	}
	if err := c.hub.Broadcast(BadgeEvent{Action: "badge", Count: c.ActiveCount()}); err != nil {
		c.logger.Debug().Err(err).Msg("badge broadcast failed")
	}
}
