package downloads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fasttube/fasttube/internal/native"
	"github.com/fasttube/fasttube/internal/testutil"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []native.Request
	connected bool
	ensureErr error
	ensures   int
}

func (f *fakeSender) Send(req native.Request, correlationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
}

func (f *fakeSender) EnsureConnection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	return f.ensureErr
}

func (f *fakeSender) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) lastSent() (native.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return native.Request{}, false
	}
	return f.sent[len(f.sent)-1], true
}

type memStore struct {
	mu    sync.Mutex
	saved map[string]*Record
	saves int
}

func (s *memStore) SaveAll(ctx context.Context, records map[string]*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = records
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) (map[string]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

type memHub struct {
	mu     sync.Mutex
	events []interface{}
}

func (h *memHub) Broadcast(payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, payload)
	return nil
}

func (h *memHub) progressEvents() []ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ProgressEvent
	for _, ev := range h.events {
		if p, ok := ev.(ProgressEvent); ok {
			out = append(out, p)
		}
	}
	return out
}

type memHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *memHistory) Append(ctx context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

type fixedDefaults struct {
	format  string
	quality string
	subs    bool
}

func (d fixedDefaults) DownloadDefaults(ctx context.Context) (string, string, bool) {
	return d.format, d.quality, d.subs
}

func testConfig() Config {
	return Config{
		CancelledGrace: 20 * time.Millisecond,
		FinishedGrace:  20 * time.Millisecond,
		ErrorGrace:     20 * time.Millisecond,
		MaxAge:         time.Hour,
		IdleTimeout:    30 * time.Minute,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeSender, *memStore, *memHub) {
	t.Helper()

	sender := &fakeSender{connected: true}
	store := &memStore{}
	hub := &memHub{}
	c := New(testConfig(), store, sender, hub, testutil.NopLogger())
	t.Cleanup(c.Close)
	return c, sender, store, hub
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEnqueueRejectsMissingURL(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	if _, err := c.Enqueue(context.Background(), Request{}); err != ErrMissingURL {
		t.Fatalf("expected ErrMissingURL, got %v", err)
	}
}

func TestEnqueueCreatesQueuedRecord(t *testing.T) {
	c, sender, store, hub := newTestCoordinator(t)

	id, err := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	rec := c.Get(id)
	if rec == nil {
		t.Fatal("record not found after enqueue")
	}
	if rec.Status != StatusQueued {
		t.Errorf("expected queued status, got %s", rec.Status)
	}
	if rec.Title != DefaultTitle {
		t.Errorf("expected default title, got %q", rec.Title)
	}

	req, ok := sender.lastSent()
	if !ok {
		t.Fatal("no request sent to helper")
	}
	if req.Action != native.ActionEnqueue {
		t.Errorf("expected enqueue action, got %s", req.Action)
	}
	if req.RequestID != id {
		t.Errorf("expected requestId %s, got %s", id, req.RequestID)
	}

	store.mu.Lock()
	_, persisted := store.saved[id]
	store.mu.Unlock()
	if !persisted {
		t.Error("record not persisted")
	}

	events := hub.progressEvents()
	if len(events) == 0 || events[0].ID != id {
		t.Error("no progress broadcast for new record")
	}
}

func TestEnqueueMergesPreferences(t *testing.T) {
	c, sender, _, _ := newTestCoordinator(t)
	c.SetDefaults(fixedDefaults{format: "Best Audio", quality: "720", subs: false})

	if _, err := c.Enqueue(context.Background(), Request{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	req, _ := sender.lastSent()
	if req.Format != "Best Audio" || req.Quality != "720" || req.Subs != "n" {
		t.Errorf("preferences not applied: %+v", req)
	}
}

func TestEnqueueExactFormatClearsQuality(t *testing.T) {
	c, sender, _, _ := newTestCoordinator(t)
	c.SetDefaults(fixedDefaults{format: "Best Video + Audio", quality: "1080", subs: true})

	if _, err := c.Enqueue(context.Background(), Request{URL: "https://example.com/a", FormatID: "137"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	req, _ := sender.lastSent()
	if req.FormatID != "137" {
		t.Errorf("expected formatId 137, got %q", req.FormatID)
	}
	if req.Quality != "" {
		t.Errorf("exact format must clear quality, got %q", req.Quality)
	}
}

func TestApplyUpdateProgressIsMonotonic(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})

	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 50})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 30})

	rec := c.Get(id)
	if rec.Progress != 50 {
		t.Errorf("progress moved backwards: got %d, want 50", rec.Progress)
	}
	if rec.Status != StatusDownloading {
		t.Errorf("expected downloading status, got %s", rec.Status)
	}
}

func TestApplyUpdateFinishedForcesFullProgress(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	history := &memHistory{}
	c.SetHistory(history)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})

	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 40, Total: 5000})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusFinished, FilePath: "/tmp/v.mp4"})

	rec := c.Get(id)
	if rec == nil {
		t.Fatal("record removed before grace expired")
	}
	if rec.Progress != 100 {
		t.Errorf("finished must force progress 100, got %d", rec.Progress)
	}
	if rec.FileSize != 5000 {
		t.Errorf("fileSize must fall back to total, got %d", rec.FileSize)
	}
	if rec.FilePath != "/tmp/v.mp4" {
		t.Errorf("unexpected filePath %q", rec.FilePath)
	}

	history.mu.Lock()
	entries := len(history.entries)
	history.mu.Unlock()
	if entries != 1 {
		t.Errorf("expected one history entry, got %d", entries)
	}

	waitFor(t, func() bool { return c.Get(id) == nil }, "finished record not removed after grace")
}

func TestApplyUpdateErrorDefaultsMessage(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusFailed})

	rec := c.Get(id)
	if rec.Status != StatusError {
		t.Fatalf("expected error status, got %s", rec.Status)
	}
	if rec.Error != "Download failed" {
		t.Errorf("expected default error message, got %q", rec.Error)
	}
}

func TestApplyUpdateFallsBackToURLMatch(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{URL: "https://example.com/v", Status: native.StatusProgress, Percent: 25})

	rec := c.Get(id)
	if rec.Status != StatusDownloading || rec.Progress != 25 {
		t.Errorf("url fallback did not apply update: %+v", rec)
	}
}

func TestApplyUpdateAmbiguousURLIsDropped(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	a, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	b, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})

	c.ApplyUpdate(native.Update{URL: "https://example.com/v", Status: native.StatusProgress, Percent: 25})

	if c.Get(a).Status != StatusQueued || c.Get(b).Status != StatusQueued {
		t.Error("ambiguous url update must not touch any record")
	}
}

func TestApplyUpdateConfirmedRecordExcludedFromURLMatch(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	a, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{RequestID: a, Status: native.StatusProgress, Percent: 10})

	b, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{URL: "https://example.com/v", Status: native.StatusProgress, Percent: 60})

	if got := c.Get(b).Progress; got != 60 {
		t.Errorf("unconfirmed record should receive url-matched update, got %d", got)
	}
	if got := c.Get(a).Progress; got != 10 {
		t.Errorf("confirmed record must be untouched, got %d", got)
	}
}

func TestApplyUpdateUnknownIDIsNoop(t *testing.T) {
	c, _, store, _ := newTestCoordinator(t)

	store.mu.Lock()
	savesBefore := store.saves
	store.mu.Unlock()

	c.ApplyUpdate(native.Update{RequestID: "999", Status: native.StatusProgress, Percent: 50})

	if len(c.List()) != 0 {
		t.Error("unknown id must not create a record")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.saves != savesBefore {
		t.Error("unknown id must not trigger a persist")
	}
}

func TestControlCancelRemovesAfterGrace(t *testing.T) {
	c, sender, _, hub := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.Control(context.Background(), ControlCancel, id)

	rec := c.Get(id)
	if rec == nil || rec.Status != StatusCancelled {
		t.Fatalf("expected cancelled record, got %+v", rec)
	}

	req, _ := sender.lastSent()
	if req.Action != native.ActionCancel || req.RequestID != id {
		t.Errorf("cancel not relayed to helper: %+v", req)
	}

	waitFor(t, func() bool { return c.Get(id) == nil }, "cancelled record not removed after grace")

	var sawRemoval bool
	for _, ev := range hub.progressEvents() {
		if ev.ID == id && ev.Data == nil {
			sawRemoval = true
		}
	}
	if !sawRemoval {
		t.Error("removal was not broadcast")
	}
}

func TestControlUnknownIDIsNoop(t *testing.T) {
	c, sender, _, _ := newTestCoordinator(t)

	c.Control(context.Background(), ControlCancel, "999")

	if _, ok := sender.lastSent(); ok {
		t.Error("control for unknown id must not reach the helper")
	}
}

func TestControlPauseResume(t *testing.T) {
	c, sender, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})

	c.Control(context.Background(), ControlPause, id)
	if c.Get(id).Status != StatusPaused {
		t.Error("pause did not update status")
	}

	c.Control(context.Background(), ControlResume, id)
	if c.Get(id).Status != StatusDownloading {
		t.Error("resume did not update status")
	}

	req, _ := sender.lastSent()
	if req.Action != native.ActionResume {
		t.Errorf("expected resume relay, got %s", req.Action)
	}
}

func TestMarkSendFailed(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.MarkSendFailed(id, "cannot connect to native helper")

	rec := c.Get(id)
	if rec.Status != StatusError {
		t.Fatalf("expected error status, got %s", rec.Status)
	}
	if rec.Error != "cannot connect to native helper" {
		t.Errorf("unexpected error message %q", rec.Error)
	}

	waitFor(t, func() bool { return c.Get(id) == nil }, "failed record not removed after grace")
}

func TestSweepPurgesAgedTerminalRecords(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 50})

	other, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/w"})
	c.ApplyUpdate(native.Update{RequestID: other, Status: native.StatusFinished})

	// Move the clock past MaxAge.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if c.Get(other) != nil {
		t.Error("aged terminal record should be purged")
	}
}

func TestSweepFailsStuckDownloads(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 50})

	c.now = func() time.Time { return time.Now().Add(45 * time.Minute) }

	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	rec := c.Get(id)
	if rec == nil {
		t.Fatal("stuck record removed instead of failed")
	}
	if rec.Status != StatusError {
		t.Errorf("expected stuck download to be failed, got %s", rec.Status)
	}
}

func TestSweepLeavesLiveDownloadsAlone(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	id, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"})
	c.ApplyUpdate(native.Update{RequestID: id, Status: native.StatusProgress, Percent: 50})

	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	if got := c.Get(id).Status; got != StatusDownloading {
		t.Errorf("live download must survive a sweep, got %s", got)
	}
}

func TestHealthCheckReconnectsWhenRecordsExist(t *testing.T) {
	c, sender, _, _ := newTestCoordinator(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	sender.mu.Lock()
	before := sender.ensures
	sender.mu.Unlock()
	if before != 0 {
		t.Error("health check must not dial without records")
	}

	if _, err := c.Enqueue(context.Background(), Request{URL: "https://example.com/v"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	sender.mu.Lock()
	sender.connected = false
	afterEnqueue := sender.ensures
	sender.mu.Unlock()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.ensures != afterEnqueue+1 {
		t.Error("health check should reconnect when records exist and helper is down")
	}
}

func TestBadgeCountsActiveRecords(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)

	a, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/a"})
	b, _ := c.Enqueue(context.Background(), Request{URL: "https://example.com/b"})
	c.ApplyUpdate(native.Update{RequestID: a, Status: native.StatusProgress, Percent: 10})
	c.ApplyUpdate(native.Update{RequestID: b, Status: native.StatusFinished})

	if got := c.ActiveCount(); got != 1 {
		t.Errorf("expected 1 active record, got %d", got)
	}
}

func TestRestoreReschedulesTerminalRemovals(t *testing.T) {
	sender := &fakeSender{connected: true}
	store := &memStore{saved: map[string]*Record{
		"a": {ID: "a", URL: "https://example.com/a", Status: StatusFinished, Progress: 100, Timestamp: time.Now(), LastUpdate: time.Now()},
		"b": {ID: "b", URL: "https://example.com/b", Status: StatusDownloading, Progress: 40, Timestamp: time.Now(), LastUpdate: time.Now()},
	}}
	c := New(testConfig(), store, sender, &memHub{}, testutil.NopLogger())
	t.Cleanup(c.Close)

	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if len(c.List()) != 2 {
		t.Fatalf("expected 2 restored records, got %d", len(c.List()))
	}

	waitFor(t, func() bool { return c.Get("a") == nil }, "restored terminal record not removed after grace")

	if c.Get("b") == nil {
		t.Error("restored active record must survive")
	}
}
