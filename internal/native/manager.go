package native

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoResponse is returned by RoundTrip when the helper closes the one-shot
// connection without answering.
var ErrNoResponse = errors.New("no response from native helper")

// DialFunc opens a raw connection to the helper control socket. Overridable
// for tests.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Config holds connection manager configuration.
type Config struct {
	Address     string
	DialTimeout time.Duration

	// Reconnect backoff: delay = min(BackoffBase * 2^attempt, BackoffCap).
	// After MaxReconnects consecutive failures the automatic chain stops;
	// only the next explicit send tries again.
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	MaxReconnects int

	// ResponseTimeout bounds waiting for a one-shot reply.
	ResponseTimeout time.Duration

	// Dial overrides the default TCP dialer.
	Dial DialFunc
}

// Manager maintains at most one live channel to the native helper,
// transparently reconnecting after unexpected disconnects. It is the only
// component allowed to open, replace or close the channel.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	channel   *channel
	attempts  int
	reconnect *time.Timer

	onMessage     func(*Message)
	onError       func(message string)
	onSendFailure func(correlationID, message string)
}

// NewManager creates a connection manager. Handlers are registered separately
// so the coordinator can be built on top of the manager.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Second
	}

	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "native").Logger(),
	}
}

// SetMessageHandler registers the sink for inbound helper messages, both from
// the duplex channel and from one-shot replies.
func (m *Manager) SetMessageHandler(handler func(*Message)) {
	m.onMessage = handler
}

// SetErrorHandler registers the best-effort surface for connection errors.
// Delivery failures are the handler's problem; the manager never blocks on it.
func (m *Manager) SetErrorHandler(handler func(message string)) {
	m.onError = handler
}

// SetSendFailureHandler registers the callback invoked when a correlated send
// exhausts every delivery strategy.
func (m *Manager) SetSendFailureHandler(handler func(correlationID, message string)) {
	m.onSendFailure = handler
}

// Connected reports whether a duplex channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel != nil
}

// EnsureConnection returns nil if a channel is open, otherwise attempts to
// open one. Success resets the retry counter. Failure clears the channel
// reference and surfaces a best-effort error; it never schedules a retry by
// itself, that is the disconnect handler's job.
func (m *Manager) EnsureConnection() error {
	m.mu.Lock()
	if m.channel != nil {
		m.mu.Unlock()
		return nil
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.dial(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("address", m.cfg.Address).Msg("failed to connect to native helper")
		m.reportError(fmt.Sprintf("cannot connect to native helper: %v", err))
		return err
	}

	m.mu.Lock()
	if m.channel != nil {
		// Lost the race with a concurrent connect; keep the existing channel.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.attempts = 0
	m.channel = newChannel(conn, m.handleMessage, m.handleDisconnect)
	m.mu.Unlock()

	m.logger.Info().Str("address", m.cfg.Address).Msg("connected to native helper")
	return nil
}

// Send delivers a request to the helper, trying the duplex channel first and
// falling back to a one-shot call. When both fail and the request correlates
// to a download, the registered send-failure handler is told about it.
func (m *Manager) Send(req Request, correlationID string) {
	if err := m.EnsureConnection(); err == nil {
		m.mu.Lock()
		ch := m.channel
		m.mu.Unlock()

		if ch != nil {
			if err := ch.Send(req); err == nil {
				m.logger.Debug().Str("action", req.Action).Str("requestId", req.RequestID).Msg("sent to native helper")
				return
			}
			m.logger.Warn().Str("action", req.Action).Msg("channel write failed, falling back to one-shot call")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout+m.cfg.ResponseTimeout)
	defer cancel()

	resp, err := m.RoundTrip(ctx, req)
	if err != nil {
		m.logger.Error().Err(err).Str("action", req.Action).Msg("all delivery strategies failed")
		m.reportError("cannot connect to native helper")
		if correlationID != "" && m.onSendFailure != nil {
			m.onSendFailure(correlationID, "cannot connect to native helper")
		}
		return
	}

	if resp != nil && m.onMessage != nil {
		m.onMessage(resp)
	}
}

// RoundTrip performs a one-shot request/response call: dial, write one
// request line, read one reply line, close. Used for probes and as the
// fallback delivery strategy.
func (m *Manager) RoundTrip(ctx context.Context, req Request) (*Message, error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(m.cfg.DialTimeout + m.cfg.ResponseTimeout))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	reader := bufio.NewReaderSize(conn, maxLineBytes)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("read response: %w", ErrNoResponse)
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &msg, nil
}

// Probe asks the helper to inspect a URL and report available formats.
func (m *Manager) Probe(ctx context.Context, url string) (*Message, error) {
	return m.RoundTrip(ctx, Request{Action: ActionProbe, URL: url})
}

// Close shuts down the channel and cancels any pending reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	ch := m.channel
	m.channel = nil
	// Stop the disconnect handler from scheduling a reconnect for a close we
	// asked for.
	m.attempts = m.cfg.MaxReconnects
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
}

func (m *Manager) handleMessage(msg *Message) {
	if m.onMessage != nil {
		m.onMessage(msg)
	}
}

func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	m.channel = nil
	m.mu.Unlock()

	text := "native helper disconnected"
	if err != nil {
		text = fmt.Sprintf("native helper disconnected: %v", err)
	}
	m.logger.Warn().Msg(text)
	m.reportError(text)

	m.scheduleReconnect()
}

// scheduleReconnect arms the next backoff attempt, or gives up once the
// attempt counter hits the cap.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempts >= m.cfg.MaxReconnects {
		m.logger.Error().Int("attempts", m.attempts).Msg("max reconnection attempts reached, waiting for next send")
		return
	}

	m.attempts++
	delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempts)
	m.logger.Info().Int("attempt", m.attempts).Dur("delay", delay).Msg("scheduling helper reconnect")

	m.reconnect = time.AfterFunc(delay, func() {
		if err := m.EnsureConnection(); err != nil {
			m.scheduleReconnect()
		}
	})
}

func (m *Manager) dial(ctx context.Context) (net.Conn, error) {
	if m.cfg.Dial != nil {
		return m.cfg.Dial(ctx)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", m.cfg.Address)
}

func (m *Manager) reportError(message string) {
	if m.onError != nil {
		m.onError(message)
	}
}

func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
