package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Broadcaster fans notification events out to connected UI surfaces.
type Broadcaster interface {
	Broadcast(payload interface{}) error
}

// PreferenceSource gates notification delivery on the user's settings.
type PreferenceSource interface {
	NotificationsEnabled(ctx context.Context) bool
}

// Service fans out terminal-download notifications. Events always reach
// connected UIs; the webhook fires only when one is configured. Everything
// here is fire-and-forget, a notification must never fail a download.
type Service struct {
	hub     Broadcaster
	prefs   PreferenceSource
	webhook *Webhook
	logger  zerolog.Logger
}

// NewService creates a notification service.
func NewService(hub Broadcaster, prefs PreferenceSource, logger zerolog.Logger) *Service {
	return &Service{
		hub:    hub,
		prefs:  prefs,
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

// SetWebhook configures an optional webhook target.
func (s *Service) SetWebhook(settings WebhookSettings) {
	if settings.URL == "" {
		s.webhook = nil
		return
	}
	s.webhook = NewWebhook(settings, &http.Client{Timeout: 10 * time.Second}, s.logger)
}

// DownloadStarted notifies about a newly queued download.
func (s *Service) DownloadStarted(id, title string) {
	s.publish(Event{Type: EventDownloadStarted, DownloadID: id, Title: title})
}

// DownloadFinished notifies about a successful download.
func (s *Service) DownloadFinished(id, title string) {
	s.publish(Event{Type: EventDownloadFinished, DownloadID: id, Title: title})
}

// DownloadFailed notifies about a failed download.
func (s *Service) DownloadFailed(id, title, errMsg string) {
	s.publish(Event{Type: EventDownloadFailed, DownloadID: id, Title: title, Message: errMsg})
}

// HelperError surfaces a native helper problem. The nativeError frame always
// reaches UIs so they can show connection state; the notification event on
// top of it respects the user's preference like any other.
func (s *Service) HelperError(message string) {
	if s.hub != nil {
		if err := s.hub.Broadcast(map[string]string{
			"action":  "nativeError",
			"message": message,
		}); err != nil {
			s.logger.Debug().Err(err).Msg("nativeError broadcast failed")
		}
	}
	s.publish(Event{Type: EventHelperError, Title: "Native helper", Message: message})
}

func (s *Service) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.prefs != nil && !s.prefs.NotificationsEnabled(ctx) {
		return
	}

	event.Timestamp = time.Now().UTC()

	if s.hub != nil {
		payload := struct {
			Action string `json:"action"`
			Event
		}{Action: "notification", Event: event}
		if err := s.hub.Broadcast(payload); err != nil {
			s.logger.Debug().Err(err).Msg("notification broadcast failed")
		}
	}

	if s.webhook != nil {
		if err := s.webhook.Send(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("webhook delivery failed")
		}
	}
}
