package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// WebhookSettings contains webhook-specific configuration
type WebhookSettings struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Webhook sends events to a user-configured HTTP endpoint.
type Webhook struct {
	settings   WebhookSettings
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhook creates a webhook sender.
func NewWebhook(settings WebhookSettings, httpClient *http.Client, logger zerolog.Logger) *Webhook {
	if settings.Method == "" {
		settings.Method = http.MethodPost
	}
	return &Webhook{
		settings:   settings,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "webhook").Logger(),
	}
}

// Send posts the event as JSON. Non-2xx replies are errors.
func (w *Webhook) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, w.settings.Method, w.settings.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
