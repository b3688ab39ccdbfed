package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fasttube/fasttube/internal/downloads"
)

// Actions accepted on the message surface, both over POST /api/v1/messages
// and over websocket frames.
const (
	ActionDownload        = "download"
	ActionGetDownloads    = "getDownloads"
	ActionDownloadControl = "downloadControl"
	ActionProbeFormats    = "probeFormats"
	ActionGetSettings     = "getSettings"
	ActionUpdateSettings  = "updateSettings"
)

const dispatchTimeout = 30 * time.Second

// messageEnvelope is the generic action frame; the payload fields live beside
// action in the same flat object.
type messageEnvelope struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

type controlPayload struct {
	ID      string `json:"id"`
	Control string `json:"control"`
	// Older UIs send the control verb under "command".
	Command string `json:"command,omitempty"`
}

type probePayload struct {
	URL string `json:"url"`
}

// DispatchAction executes one action message and returns the reply payload.
// This is the single entry point shared by the HTTP message endpoint and the
// websocket hub.
func (s *Server) DispatchAction(action string, payload json.RawMessage) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch action {
	case ActionDownload:
		var req downloads.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("invalid download request: %w", err)
		}
		id, err := s.deps.Coordinator.Enqueue(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "queued", "id": id}, nil

	case ActionGetDownloads:
		return s.deps.Coordinator.List(), nil

	case ActionDownloadControl:
		var req controlPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("invalid control request: %w", err)
		}
		control := req.Control
		if control == "" {
			control = req.Command
		}
		if req.ID == "" || control == "" {
			return nil, fmt.Errorf("control requires id and control")
		}
		s.deps.Coordinator.Control(ctx, control, req.ID)
		return map[string]bool{"ok": true}, nil

	case ActionProbeFormats:
		var req probePayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("invalid probe request: %w", err)
		}
		if req.URL == "" {
			return nil, fmt.Errorf("probe requires url")
		}
		return s.deps.Manager.Probe(ctx, req.URL)

	case ActionGetSettings:
		return s.deps.Preferences.Get(ctx)

	case ActionUpdateSettings:
		// Partial update: absent fields keep their current values.
		prefs, err := s.deps.Preferences.Get(ctx)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, prefs); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
		if err := s.deps.Preferences.Set(ctx, *prefs); err != nil {
			return nil, err
		}
		return s.deps.Preferences.Get(ctx)

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

// handleMessage accepts one action message over HTTP.
// POST /api/v1/messages
func (s *Server) handleMessage(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var envelope messageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message requires an action")
	}

	data, err := s.DispatchAction(envelope.Action, body)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"action":    "response",
			"requestId": envelope.RequestID,
			"error":     err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"action":    "response",
		"requestId": envelope.RequestID,
		"data":      data,
	})
}

func readBody(c echo.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
