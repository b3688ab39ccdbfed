package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/fasttube/fasttube/internal/database"
)

const boolTrue = "true"

// Service reads and writes preferences in the settings table. Missing keys
// fall back to defaults, so a fresh database behaves like a configured one.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// Get returns the full preference set, defaults filled in for missing keys.
func (s *Service) Get(ctx context.Context) (*Preferences, error) {
	prefs := DefaultPreferences()

	if val, err := s.getString(ctx, KeyFormat); err == nil && val != "" {
		prefs.Format = val
	}
	if val, err := s.getString(ctx, KeyQuality); err == nil {
		prefs.Quality = val
	}
	if val, err := s.getString(ctx, KeySubs); err == nil {
		prefs.Subs = val == boolTrue
	}
	if val, err := s.getString(ctx, KeyNotifications); err == nil {
		prefs.Notifications = val == boolTrue
	}
	if val, err := s.getString(ctx, KeySounds); err == nil {
		prefs.Sounds = val == boolTrue
	}
	if val, err := s.getString(ctx, KeyMaxDownloads); err == nil {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			prefs.MaxDownloads = n
		}
	}
	if val, err := s.getString(ctx, KeyAutostart); err == nil {
		prefs.Autostart = val == boolTrue
	}
	if val, err := s.getString(ctx, KeyDownloadInterception); err == nil {
		prefs.DownloadInterception = val == boolTrue
	}
	if val, err := s.getString(ctx, KeyFileTypeFilters); err == nil && val != "" {
		var filters []string
		if err := json.Unmarshal([]byte(val), &filters); err == nil {
			prefs.FileTypeFilters = filters
		}
	}

	return &prefs, nil
}

// Set persists the full preference set.
func (s *Service) Set(ctx context.Context, prefs Preferences) error {
	if prefs.MaxDownloads <= 0 {
		return errors.New("maxDownloads must be positive")
	}

	filters, err := json.Marshal(prefs.FileTypeFilters)
	if err != nil {
		return err
	}

	pairs := []struct{ key, value string }{
		{KeyFormat, prefs.Format},
		{KeyQuality, prefs.Quality},
		{KeySubs, strconv.FormatBool(prefs.Subs)},
		{KeyNotifications, strconv.FormatBool(prefs.Notifications)},
		{KeySounds, strconv.FormatBool(prefs.Sounds)},
		{KeyMaxDownloads, strconv.Itoa(prefs.MaxDownloads)},
		{KeyAutostart, strconv.FormatBool(prefs.Autostart)},
		{KeyDownloadInterception, strconv.FormatBool(prefs.DownloadInterception)},
		{KeyFileTypeFilters, string(filters)},
	}
	for _, p := range pairs {
		if err := s.setString(ctx, p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

// DownloadDefaults supplies the per-download defaults to the coordinator.
func (s *Service) DownloadDefaults(ctx context.Context) (format, quality string, subs bool) {
	prefs, err := s.Get(ctx)
	if err != nil {
		d := DefaultPreferences()
		return d.Format, d.Quality, d.Subs
	}
	return prefs.Format, prefs.Quality, prefs.Subs
}

// NotificationsEnabled reports whether terminal-state notifications should
// fire.
func (s *Service) NotificationsEnabled(ctx context.Context) bool {
	prefs, err := s.Get(ctx)
	if err != nil {
		return DefaultPreferences().Notifications
	}
	return prefs.Notifications
}

func (s *Service) getString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Service) setString(ctx context.Context, key, value string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return err
}
