package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Helper    HelperConfig    `mapstructure:"helper"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Auth      AuthConfig      `mapstructure:"auth"`

	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// HelperConfig describes how to reach the native helper's control socket.
type HelperConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Reconnect backoff: delay = min(backoff_base * 2^attempt, backoff_cap),
	// attempts capped at max_reconnects. Past the cap no automatic retry
	// happens until the next send.
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffCap    time.Duration `mapstructure:"backoff_cap"`
	MaxReconnects int           `mapstructure:"max_reconnects"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DownloadsConfig holds coordinator tunables.
type DownloadsConfig struct {
	// Grace periods before a terminal record is dropped from the active set.
	CancelledGrace time.Duration `mapstructure:"cancelled_grace"`
	FinishedGrace  time.Duration `mapstructure:"finished_grace"`
	ErrorGrace     time.Duration `mapstructure:"error_grace"`

	// MaxAge is how long terminal records may linger before the aging sweep
	// purges them regardless of grace timers.
	MaxAge time.Duration `mapstructure:"max_age"`

	// IdleTimeout reclaims downloads whose helper went silent: a record stuck
	// in "downloading" with no helper message for this long is failed so the
	// normal terminal-state cleanup picks it up. Zero disables the policy.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig holds local API authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// NotificationsConfig holds the optional outbound webhook target. An empty
// URL disables webhook delivery; UI broadcasts are unaffected.
type NotificationsConfig struct {
	WebhookURL     string            `mapstructure:"webhook_url"`
	WebhookMethod  string            `mapstructure:"webhook_method"`
	WebhookHeaders map[string]string `mapstructure:"webhook_headers"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 47654,
		},
		Helper: HelperConfig{
			Host:          "127.0.0.1",
			Port:          47653,
			BackoffBase:   time.Second,
			BackoffCap:    30 * time.Second,
			MaxReconnects: 5,
			DialTimeout:   2 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/fasttube.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Downloads: DownloadsConfig{
			CancelledGrace: time.Second,
			FinishedGrace:  5 * time.Second,
			ErrorGrace:     10 * time.Second,
			MaxAge:         time.Hour,
			IdleTimeout:    30 * time.Minute,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// A local .env is convenient in development; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fasttube")
	}

	v.SetEnvPrefix("FASTTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("helper.host", d.Helper.Host)
	v.SetDefault("helper.port", d.Helper.Port)
	v.SetDefault("helper.backoff_base", d.Helper.BackoffBase)
	v.SetDefault("helper.backoff_cap", d.Helper.BackoffCap)
	v.SetDefault("helper.max_reconnects", d.Helper.MaxReconnects)
	v.SetDefault("helper.dial_timeout", d.Helper.DialTimeout)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("downloads.cancelled_grace", d.Downloads.CancelledGrace)
	v.SetDefault("downloads.finished_grace", d.Downloads.FinishedGrace)
	v.SetDefault("downloads.error_grace", d.Downloads.ErrorGrace)
	v.SetDefault("downloads.max_age", d.Downloads.MaxAge)
	v.SetDefault("downloads.idle_timeout", d.Downloads.IdleTimeout)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.webhook_method", "")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the helper control socket address string.
func (c *HelperConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
