// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For the Twitch capture tool, use ValidateCaptureReady.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/chat"
)

type Config struct {
	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Database; empty disables the script store.
	DBDsn string `env:"DB_DSN"`

	// Script source
	ScriptSource string `env:"SCRIPT_SOURCE" envDefault:"builtin"`
	ScriptFile   string `env:"SCRIPT_FILE"`
	ScriptName   string `env:"SCRIPT_NAME"`

	Chat     ChatConfig
	Sessions SessionConfig
	Admin    AdminConfig
	Rate     RateLimitConfig
	CORS     CORSConfig
	Twitch   TwitchConfig

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnablePprof  bool   `env:"ENABLE_PPROF"`
	PprofAddr    string `env:"PPROF_ADDR" envDefault:"localhost:6060"`
}

// ChatConfig controls a session's chat widget.
type ChatConfig struct {
	ReplaySpeed     float64       `env:"REPLAY_SPEED" envDefault:"1"`
	ReactionWindow  time.Duration `env:"REACTION_WINDOW" envDefault:"2s"`
	RejectBlank     bool          `env:"CHAT_REJECT_BLANK"`
	ViewerUsername  string        `env:"VIEWER_USERNAME" envDefault:"You"`
	ViewerFirstName string        `env:"VIEWER_FIRST_NAME" envDefault:"Sanket"`
	ViewerLastName  string        `env:"VIEWER_LAST_NAME" envDefault:"Kalekar"`
}

// SessionConfig maps the chat settings onto every new session. clock may be nil.
func (c ChatConfig) SessionConfig(clock clockwork.Clock) chat.SessionConfig {
	return chat.SessionConfig{
		Clock:          clock,
		Speed:          c.ReplaySpeed,
		ReactionWindow: c.ReactionWindow,
		Viewer: chat.Sender{
			Username:  c.ViewerUsername,
			FirstName: c.ViewerFirstName,
			LastName:  c.ViewerLastName,
		},
		RejectBlank: c.RejectBlank,
	}
}

// SessionConfig bounds the open sessions.
type SessionConfig struct {
	MaxSessions  int           `env:"MAX_SESSIONS" envDefault:"1000"`
	IdleTTL      time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	ReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"1m"`
}

// AdminConfig protects admin endpoints. Either a token or username+password enables auth.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME"`
	Password string `env:"ADMIN_PASSWORD"`
	Token    string `env:"ADMIN_TOKEN"`
}

// Enabled reports whether any admin credential is configured.
func (a AdminConfig) Enabled() bool {
	return (a.Username != "" && a.Password != "") || a.Token != ""
}

// RateLimitConfig configures the per-IP limiter on write and admin endpoints.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerIP int           `env:"RATE_LIMIT_REQUESTS_PER_IP" envDefault:"60"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// CORSConfig restricts cross-origin callers. Permissive mode allows every origin.
type CORSConfig struct {
	Env            string   `env:"ENV"`
	Permissive     *bool    `env:"CORS_PERMISSIVE"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// IsPermissive defaults to permissive outside production unless CORS_PERMISSIVE overrides it.
func (c CORSConfig) IsPermissive() bool {
	if c.Permissive != nil {
		return *c.Permissive
	}
	mode := strings.ToLower(c.Env)
	return mode == "" || mode == "dev" || mode == "development"
}

// TwitchConfig carries the chat capture credentials.
type TwitchConfig struct {
	Channel     string `env:"TWITCH_CHANNEL"`
	BotUsername string `env:"TWITCH_BOT_USERNAME"`
	OAuthToken  string `env:"TWITCH_OAUTH_TOKEN"`
}

// Load reads environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.ScriptSource) {
	case "", "builtin":
	case "file":
		if c.ScriptFile == "" {
			errs = append(errs, errors.New("SCRIPT_FILE required when SCRIPT_SOURCE=file"))
		}
	case "db":
		if c.ScriptName == "" {
			errs = append(errs, errors.New("SCRIPT_NAME required when SCRIPT_SOURCE=db"))
		}
		if c.DBDsn == "" {
			errs = append(errs, errors.New("DB_DSN required when SCRIPT_SOURCE=db"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid SCRIPT_SOURCE %q (builtin, file or db)", c.ScriptSource))
	}
	if c.Chat.ReplaySpeed <= 0 {
		errs = append(errs, fmt.Errorf("REPLAY_SPEED must be > 0, got %v", c.Chat.ReplaySpeed))
	}
	if c.Chat.ReactionWindow <= 0 {
		errs = append(errs, fmt.Errorf("REACTION_WINDOW must be > 0, got %v", c.Chat.ReactionWindow))
	}
	if c.Chat.ViewerUsername == "" {
		errs = append(errs, errors.New("VIEWER_USERNAME must not be empty"))
	}
	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("MAX_SESSIONS must be >= 0, got %d", c.Sessions.MaxSessions))
	}
	if c.Rate.RequestsPerIP <= 0 || c.Rate.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS_PER_IP and RATE_LIMIT_WINDOW must be > 0"))
	}
	return errors.Join(errs...)
}

// ValidateCaptureReady checks the fields the capture tool needs. Credentials are optional:
// without them the capture connects anonymously.
func (c *Config) ValidateCaptureReady() error {
	if c.Twitch.Channel == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL")
	}
	if (c.Twitch.BotUsername == "") != (c.Twitch.OAuthToken == "") {
		return fmt.Errorf("TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN must be set together")
	}
	return nil
}
