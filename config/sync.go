package config

import "time"

const (
	defaultProfileMaxAttempts = 5
	defaultProfileRetryBase   = 500 * time.Millisecond
	defaultDisplayNameExpr    = "user_metadata.full_name || full_name || email"
)

// SyncConfig tunes the session/identity synchronizer.
type SyncConfig struct {
	// ProfileMaxAttempts bounds the profile row existence poll after sign-up.
	// Set to 1 to trust the backend trigger and skip polling.
	ProfileMaxAttempts int `env:"SYNC_PROFILE_MAX_ATTEMPTS" envDefault:"5"`

	// ProfileRetryBase is multiplied by the attempt number between polls.
	ProfileRetryBase time.Duration `env:"SYNC_PROFILE_RETRY_BASE" envDefault:"500ms"`

	// DisplayNameExpr is a JMESPath expression evaluated against the principal
	// to build the display name of a fallback profile.
	DisplayNameExpr string `env:"SYNC_DISPLAY_NAME_EXPR" envDefault:"user_metadata.full_name || full_name || email"`

	// MaxSessions caps the number of live per-browser-session synchronizers.
	MaxSessions int `env:"SYNC_MAX_SESSIONS" envDefault:"10000"`

	// RefreshLeeway is how long before expiry access tokens are refreshed.
	RefreshLeeway time.Duration `env:"SYNC_REFRESH_LEEWAY" envDefault:"60s"`

	// SessionTTL bounds how long a persisted browser session lives without refresh.
	SessionTTL time.Duration `env:"SYNC_SESSION_TTL" envDefault:"168h"`

	// IdleTimeout is how long a synchronizer may sit unused before the janitor stops it.
	IdleTimeout time.Duration `env:"SYNC_IDLE_TIMEOUT" envDefault:"30m"`

	// ReadyTimeout bounds how long a request waits for the initial session check.
	ReadyTimeout time.Duration `env:"SYNC_READY_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to synchronizer configuration values.
func (c *SyncConfig) Sanitize() {
	if c.ProfileMaxAttempts < 1 {
		c.ProfileMaxAttempts = defaultProfileMaxAttempts
	}
	if c.ProfileRetryBase <= 0 {
		c.ProfileRetryBase = defaultProfileRetryBase
	}
	if c.DisplayNameExpr == "" {
		c.DisplayNameExpr = defaultDisplayNameExpr
	}
	if c.MaxSessions < 1 {
		c.MaxSessions = 1
	}
	if c.RefreshLeeway < 0 {
		c.RefreshLeeway = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
}
