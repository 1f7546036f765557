package config

import (
	"os"
	"strings"
)

// AppConfig is everything the gateway reads from the environment, parsed
// with caarlos0/env. Each concern lives in its own file:
//
//	auth.go           AUTH_MODE, PROFILE_SOURCE, Supabase and OIDC settings
//	sync.go           profile polling and session registry tuning
//	database.go       DB_* and REDIS_*
//	http.go           listener, cookies, CORS
//	services.go       SERVICES
//	observability.go  LOG_* and OBSERVABILITY_METRICS_*
type AppConfig struct {
	// IsDev relaxes cookie and CORS checks. NODE_ENV=development also turns it on.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig
	Sync SyncConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Services string `env:"SERVICES" envDefault:"http"`

	Observability ObservabilityConfig
}

// Sanitize normalizes every section. Call it once after parsing.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Sync.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()

	if !c.IsDev {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("NODE_ENV"))) {
		case "development", "dev":
			c.IsDev = true
		}
	}
}

// NeedsDatabase reports whether the gateway must connect to Postgres at startup.
func (c *AppConfig) NeedsDatabase() bool {
	return c.Auth.ProfileSource == ProfileSourcePostgres || c.Postgres.RunMigrationsOnStart
}

// EnabledServices parses SERVICES.
func (c *AppConfig) EnabledServices() (ServiceSet, error) {
	return ParseServices(c.Services)
}

// ServiceEnabled reports whether mode is enabled. An invalid SERVICES value
// enables nothing; startup validation reports it.
func (c *AppConfig) ServiceEnabled(mode ServiceMode) bool {
	set, err := c.EnabledServices()
	return err == nil && set.Has(mode)
}
