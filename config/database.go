package config

import "time"

// DBConfig points at the Postgres profile store (users, roles, user_roles).
// Only needed when PROFILE_SOURCE=postgres or migrations run on start.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"dealshub"`
	Password string `env:"PASSWORD" envDefault:"dealshub"`
	Name     string `env:"NAME"     envDefault:"dealshub"`
	// SSLMode is passed through as libpq's sslmode; use "require" outside local dev.
	SSLMode string `env:"SSL_MODE" envDefault:"disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"     envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME"  envDefault:"30m"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"false"`
}

// RedisConfig selects the session store topology. Direct mode uses URI,
// which may be host:port or a redis:// / rediss:// URL.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`

	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`

	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`
}
