package bootstrap

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dealshub/dealshub-go/config"
	httpx "github.com/dealshub/dealshub-go/internal/http"
	"github.com/dealshub/dealshub-go/internal/migrate"
)

const (
	connectTimeout = 5 * time.Second

	dbMaxOpenConns    = 10
	dbConnMaxLifetime = 30 * time.Minute
	dbConnMaxIdleTime = 5 * time.Minute
)

// DatabaseConfig groups the connection settings for Postgres and Redis.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// postgresDSN renders the profile store connection string. Credentials are
// escaped by url.URL.
func postgresDSN(cfg config.DBConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// ConnectDB opens the profile store through pgx's database/sql adapter and
// verifies it answers a ping. Profile lookups are short point reads, so the
// pool defaults small.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	connCfg.RuntimeParams["application_name"] = "dealshub"

	maxOpen := cmp.Or(max(cfg.DBConfig.MaxOpenConns, 0), dbMaxOpenConns)
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(max(maxOpen/4, 1))
	db.SetConnMaxLifetime(cmp.Or(max(cfg.DBConfig.ConnMaxLifetime, 0), dbConnMaxLifetime))
	db.SetConnMaxIdleTime(dbConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping database: %w", err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("profile store connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name)
	}
	return db, nil
}

type redisMode string

const (
	redisModeDirect   redisMode = "direct"
	redisModeSentinel redisMode = "sentinel"
	redisModeCluster  redisMode = "cluster"
)

// ConnectRedis builds the session store client for the configured topology
// and verifies it answers a ping.
//
//nolint:ireturn // the concrete client depends on the configured topology.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	mode, opts, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisModeCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisModeSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis (%s): %w", mode, err), client.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", string(mode), "addrs", strings.Join(opts.Addrs, ","))
	}
	return client, nil
}

// redisOptions resolves the topology and addresses from config. A redis://
// or rediss:// URI contributes credentials and TLS settings; a bare host:port
// is used as is.
func redisOptions(cfg config.RedisConfig) (redisMode, *redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password}

	uri := strings.TrimSpace(cfg.URI)
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		parsed, err := redis.ParseURL(uri)
		if err != nil {
			return "", nil, fmt.Errorf("parse redis url: %w", err)
		}
		uri = parsed.Addr
		opts.Username = parsed.Username
		opts.TLSConfig = parsed.TLSConfig
		opts.DB = parsed.DB
		if parsed.Password != "" {
			opts.Password = parsed.Password
		}
	}

	switch {
	case cfg.UseCluster:
		opts.Addrs = nonEmpty(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && uri != "" {
			opts.Addrs = []string{uri}
		}
		if len(opts.Addrs) == 0 {
			return "", nil, errors.New("redis cluster mode needs at least one node address")
		}
		// Cluster clients have a single keyspace.
		opts.DB = 0
		return redisModeCluster, opts, nil

	case cfg.UseSentinel:
		opts.Addrs = nonEmpty(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return "", nil, errors.New("redis sentinel mode needs at least one sentinel address")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return redisModeSentinel, opts, nil

	default:
		if uri == "" {
			return "", nil, errors.New("redis direct mode needs REDIS_URI")
		}
		opts.Addrs = []string{uri}
		return redisModeDirect, opts, nil
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RunMigrations applies the profile store schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "profile store migrations applied")
	}
	return nil
}

// Readiness returns the dependency probes served on /readyz.
func Readiness(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.ReadinessCheck {
	checks := make(map[string]httpx.ReadinessCheck, 2)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
