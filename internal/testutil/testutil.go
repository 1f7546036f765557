// Package testutil provisions Postgres schemas and Redis databases for
// integration tests. Tests skip when the backing service is unreachable
// unless TEST_REQUIRE_INFRA (or the per-service variant) is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/dealshub/dealshub-go/internal/migrate"
)

// InfraConfig locates the test Postgres and Redis instances. The defaults
// match the docker-compose test profile; CI overrides them.
type InfraConfig struct {
	DBHost     string `env:"TEST_DB_HOST"     envDefault:"localhost"`
	DBPort     string `env:"TEST_DB_PORT"     envDefault:"55432"`
	DBUser     string `env:"TEST_DB_USER"     envDefault:"dealshub"`
	DBPassword string `env:"TEST_DB_PASSWORD" envDefault:"dealshub"`
	DBName     string `env:"TEST_DB_NAME"     envDefault:"dealshub"`
	DBSSLMode  string `env:"DB_SSL_MODE"      envDefault:"disable"`

	RedisAddr string `env:"TEST_REDIS_ADDR" envDefault:"localhost:56379"`
	RedisDB   int    `env:"TEST_REDIS_DB"   envDefault:"1"`

	RequireInfra bool `env:"TEST_REQUIRE_INFRA"`
	RequireDB    bool `env:"TEST_REQUIRE_DB"`
	RequireRedis bool `env:"TEST_REQUIRE_REDIS"`
}

// LoadInfraConfig reads InfraConfig from the environment.
func LoadInfraConfig(t testing.TB) InfraConfig {
	t.Helper()
	cfg, err := env.ParseAs[InfraConfig]()
	if err != nil {
		t.Fatalf("parse test infra config: %v", err)
	}
	return cfg
}

// DSN returns the Postgres URL, scoped to schema when it is non-empty.
func (c InfraConfig) DSN(schema string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.DBSSLMode)
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func unavailable(t testing.TB, required bool, what string, err error) {
	t.Helper()
	if required {
		t.Fatalf("%s not available: %v", what, err)
	}
	t.Skipf("%s not available: %v", what, err)
}

func openPinged(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips the test if the test database is not reachable.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	cfg := LoadInfraConfig(t)
	db, err := openPinged(cfg.DSN(""), 2*time.Second)
	if err != nil {
		unavailable(t, cfg.RequireInfra || cfg.RequireDB, "test database", err)
		return
	}
	_ = db.Close()
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + time.Now().Format("150405000000")
	}
	return "t_" + hex.EncodeToString(b)
}

// WithEphemeralDB runs fn against a fresh, migrated schema that is dropped
// when the test ends.
func WithEphemeralDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	cfg := LoadInfraConfig(t)

	admin, err := openPinged(cfg.DSN(""), 5*time.Second)
	if err != nil {
		unavailable(t, cfg.RequireInfra || cfg.RequireDB, "test database", err)
		return
	}
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := openPinged(cfg.DSN(schema), 5*time.Second)
	t.Cleanup(func() {
		if db != nil {
			_ = db.Close()
		}
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	if err != nil {
		t.Fatalf("open schema %s: %v", schema, err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	fn(db)
}

// SetupTestRedis returns a client on a flushed test database.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	cfg := LoadInfraConfig(t)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, cfg.RequireInfra || cfg.RequireRedis, "test redis at "+cfg.RedisAddr, err)
		return nil
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// SeedProfile inserts a user and grants roles on top of the default one.
func SeedProfile(t testing.TB, db *sql.DB, id, email, fullName string, roles ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, NULLIF($3, ''))`,
		id, email, fullName,
	); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
	for _, role := range roles {
		if _, err := db.ExecContext(ctx, `INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role); err != nil {
			t.Fatalf("seed role %s: %v", role, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) SELECT $1, id FROM roles WHERE name = $2 ON CONFLICT DO NOTHING`,
			id, role,
		); err != nil {
			t.Fatalf("grant role %s to %s: %v", role, id, err)
		}
	}
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}
