package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	redisadapter "github.com/dealshub/dealshub-go/internal/adapters/redis"
	"github.com/dealshub/dealshub-go/internal/bootstrap"
)

// Keep in step with the gateway's key layout in internal/bootstrap.
const (
	sessionKeyPrefix   = "dealshub:session:"
	authEventKeyPrefix = "dealshub:auth:events:"
)

// needs says which backends a command talks to.
type needs uint8

const (
	needDB needs = 1 << iota
	needRedis
)

// infra holds the connections a command asked for. Unrequested fields are nil.
type infra struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Sessions *redisadapter.SessionStore
	Bus      *redisadapter.EventBus
}

func (i *infra) close() error {
	var errs []error
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	return errors.Join(errs...)
}

// withInfra opens what n asks for, runs fn and closes everything again.
func withInfra(cmdCtx *commandContext, n needs, fn func(*infra) error) (err error) {
	conns := &infra{}
	defer func() {
		if closeErr := conns.close(); closeErr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", closeErr)
		}
	}()

	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	}
	if n&needDB != 0 {
		if conns.DB, err = bootstrap.ConnectDB(dbCfg); err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
	}
	if n&needRedis != 0 {
		if conns.Redis, err = bootstrap.ConnectRedis(dbCfg); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		conns.Sessions = redisadapter.NewSessionStore(conns.Redis, redisadapter.WithKeyPrefix(sessionKeyPrefix))
		conns.Bus = redisadapter.NewEventBus(redisadapter.EventBusOptions{
			Client: conns.Redis,
			Prefix: authEventKeyPrefix,
			Logger: cmdCtx.Logger,
		})
	}
	return fn(conns)
}

// roleNeeds is the database, plus Redis when live sessions are to be told.
func roleNeeds(notify bool) needs {
	if notify {
		return needDB | needRedis
	}
	return needDB
}
