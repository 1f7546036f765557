// Package pgxutil runs pgx-native queries over a database/sql pool opened
// with the pgx stdlib driver.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// maxTxAttempts bounds retries of transactions aborted by the server.
const maxTxAttempts = 3

// WithConn borrows a connection from db and hands fn the underlying *pgx.Conn.
// fn must not retain the connection.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("driver connection is %T, want *stdlib.Conn", driverConn)
		}
		return fn(c.Conn())
	})
}

// WithTx runs fn in a transaction on one borrowed connection. fn may run up
// to three times: serialization failures and deadlocks roll back and retry.
func WithTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(conn *pgx.Conn) error {
		var err error
		for range maxTxAttempts {
			if err = pgx.BeginTxFunc(ctx, conn, opts, fn); err == nil || !Retryable(err) || ctx.Err() != nil {
				return err
			}
		}
		return err
	})
}

// Retryable reports whether err is a transaction abort worth retrying.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
