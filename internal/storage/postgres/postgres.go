package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-signal-pipeline/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// Ping validates one connection from the pool.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

// Compile-time interface check.
var _ storage.Pinger = (*Pool)(nil)

// PostgreSQL error code classes/codes used for retry classification.
const (
	pgClassConnection      = "08"    // connection exceptions
	pgErrSerialization     = "40001" // serialization_failure
	pgErrDeadlock          = "40P01" // deadlock_detected
	pgErrAdminShutdown     = "57P01" // admin_shutdown
	pgErrCrashShutdown     = "57P02" // crash_shutdown
	pgErrCannotConnectNow  = "57P03" // cannot_connect_now
	pgErrTooManyConnsTotal = "53300" // too_many_connections
)

// classify wraps err so callers can distinguish transient failures.
// Transient: network errors, connection class, serialization conflicts,
// shutdown states. Everything else is permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.Transient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.Transient(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if len(code) >= 2 && code[:2] == pgClassConnection {
			return storage.Transient(err)
		}
		switch code {
		case pgErrSerialization, pgErrDeadlock, pgErrAdminShutdown,
			pgErrCrashShutdown, pgErrCannotConnectNow, pgErrTooManyConnsTotal:
			return storage.Transient(err)
		}
		return err
	}

	if pgconn.SafeToRetry(err) {
		return storage.Transient(err)
	}

	return err
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
