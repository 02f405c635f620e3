package utils

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresPoolConfig sizes the pool shared by webhook handlers and the
// background analysis workers. Zero values take the defaults below.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	out := c
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = 20
	}
	// Idle connections above the open cap are never used.
	if out.MaxIdleConns <= 0 || out.MaxIdleConns > out.MaxOpenConns {
		out.MaxIdleConns = out.MaxOpenConns
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 5 * time.Second
	}
	return out
}

// CoreTables are the tables the call engine reads or writes on every call.
var CoreTables = []string{"businesses", "phone_numbers", "calls", "minutes_usage", "tickets", "onboarding_calls"}

// OpenPostgres opens the pool and pings it. driverName is "pgx" from
// github.com/jackc/pgx/v5/stdlib. The DSN carries the password, so it is never
// logged or wrapped into errors.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := HealthCheck(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings within timeout. /healthz reports degraded when it fails.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// RequireTables fails when any table is missing, naming all of them, so a
// server started against an unmigrated database stops before answering calls.
func RequireTables(ctx context.Context, db *sql.DB, tables ...string) error {
	var missing []string
	for _, t := range tables {
		var found sql.NullString
		if err := db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, t).Scan(&found); err != nil {
			return fmt.Errorf("postgres: check table %s: %w", t, err)
		}
		if !found.Valid {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("postgres: missing tables %s (run migrations)", strings.Join(missing, ", "))
	}
	return nil
}
