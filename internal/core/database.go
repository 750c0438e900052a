// AngelaMos | 2026
// database.go

package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/flightscheduly/backend/internal/config"
	"github.com/flightscheduly/backend/internal/migrations"
)

const (
	dbConnectRetries = 5
	dbPingTimeout    = 5 * time.Second
)

// Database is the postgres pool behind the credential store.
type Database struct {
	DB *sqlx.DB
}

// NewDatabase opens the pool and waits for postgres to answer, retrying with
// backoff so the service can start alongside its database container.
func NewDatabase(
	ctx context.Context,
	cfg config.DatabaseConfig,
) (*Database, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(jitter(cfg.ConnMaxLifetime))
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := &Database{DB: db}

	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = d.Ping(ctx)
		if err == nil {
			return d, nil
		}
		if attempt == dbConnectRetries {
			break
		}

		slog.Warn("database not reachable, retrying",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			_ = db.Close() //nolint:errcheck // cleanup on cancellation
			return nil, ctx.Err()
		}
	}

	_ = db.Close() //nolint:errcheck // cleanup on connection failure
	return nil, fmt.Errorf("connect database: %w", err)
}

func (d *Database) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if err := d.DB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (d *Database) Stats() sql.DBStats {
	return d.DB.Stats()
}

// Migrate applies pending embedded migrations and returns how many ran.
func (d *Database) Migrate(ctx context.Context) (int, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, d.DB.DB, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	for _, res := range results {
		slog.Debug("migration applied",
			"version", res.Source.Version,
			"duration", res.Duration,
		)
	}
	return len(results), nil
}

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// jitter spreads connection recycling so the pool does not reconnect in bulk.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	//nolint:gosec // G404: non-security-sensitive jitter for connection pool
	return base + time.Duration(rand.Int64N(int64(base/7)+1))
}
