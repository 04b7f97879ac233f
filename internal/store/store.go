// Package store persists pools and AI settings in a relational database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/yourorg/defi-yield-agent/internal/config"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrBatchFailed is returned when an upsert batch could not be written
	ErrBatchFailed = errors.New("persistence batch failed")
)

// Store wraps a database/sql pool for either SQLite or PostgreSQL
type Store struct {
	db     *sql.DB
	driver string
}

// Options controls how the database is opened
type Options struct {
	Driver string
	DSN    string

	// PingAttempts bounds the initial connectivity retries
	PingAttempts uint
}

// Open connects to the database, waits for it to answer and creates the schema
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := strings.ToLower(opts.Driver)
	if driver == "" {
		driver = config.DriverSQLite
	}
	if driver != config.DriverSQLite && driver != config.DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	if driver == config.DriverSQLite && !isMemoryDSN(opts.DSN) {
		if dir := filepath.Dir(opts.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		// one writer; an in-memory database also lives only as long as its connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, driver: driver}
	if err := s.waitReady(ctx, opts.PingAttempts); err != nil {
		db.Close()
		return nil, err
	}

	if driver == config.DriverSQLite && !isMemoryDSN(opts.DSN) {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logrus.WithFields(logrus.Fields{"driver": driver}).Info("Store opened")
	return s, nil
}

func (s *Store) waitReady(ctx context.Context, attempts uint) error {
	if attempts == 0 {
		attempts = 5
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	notify := func(err error, wait time.Duration) {
		logrus.WithError(err).WithField("backoff", wait).Warn("Database not ready, retrying")
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.db.PingContext(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(notify))
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	logrus.Info("Closing store")
	return s.db.Close()
}

// Driver returns the name of the database driver in use
func (s *Store) Driver() string {
	return s.driver
}

func schema(driver string) []string {
	if driver == config.DriverPostgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS pools (
				id           UUID PRIMARY KEY,
				chain        VARCHAR(50) NOT NULL,
				protocol     VARCHAR(100) NOT NULL,
				symbol       VARCHAR(50) NOT NULL,
				tvl_usd      DECIMAL(20,2),
				apy          DECIMAL(12,4),
				apy_base     DECIMAL(12,4),
				apy_reward   DECIMAL(12,4),
				risk_score   INTEGER,
				il_risk      VARCHAR(20),
				pool_id      VARCHAR(255) UNIQUE,
				last_updated TIMESTAMPTZ DEFAULT NOW(),
				created_at   TIMESTAMPTZ DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pools_chain ON pools(chain)`,
			`CREATE INDEX IF NOT EXISTS idx_pools_protocol ON pools(protocol)`,
			`CREATE INDEX IF NOT EXISTS idx_pools_apy ON pools(apy DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_pools_risk_score ON pools(risk_score DESC)`,
			`CREATE TABLE IF NOT EXISTS ai_settings (
				id         UUID PRIMARY KEY,
				user_id    VARCHAR(255) NOT NULL UNIQUE,
				provider   VARCHAR(50) NOT NULL DEFAULT 'openai',
				api_keys   JSONB NOT NULL,
				updated_at TIMESTAMPTZ DEFAULT NOW(),
				created_at TIMESTAMPTZ DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS user_sessions (
				session_id       UUID PRIMARY KEY,
				sentient_user_id VARCHAR(255),
				preferences      JSONB,
				created_at       TIMESTAMPTZ DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS agent_responses (
				id                 UUID PRIMARY KEY,
				session_id         UUID,
				query              TEXT,
				response           JSONB,
				intermediate_steps JSONB,
				created_at         TIMESTAMPTZ DEFAULT NOW()
			)`,
		}
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS pools (
			id           TEXT PRIMARY KEY,
			chain        TEXT NOT NULL,
			protocol     TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			tvl_usd      NUMERIC,
			apy          NUMERIC,
			apy_base     NUMERIC,
			apy_reward   NUMERIC,
			risk_score   INTEGER,
			il_risk      TEXT,
			pool_id      TEXT UNIQUE,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pools_chain ON pools(chain)`,
		`CREATE INDEX IF NOT EXISTS idx_pools_protocol ON pools(protocol)`,
		`CREATE INDEX IF NOT EXISTS idx_pools_apy ON pools(apy DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_pools_risk_score ON pools(risk_score DESC)`,
		`CREATE TABLE IF NOT EXISTS ai_settings (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL UNIQUE,
			provider   TEXT NOT NULL DEFAULT 'openai',
			api_keys   TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_sessions (
			session_id       TEXT PRIMARY KEY,
			sentient_user_id TEXT,
			preferences      TEXT,
			created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agent_responses (
			id                 TEXT PRIMARY KEY,
			session_id         TEXT,
			query              TEXT,
			response           TEXT,
			intermediate_steps TEXT,
			created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}
