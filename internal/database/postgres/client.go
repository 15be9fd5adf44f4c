// Package postgres stores the miner's block and submission history in
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver for database/sql
	_ "github.com/lib/pq"
)

// Client wraps PostgreSQL database operations
type Client struct {
	db *sql.DB
}

// Config holds PostgreSQL connection configuration
type Config struct {
	// DSN is a libpq connection string or postgres:// URL
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// NewClient opens the database, pings it and creates the history tables
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &Client{db: db}
	if err := c.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sql.DB for advanced operations
func (c *Client) DB() *sql.DB {
	return c.db
}

const schema = `
CREATE TABLE IF NOT EXISTS mined_blocks (
	id            BIGSERIAL PRIMARY KEY,
	miner_address TEXT        NOT NULL,
	block         BIGINT      NOT NULL,
	mode          TEXT        NOT NULL,
	source        TEXT        NOT NULL,
	accepted      INTEGER     NOT NULL DEFAULT 0,
	rejected      INTEGER     NOT NULL DEFAULT 0,
	failed        INTEGER     NOT NULL DEFAULT 0,
	hashes        BIGINT      NOT NULL DEFAULT 0,
	hashrate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	elapsed_ms    BIGINT      NOT NULL DEFAULT 0,
	won           BOOLEAN     NOT NULL DEFAULT FALSE,
	closed_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (miner_address, block)
);

CREATE TABLE IF NOT EXISTS submissions (
	id            BIGSERIAL PRIMARY KEY,
	miner_address TEXT        NOT NULL,
	block         BIGINT      NOT NULL,
	mode          TEXT        NOT NULL,
	base          TEXT        NOT NULL,
	hash          TEXT        NOT NULL,
	diff          TEXT        NOT NULL DEFAULT '',
	code          INTEGER     NOT NULL,
	status        TEXT        NOT NULL,
	reason        TEXT        NOT NULL DEFAULT '',
	peer          TEXT        NOT NULL DEFAULT '',
	submitted_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS submissions_block_idx ON submissions (miner_address, block);
`

// EnsureSchema creates the history tables when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
