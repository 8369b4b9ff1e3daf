// Package postgres provides the PostgreSQL share ledger for the DUCO miner.
// Every submitted share is appended for auditing; the ledger is never read
// back to rebuild statistics.
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
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DefaultConfig returns pool limits suited to a single miner
func DefaultConfig(url string) *Config {
	return &Config{
		URL:          url,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		MaxLifetime:  30 * time.Minute,
	}
}

// NewClient creates a new PostgreSQL client and ensures the ledger table
// exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &Client{db: db}
	if err := c.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

// Migrate creates the ledger schema if it is missing
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
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

var schema = []string{
	`CREATE TABLE IF NOT EXISTS duco_shares (
		id           BIGSERIAL PRIMARY KEY,
		username     TEXT             NOT NULL,
		miner_name   TEXT             NOT NULL,
		rig_id       TEXT             NOT NULL DEFAULT '',
		seed         TEXT             NOT NULL,
		difficulty   BIGINT           NOT NULL,
		nonce        NUMERIC(20, 0)   NOT NULL,
		hashrate     DOUBLE PRECISION NOT NULL,
		elapsed_ms   BIGINT           NOT NULL,
		status       TEXT             NOT NULL,
		accepted     BOOLEAN          NOT NULL,
		reward       DOUBLE PRECISION NOT NULL DEFAULT 0,
		response     TEXT             NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS duco_shares_rig_submitted_idx
		ON duco_shares (rig_id, submitted_at DESC)`,
}
