// Package redis keeps a live copy of the miner statistics in Redis for
// dashboards, plus per-rig share counters. Nothing is read back on start.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bardlex/ducominer/internal/stats"
)

const keyPrefix = "ducominer"

// Client wraps Redis operations for the miner
type Client struct {
	rdb *redis.Client
	rig string
	ttl time.Duration
}

// Config holds Redis connection configuration
type Config struct {
	URL         string
	RigID       string
	SnapshotTTL time.Duration
	PoolSize    int
	MaxRetries  int
}

// NewClient creates a new Redis client from a redis:// URL
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Client{rdb: rdb, rig: rigOrDefault(cfg.RigID), ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Snapshots

// SetSnapshot stores snap as a hash that expires after the snapshot TTL,
// so a dead miner disappears from dashboards.
func (c *Client) SetSnapshot(ctx context.Context, snap stats.Snapshot) error {
	key := SnapshotKey(c.rig)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, SnapshotFields(snap))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

// Counters

// RecordShare bumps the per-status share counter and the earned total
func (c *Client) RecordShare(ctx context.Context, ev stats.ShareEvent) error {
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, CounterKey(c.rig, ev.Status))
		if ev.Accepted && ev.Reward > 0 {
			pipe.IncrByFloat(ctx, CounterKey(c.rig, "earned"), ev.Reward)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record share: %w", err)
	}
	return nil
}

// Keys and encoding

// SnapshotKey returns the hash key holding a rig's live statistics
func SnapshotKey(rig string) string {
	return keyPrefix + ":stats:" + rigOrDefault(rig)
}

// CounterKey returns the key of a per-rig counter
func CounterKey(rig, name string) string {
	return keyPrefix + ":shares:" + rigOrDefault(rig) + ":" + strings.ToLower(name)
}

// SnapshotFields flattens snap into hash fields
func SnapshotFields(snap stats.Snapshot) map[string]any {
	return map[string]any{
		"shares_accepted":    strconv.FormatUint(snap.SharesAccepted, 10),
		"shares_rejected":    strconv.FormatUint(snap.SharesRejected, 10),
		"earned_today":       strconv.FormatFloat(snap.EarnedToday, 'f', -1, 64),
		"earned_total":       strconv.FormatFloat(snap.EarnedTotal, 'f', -1, 64),
		"current_hashrate":   strconv.FormatFloat(snap.CurrentHashrate, 'f', 2, 64),
		"avg_hashrate":       strconv.FormatFloat(snap.AvgHashrate, 'f', 2, 64),
		"current_difficulty": strconv.FormatUint(snap.CurrentDifficulty, 10),
		"uptime_seconds":     strconv.FormatUint(snap.UptimeSeconds, 10),
		"total_hashes":       strconv.FormatUint(snap.TotalHashes, 10),
		"state":              snap.State,
		"last_message":       snap.LastMessage,
		"updated_at":         time.Now().UTC().Format(time.RFC3339),
	}
}

func rigOrDefault(rig string) string {
	if rig == "" {
		return "default"
	}
	return rig
}
