// Package database coordinates the miner's optional stores: the PostgreSQL
// share ledger, live statistics in Redis and time series in InfluxDB.
// Each store is enabled by its URL; a Manager with none is valid and does
// nothing.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bardlex/ducominer/internal/config"
	"github.com/bardlex/ducominer/internal/database/influx"
	"github.com/bardlex/ducominer/internal/database/postgres"
	"github.com/bardlex/ducominer/internal/database/redis"
	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/pkg/circuit"
	"github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
	"github.com/bardlex/ducominer/pkg/retry"
)

type ledger interface {
	CreateShare(ctx context.Context, share *postgres.Share) error
}

type liveStore interface {
	RecordShare(ctx context.Context, ev stats.ShareEvent) error
	SetSnapshot(ctx context.Context, snap stats.Snapshot) error
}

type seriesStore interface {
	WriteShare(ev stats.ShareEvent)
	WriteSnapshot(snap stats.Snapshot)
}

// Manager coordinates all database operations across PostgreSQL, Redis, and InfluxDB
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	ledger ledger
	live   liveStore
	series seriesStore

	// Error handling
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
	logger         *log.Logger
}

// Config holds configuration for all database systems; nil disables one
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// ConfigFrom enables every store whose URL is set in cfg
func ConfigFrom(cfg *config.Config) *Config {
	out := &Config{}
	if cfg.PostgresURL != "" {
		out.Postgres = postgres.DefaultConfig(cfg.PostgresURL)
	}
	if cfg.RedisURL != "" {
		out.Redis = &redis.Config{
			URL:         cfg.RedisURL,
			RigID:       cfg.RigID,
			SnapshotTTL: 10 * cfg.ReportInterval,
		}
	}
	if cfg.InfluxURL != "" {
		out.Influx = &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
			RigID:  cfg.RigID,
		}
	}
	return out
}

// Enabled reports whether any store is configured
func (c *Config) Enabled() bool {
	return c != nil && (c.Postgres != nil || c.Redis != nil || c.Influx != nil)
}

// NewManager connects to every configured store. A failure closes the
// stores already opened.
func NewManager(cfg *Config, logger *log.Logger) (*Manager, error) {
	m := &Manager{logger: logger.WithComponent("database")}

	if cfg.Postgres != nil {
		pgClient, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, m.abort(errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
				"failed to connect to PostgreSQL database"))
		}
		m.Postgres = pgClient
		m.ledger = postgres.NewShareRepository(pgClient.DB())
	}

	if cfg.Redis != nil {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, m.abort(errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
				"failed to connect to Redis database"))
		}
		m.Redis = redisClient
		m.live = redisClient
	}

	if cfg.Influx != nil {
		influxClient, err := influx.NewClient(cfg.Influx)
		if err != nil {
			return nil, m.abort(errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
				"failed to connect to InfluxDB database"))
		}
		m.Influx = influxClient
		m.series = influxClient
	}

	m.circuitBreaker = circuit.New(&circuit.Config{
		Name:            "database",
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
		OnStateChange: func(name string, from, to circuit.State) {
			m.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	m.retryConfig = retry.DatabaseConfig()

	return m, nil
}

func (m *Manager) abort(err *errors.ServiceError) error {
	if closeErr := m.Close(); closeErr != nil {
		return err.WithContext("cleanup_error", closeErr.Error())
	}
	return err
}

// Close closes all database connections
func (m *Manager) Close() error {
	var errs []error

	if m.Postgres != nil {
		if err := m.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
		}
	}

	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if m.Influx != nil {
		m.Influx.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("database close errors: %v", errs)
	}

	return nil
}

// Health checks the health of all configured connections
func (m *Manager) Health(ctx context.Context) error {
	if m.Postgres != nil {
		if err := m.Postgres.Health(ctx); err != nil {
			return fmt.Errorf("PostgreSQL health check failed: %w", err)
		}
	}

	if m.Redis != nil {
		if err := m.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}

	if m.Influx != nil {
		if err := m.Influx.Health(ctx); err != nil {
			return fmt.Errorf("InfluxDB health check failed: %w", err)
		}
	}

	return nil
}

// Name identifies the manager as a sink
func (m *Manager) Name() string {
	return "database"
}

// WriteShare records a share across all configured stores. Only the
// ledger insert can fail the call; Redis and InfluxDB are best effort.
func (m *Manager) WriteShare(ctx context.Context, ev stats.ShareEvent) error {
	if m.series != nil {
		m.series.WriteShare(ev)
	}

	if m.live != nil {
		if err := m.live.RecordShare(ctx, ev); err != nil {
			m.logger.WithError(err).Warn("failed to update share counters (non-critical)")
		}
	}

	if m.ledger == nil {
		return nil
	}

	share := postgres.ShareFromEvent(ev)
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			if err := m.ledger.CreateShare(ctx, share); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "record_share",
					"failed to store share in PostgreSQL").
					WithContext("username", share.Username).
					WithContext("rig_id", share.RigID).
					WithContext("difficulty", share.Difficulty)
			}
			return nil
		})
	})
}

// WriteSnapshot publishes periodic statistics to Redis and InfluxDB
func (m *Manager) WriteSnapshot(ctx context.Context, snap stats.Snapshot) error {
	if m.series != nil {
		m.series.WriteSnapshot(snap)
	}

	if m.live == nil {
		return nil
	}

	return m.circuitBreaker.Execute(ctx, func() error {
		if err := m.live.SetSnapshot(ctx, snap); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "record_snapshot",
				"failed to store snapshot in Redis")
		}
		return nil
	})
}

// StartPeriodicTasks flushes InfluxDB writes and logs asynchronous write
// errors until ctx is done.
func (m *Manager) StartPeriodicTasks(ctx context.Context) {
	if m.Influx == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		errs := m.Influx.Errors()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Influx.Flush()
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				m.logger.WithError(err).Warn("InfluxDB write failed")
			}
		}
	}()
}
