package miner

import (
	"time"

	"github.com/bardlex/ducominer/internal/config"
	"github.com/bardlex/ducominer/internal/pow"
)

// Config holds everything a Worker needs besides its collaborators
type Config struct {
	Params         config.ConnectionParams
	DifficultyHint string
	MinerName      string
	RigID          string

	ConnectBackoff time.Duration
	JobBackoff     time.Duration
	JobInterval    time.Duration
	StopTimeout    time.Duration

	SearchMultiplier uint64
	SearchBatch      uint64
}

// ConfigFrom builds a worker config from the global config. It fails with
// a configuration error when the pool account is incomplete.
func ConfigFrom(cfg *config.Config) (Config, error) {
	params, err := cfg.ConnectionParams()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Params:           params,
		DifficultyHint:   cfg.DifficultyHint,
		MinerName:        cfg.MinerName,
		RigID:            cfg.RigID,
		ConnectBackoff:   cfg.ConnectBackoff,
		JobBackoff:       cfg.JobBackoff,
		JobInterval:      cfg.JobInterval,
		StopTimeout:      cfg.StopTimeout,
		SearchMultiplier: cfg.SearchMultiplier,
		SearchBatch:      cfg.SearchBatch,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.DifficultyHint == "" {
		c.DifficultyHint = config.DefaultDifficultyHint
	}
	if c.MinerName == "" {
		c.MinerName = config.DefaultMinerName
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 10 * time.Second
	}
	if c.JobBackoff <= 0 {
		c.JobBackoff = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.SearchMultiplier == 0 {
		c.SearchMultiplier = pow.DefaultMultiplier
	}
	if c.SearchBatch == 0 {
		c.SearchBatch = pow.DefaultBatchSize
	}
	return c
}
