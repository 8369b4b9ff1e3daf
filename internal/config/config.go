// Package config provides configuration management for the DUCO miner.
// It loads settings from environment variables with sensible defaults and
// can overlay an optional TOML file underneath the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/bardlex/ducominer/pkg/errors"
)

// Defaults for the DUCO-S1 pool
const (
	DefaultHost           = "server.duinocoin.com"
	DefaultPort           = 2811
	DefaultDifficultyHint = "LOW"
	DefaultMinerName      = "ducominer"
)

// Config holds the global configuration for the miner
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string

	// Pool account
	PoolHost       string
	PoolPort       int
	Username       string
	MiningKey      string
	DifficultyHint string
	MinerName      string
	RigID          string

	// Network timeouts and retry policy
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ConnectBackoff time.Duration
	JobBackoff     time.Duration
	JobInterval    time.Duration
	StopTimeout    time.Duration
	MaxMessageSize int

	// Proof search
	SearchMultiplier uint64
	SearchBatch      uint64

	// Reporting and control
	ReportInterval time.Duration
	APIListenAddr  string

	// Optional sinks, empty disables
	KafkaBrokers []string
	KafkaTopic   string
	ZMQPubAddr   string
	PostgresURL  string
	RedisURL     string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Logging
	LogLevel  string
	LogFormat string
}

// ConnectionParams is the validated, read-only view of the pool account
// the mining worker connects with.
type ConnectionParams struct {
	Host      string
	Port      int
	Username  string
	MiningKey string
}

// Address returns host:port suitable for net.Dial
func (p ConnectionParams) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Validate checks the preconditions the worker relies on
func (p ConnectionParams) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return errors.New(errors.ErrorTypeConfiguration, "validate_params", "pool host is empty")
	}
	if strings.TrimSpace(p.Username) == "" {
		return errors.New(errors.ErrorTypeConfiguration, "validate_params", "username is empty")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.New(errors.ErrorTypeConfiguration, "validate_params", "pool port must be between 1 and 65535").
			WithContext("port", p.Port)
	}
	return nil
}

// ConnectionParams returns the validated connection snapshot
func (c *Config) ConnectionParams() (ConnectionParams, error) {
	p := ConnectionParams{
		Host:      c.PoolHost,
		Port:      c.PoolPort,
		Username:  c.Username,
		MiningKey: c.MiningKey,
	}
	if err := p.Validate(); err != nil {
		return ConnectionParams{}, err
	}
	return p, nil
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads defaults, then the TOML file at path, then environment
// overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := defaults()
	if err := fc.apply(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServiceName: "ducominer",
		Version:     "dev",
		Environment: "development",

		PoolHost:       DefaultHost,
		PoolPort:       DefaultPort,
		DifficultyHint: DefaultDifficultyHint,
		MinerName:      DefaultMinerName,

		DialTimeout:    10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		ConnectBackoff: 10 * time.Second,
		JobBackoff:     5 * time.Second,
		JobInterval:    100 * time.Millisecond,
		StopTimeout:    5 * time.Second,
		MaxMessageSize: 4096,

		SearchMultiplier: 100,
		SearchBatch:      1000,

		ReportInterval: 30 * time.Second,

		KafkaTopic:   "duco.shares",
		InfluxOrg:    "ducominer",
		InfluxBucket: "mining",

		LogLevel:  "info",
		LogFormat: "json",
	}
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.Version = getEnv("VERSION", cfg.Version)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.PoolHost = getEnv("DUCO_HOST", cfg.PoolHost)
	cfg.PoolPort = getEnvInt("DUCO_PORT", cfg.PoolPort)
	cfg.Username = getEnv("DUCO_USERNAME", cfg.Username)
	cfg.MiningKey = getEnv("DUCO_MINING_KEY", cfg.MiningKey)
	cfg.DifficultyHint = getEnv("DUCO_DIFFICULTY", cfg.DifficultyHint)
	cfg.MinerName = getEnv("DUCO_MINER_NAME", cfg.MinerName)
	cfg.RigID = getEnv("DUCO_RIG_ID", cfg.RigID)

	cfg.DialTimeout = getEnvDuration("DIAL_TIMEOUT", cfg.DialTimeout)
	cfg.ReadTimeout = getEnvDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ConnectBackoff = getEnvDuration("CONNECT_BACKOFF", cfg.ConnectBackoff)
	cfg.JobBackoff = getEnvDuration("JOB_BACKOFF", cfg.JobBackoff)
	cfg.JobInterval = getEnvDuration("JOB_INTERVAL", cfg.JobInterval)
	cfg.StopTimeout = getEnvDuration("STOP_TIMEOUT", cfg.StopTimeout)
	cfg.MaxMessageSize = getEnvInt("MAX_MESSAGE_SIZE", cfg.MaxMessageSize)

	cfg.SearchMultiplier = getEnvUint("SEARCH_MULTIPLIER", cfg.SearchMultiplier)
	cfg.SearchBatch = getEnvUint("SEARCH_BATCH", cfg.SearchBatch)

	cfg.ReportInterval = getEnvDuration("REPORT_INTERVAL", cfg.ReportInterval)
	cfg.APIListenAddr = getEnv("API_LISTEN_ADDR", cfg.APIListenAddr)

	cfg.KafkaBrokers = getEnvSlice("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.ZMQPubAddr = getEnv("ZMQ_PUB_ADDR", cfg.ZMQPubAddr)
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.InfluxURL = getEnv("INFLUX_URL", cfg.InfluxURL)
	cfg.InfluxToken = getEnv("INFLUX_TOKEN", cfg.InfluxToken)
	cfg.InfluxOrg = getEnv("INFLUX_ORG", cfg.InfluxOrg)
	cfg.InfluxBucket = getEnv("INFLUX_BUCKET", cfg.InfluxBucket)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

// validate performs basic validation of configuration values. Account
// fields are checked by ConnectionParams when the miner is built.
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.PoolPort < 0 || c.PoolPort > 65535 {
		return fmt.Errorf("DUCO_PORT must be between 1 and 65535")
	}

	if strings.ContainsAny(c.Username+c.MiningKey+c.MinerName+c.RigID+c.DifficultyHint, ",\n") {
		return fmt.Errorf("pool account fields cannot contain commas or newlines")
	}

	durations := map[string]time.Duration{
		"DIAL_TIMEOUT":  c.DialTimeout,
		"READ_TIMEOUT":  c.ReadTimeout,
		"WRITE_TIMEOUT": c.WriteTimeout,
		"STOP_TIMEOUT":  c.StopTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.ConnectBackoff < 0 || c.JobBackoff < 0 || c.JobInterval < 0 {
		return fmt.Errorf("backoff delays cannot be negative")
	}

	if c.SearchMultiplier == 0 {
		return fmt.Errorf("SEARCH_MULTIPLIER must be positive")
	}

	if c.SearchBatch == 0 {
		return fmt.Errorf("SEARCH_BATCH must be positive")
	}

	if c.MaxMessageSize < 64 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be at least 64")
	}

	if c.ReportInterval <= 0 {
		return fmt.Errorf("REPORT_INTERVAL must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
