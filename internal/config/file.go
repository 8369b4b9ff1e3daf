package config

import (
	"fmt"
	"time"
)

// fileConfig mirrors the TOML layout:
//
//	[pool]     host, port, username, mining_key, difficulty, miner_name, rig_id
//	[timeouts] dial, read, write, connect_backoff, job_backoff, job_interval, stop
//	[search]   multiplier, batch
//	[report]   interval, api_listen_addr
//	[sinks]    kafka_brokers, kafka_topic, zmq_pub_addr, postgres_url, redis_url,
//	           influx_url, influx_token, influx_org, influx_bucket
//	[log]      level, format
type fileConfig struct {
	Pool struct {
		Host       string `toml:"host"`
		Port       int    `toml:"port"`
		Username   string `toml:"username"`
		MiningKey  string `toml:"mining_key"`
		Difficulty string `toml:"difficulty"`
		MinerName  string `toml:"miner_name"`
		RigID      string `toml:"rig_id"`
	} `toml:"pool"`

	Timeouts struct {
		Dial           string `toml:"dial"`
		Read           string `toml:"read"`
		Write          string `toml:"write"`
		ConnectBackoff string `toml:"connect_backoff"`
		JobBackoff     string `toml:"job_backoff"`
		JobInterval    string `toml:"job_interval"`
		Stop           string `toml:"stop"`
	} `toml:"timeouts"`

	Search struct {
		Multiplier uint64 `toml:"multiplier"`
		Batch      uint64 `toml:"batch"`
	} `toml:"search"`

	Report struct {
		Interval      string `toml:"interval"`
		APIListenAddr string `toml:"api_listen_addr"`
	} `toml:"report"`

	Sinks struct {
		KafkaBrokers []string `toml:"kafka_brokers"`
		KafkaTopic   string   `toml:"kafka_topic"`
		ZMQPubAddr   string   `toml:"zmq_pub_addr"`
		PostgresURL  string   `toml:"postgres_url"`
		RedisURL     string   `toml:"redis_url"`
		InfluxURL    string   `toml:"influx_url"`
		InfluxToken  string   `toml:"influx_token"`
		InfluxOrg    string   `toml:"influx_org"`
		InfluxBucket string   `toml:"influx_bucket"`
	} `toml:"sinks"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.PoolHost, fc.Pool.Host)
	if fc.Pool.Port != 0 {
		cfg.PoolPort = fc.Pool.Port
	}
	setString(&cfg.Username, fc.Pool.Username)
	setString(&cfg.MiningKey, fc.Pool.MiningKey)
	setString(&cfg.DifficultyHint, fc.Pool.Difficulty)
	setString(&cfg.MinerName, fc.Pool.MinerName)
	setString(&cfg.RigID, fc.Pool.RigID)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.dial", fc.Timeouts.Dial, &cfg.DialTimeout},
		{"timeouts.read", fc.Timeouts.Read, &cfg.ReadTimeout},
		{"timeouts.write", fc.Timeouts.Write, &cfg.WriteTimeout},
		{"timeouts.connect_backoff", fc.Timeouts.ConnectBackoff, &cfg.ConnectBackoff},
		{"timeouts.job_backoff", fc.Timeouts.JobBackoff, &cfg.JobBackoff},
		{"timeouts.job_interval", fc.Timeouts.JobInterval, &cfg.JobInterval},
		{"timeouts.stop", fc.Timeouts.Stop, &cfg.StopTimeout},
		{"report.interval", fc.Report.Interval, &cfg.ReportInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if fc.Search.Multiplier != 0 {
		cfg.SearchMultiplier = fc.Search.Multiplier
	}
	if fc.Search.Batch != 0 {
		cfg.SearchBatch = fc.Search.Batch
	}

	setString(&cfg.APIListenAddr, fc.Report.APIListenAddr)

	if len(fc.Sinks.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = fc.Sinks.KafkaBrokers
	}
	setString(&cfg.KafkaTopic, fc.Sinks.KafkaTopic)
	setString(&cfg.ZMQPubAddr, fc.Sinks.ZMQPubAddr)
	setString(&cfg.PostgresURL, fc.Sinks.PostgresURL)
	setString(&cfg.RedisURL, fc.Sinks.RedisURL)
	setString(&cfg.InfluxURL, fc.Sinks.InfluxURL)
	setString(&cfg.InfluxToken, fc.Sinks.InfluxToken)
	setString(&cfg.InfluxOrg, fc.Sinks.InfluxOrg)
	setString(&cfg.InfluxBucket, fc.Sinks.InfluxBucket)

	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
