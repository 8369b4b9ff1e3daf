package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/bardlex/ducominer/pkg/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			wantErr: false,
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"SERVICE_NAME":      "test-miner",
				"DUCO_PORT":         "6000",
				"DUCO_USERNAME":     "alice",
				"SEARCH_MULTIPLIER": "200",
				"JOB_BACKOFF":       "1s",
			},
			wantErr: false,
		},
		{
			name: "invalid port",
			envVars: map[string]string{
				"DUCO_PORT": "99999",
			},
			wantErr: true,
		},
		{
			name: "comma in username",
			envVars: map[string]string{
				"DUCO_USERNAME": "alice,bob",
			},
			wantErr: true,
		},
		{
			name: "zero stop timeout",
			envVars: map[string]string{
				"STOP_TIMEOUT": "0s",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if cfg.ServiceName == "" {
					t.Error("ServiceName should not be empty")
				}
				if cfg.PoolPort <= 0 {
					t.Error("PoolPort should be positive")
				}
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"host", cfg.PoolHost, DefaultHost},
		{"port", cfg.PoolPort, DefaultPort},
		{"dial timeout", cfg.DialTimeout, 10 * time.Second},
		{"connect backoff", cfg.ConnectBackoff, 10 * time.Second},
		{"job backoff", cfg.JobBackoff, 5 * time.Second},
		{"job interval", cfg.JobInterval, 100 * time.Millisecond},
		{"stop timeout", cfg.StopTimeout, 5 * time.Second},
		{"search multiplier", cfg.SearchMultiplier, uint64(100)},
		{"search batch", cfg.SearchBatch, uint64(1000)},
		{"report interval", cfg.ReportInterval, 30 * time.Second},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestConnectionParams(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{PoolHost: "pool.example", PoolPort: 2811, Username: "alice"}, false},
		{"missing host", Config{PoolPort: 2811, Username: "alice"}, true},
		{"missing username", Config{PoolHost: "pool.example", PoolPort: 2811}, true},
		{"zero port", Config{PoolHost: "pool.example", Username: "alice"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := tt.cfg.ConnectionParams()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConnectionParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsType(err, errors.ErrorTypeConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
				if errors.IsRetryable(err) {
					t.Error("configuration errors must not be retryable")
				}
				return
			}
			if params.Address() != "pool.example:2811" {
				t.Errorf("Address() = %s", params.Address())
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.toml")
	contents := `
[pool]
host = "pool.example"
port = 6000
username = "alice"
rig_id = "garage"

[timeouts]
job_backoff = "2s"

[search]
multiplier = 50

[sinks]
kafka_brokers = ["k1:9092", "k2:9092"]
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("DUCO_RIG_ID", "override")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.PoolHost != "pool.example" || cfg.PoolPort != 6000 || cfg.Username != "alice" {
		t.Errorf("pool section not applied: %+v", cfg)
	}
	if cfg.RigID != "override" {
		t.Errorf("environment should override file, got rig %q", cfg.RigID)
	}
	if cfg.JobBackoff != 2*time.Second {
		t.Errorf("JobBackoff = %v, want 2s", cfg.JobBackoff)
	}
	if cfg.ConnectBackoff != 10*time.Second {
		t.Errorf("ConnectBackoff should keep default, got %v", cfg.ConnectBackoff)
	}
	if cfg.SearchMultiplier != 50 {
		t.Errorf("SearchMultiplier = %d, want 50", cfg.SearchMultiplier)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.toml")
	if err := os.WriteFile(path, []byte("[timeouts]\nread = \"soon\"\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "test_value")
	if got := getEnv("TEST_STRING", "default"); got != "test_value" {
		t.Errorf("getEnv() = %v, want %v", got, "test_value")
	}
	if got := getEnv("NONEXISTENT", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want %v", got, "default")
	}

	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want %v", got, 42)
	}
	if got := getEnvInt("NONEXISTENT", 99); got != 99 {
		t.Errorf("getEnvInt() = %v, want %v", got, 99)
	}

	t.Setenv("TEST_UINT", "1000")
	if got := getEnvUint("TEST_UINT", 0); got != 1000 {
		t.Errorf("getEnvUint() = %v, want %v", got, 1000)
	}

	t.Setenv("TEST_DURATION", "30s")
	if got := getEnvDuration("TEST_DURATION", 0); got != 30*time.Second {
		t.Errorf("getEnvDuration() = %v, want %v", got, 30*time.Second)
	}

	t.Setenv("TEST_SLICE", "a:1, b:2,,")
	if got := getEnvSlice("TEST_SLICE", nil); !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
		t.Errorf("getEnvSlice() = %v", got)
	}
}
