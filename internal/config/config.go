// ============================================================================
// ruvltra-core Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Function: Loads the YAML configuration surface spec.md §6 names (worker
// sizing, pattern memory persistence, adapter settings, generation
// defaults, diagnostics) and clamps every value to a sane range, falling
// back to defaults on a missing or malformed file.
//
// Design origin:
//   Directly grounded on the teacher's internal/cli/cli.go Config struct
//   and loadConfig: a nested yaml-tagged struct, gopkg.in/yaml.v3, and
//   "malformed file never aborts startup" semantics. The teacher's single
//   flat loadConfig(path) is kept as Load(path); the clamping pass this spec
//   requires (spec.md §6 "values are clamped to sane ranges on load") is new
//   and has no teacher equivalent beyond its ad-hoc use of time.Duration
//   fields straight off the wire.
//
// ============================================================================

package config

import (
	"os"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the complete operator-facing configuration surface, per
// spec.md §6 "Configuration surface".
type Config struct {
	Worker struct {
		MinWorkers     int `yaml:"minWorkers"`
		MaxWorkers     int `yaml:"maxWorkers"`
		InitialWorkers int `yaml:"initialWorkers"`
		QueueMaxLength int `yaml:"queueMaxLength"`
		TaskTimeoutMs  int `yaml:"taskTimeoutMs"`
	} `yaml:"worker"`

	Memory struct {
		SonaEnabled         bool   `yaml:"sonaEnabled"`
		SonaStateDir        string `yaml:"sonaStateDir"`
		SonaPersistInterval int    `yaml:"sonaPersistInterval"`
	} `yaml:"memory"`

	HTTP struct {
		Endpoint                string `yaml:"httpEndpoint"`
		APIKey                  string `yaml:"httpApiKey"`
		Model                   string `yaml:"httpModel"`
		Format                  string `yaml:"httpFormat"`
		TimeoutMs               int    `yaml:"httpTimeoutMs"`
		MaxRetries              int    `yaml:"httpMaxRetries"`
		RetryBaseMs             int    `yaml:"httpRetryBaseMs"`
		CircuitFailureThreshold int64  `yaml:"httpCircuitFailureThreshold"`
		CircuitCooldownMs       int64  `yaml:"httpCircuitCooldownMs"`
	} `yaml:"http"`

	Native struct {
		ModelPath     string `yaml:"modelPath"`
		ContextLength int    `yaml:"contextLength"`
		GPULayers     int    `yaml:"gpuLayers"`
		Threads       int    `yaml:"threads"`
	} `yaml:"native"`

	Generation struct {
		MaxTokens   int     `yaml:"maxTokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"generation"`

	Mock struct {
		LatencyMs int `yaml:"mockLatencyMs"`
	} `yaml:"mock"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"logLevel"`
	} `yaml:"logging"`
}

// Default returns the spec.md §6 defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Worker.MinWorkers = 2
	cfg.Worker.MaxWorkers = 8
	cfg.Worker.InitialWorkers = 2
	cfg.Worker.QueueMaxLength = 256
	cfg.Worker.TaskTimeoutMs = 60000

	cfg.Memory.SonaEnabled = true
	cfg.Memory.SonaStateDir = "sona-state"
	cfg.Memory.SonaPersistInterval = 10

	cfg.HTTP.Format = "auto"
	cfg.HTTP.TimeoutMs = 15000
	cfg.HTTP.MaxRetries = 2
	cfg.HTTP.RetryBaseMs = 250
	cfg.HTTP.CircuitFailureThreshold = 5
	cfg.HTTP.CircuitCooldownMs = 30000

	cfg.Native.ContextLength = 4096
	cfg.Native.GPULayers = -1
	cfg.Native.Threads = 0

	cfg.Generation.MaxTokens = 512
	cfg.Generation.Temperature = 0.2

	cfg.Mock.LatencyMs = 120

	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 9090

	cfg.Logging.Level = "info"
	return cfg
}

// Load reads and parses the YAML file at path, applying defaults to any
// field the file omits. A missing or malformed file yields Default()
// unchanged, matching spec.md §6 "malformed file or env values fall back to
// defaults".
func Load(path string) *Config {
	cfg := Default()
	if path == "" {
		return cfg.clamp()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg.clamp()
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default().clamp()
	}
	return cfg.clamp()
}

// clamp restricts every numeric field to a sane range, per spec.md §6
// "values are clamped to sane ranges on load".
func (cfg *Config) clamp() *Config {
	cfg.Worker.MinWorkers = types.ClampInt(cfg.Worker.MinWorkers, 1, 256)
	cfg.Worker.MaxWorkers = types.ClampInt(cfg.Worker.MaxWorkers, cfg.Worker.MinWorkers, 256)
	cfg.Worker.InitialWorkers = types.ClampInt(cfg.Worker.InitialWorkers, cfg.Worker.MinWorkers, cfg.Worker.MaxWorkers)
	cfg.Worker.QueueMaxLength = types.ClampInt(cfg.Worker.QueueMaxLength, 1, 1_000_000)
	cfg.Worker.TaskTimeoutMs = types.ClampInt(cfg.Worker.TaskTimeoutMs, 1, 600_000)

	cfg.Memory.SonaPersistInterval = types.ClampInt(cfg.Memory.SonaPersistInterval, 1, 10_000)

	cfg.HTTP.TimeoutMs = types.ClampInt(cfg.HTTP.TimeoutMs, 1, 600_000)
	cfg.HTTP.MaxRetries = types.ClampInt(cfg.HTTP.MaxRetries, 0, 10)
	cfg.HTTP.RetryBaseMs = types.ClampInt(cfg.HTTP.RetryBaseMs, 1, 60_000)
	cfg.HTTP.CircuitFailureThreshold = int64(types.ClampInt(int(cfg.HTTP.CircuitFailureThreshold), 1, 1000))
	cfg.HTTP.CircuitCooldownMs = int64(types.ClampInt(int(cfg.HTTP.CircuitCooldownMs), 1, 600_000))
	if cfg.HTTP.Format == "" {
		cfg.HTTP.Format = "auto"
	}

	cfg.Native.ContextLength = types.ClampInt(cfg.Native.ContextLength, 1, 1_000_000)
	cfg.Native.Threads = types.ClampInt(cfg.Native.Threads, 0, 1024)

	cfg.Generation.MaxTokens = types.ClampInt(cfg.Generation.MaxTokens, 1, 32_768)
	cfg.Generation.Temperature = types.ClampFloat(cfg.Generation.Temperature, 0, 2)

	cfg.Mock.LatencyMs = types.ClampInt(cfg.Mock.LatencyMs, 0, 60_000)

	cfg.Metrics.Port = types.ClampInt(cfg.Metrics.Port, 1, 65535)

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		cfg.Logging.Level = "info"
	}

	return cfg
}

// HTTPTimeout returns the HTTP adapter's request timeout as a Duration.
func (cfg *Config) HTTPTimeout() time.Duration {
	return time.Duration(cfg.HTTP.TimeoutMs) * time.Millisecond
}

// HTTPRetryBase returns the HTTP adapter's backoff base as a Duration.
func (cfg *Config) HTTPRetryBase() time.Duration {
	return time.Duration(cfg.HTTP.RetryBaseMs) * time.Millisecond
}

// HTTPCircuitCooldown returns the HTTP adapter's circuit breaker cooldown.
func (cfg *Config) HTTPCircuitCooldown() time.Duration {
	return time.Duration(cfg.HTTP.CircuitCooldownMs) * time.Millisecond
}

// TaskTimeout returns the pool's default per-task timeout.
func (cfg *Config) TaskTimeout() time.Duration {
	return time.Duration(cfg.Worker.TaskTimeoutMs) * time.Millisecond
}
