package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Equal(t, 2, cfg.Worker.MinWorkers)
	assert.Equal(t, 8, cfg.Worker.MaxWorkers)
	assert.Equal(t, 512, cfg.Generation.MaxTokens)
}

func TestLoad_MalformedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	cfg := Load(path)
	assert.Equal(t, Default().Worker, cfg.Worker)
}

func TestLoad_ParsesProvidedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
worker:
  minWorkers: 4
  maxWorkers: 10
  queueMaxLength: 50
memory:
  sonaEnabled: true
  sonaStateDir: /var/lib/ruvltra/sona
http:
  httpEndpoint: http://localhost:8080/v1/completions
  httpMaxRetries: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Load(path)
	assert.Equal(t, 4, cfg.Worker.MinWorkers)
	assert.Equal(t, 10, cfg.Worker.MaxWorkers)
	assert.Equal(t, 50, cfg.Worker.QueueMaxLength)
	assert.Equal(t, "/var/lib/ruvltra/sona", cfg.Memory.SonaStateDir)
	assert.Equal(t, "http://localhost:8080/v1/completions", cfg.HTTP.Endpoint)
	assert.Equal(t, 5, cfg.HTTP.MaxRetries)
}

func TestClamp_MaxWorkersNeverBelowMinWorkers(t *testing.T) {
	cfg := Default()
	cfg.Worker.MinWorkers = 10
	cfg.Worker.MaxWorkers = 3
	cfg.clamp()
	assert.GreaterOrEqual(t, cfg.Worker.MaxWorkers, cfg.Worker.MinWorkers)
}

func TestClamp_UnknownLogLevelFallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	cfg.clamp()
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestClamp_EmptyHTTPFormatDefaultsToAuto(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Format = ""
	cfg.clamp()
	assert.Equal(t, "auto", cfg.HTTP.Format)
}

func TestClamp_TemperatureBounded(t *testing.T) {
	cfg := Default()
	cfg.Generation.Temperature = 5.0
	cfg.clamp()
	assert.LessOrEqual(t, cfg.Generation.Temperature, 2.0)
}
