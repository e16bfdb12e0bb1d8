package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Search.BaseURL)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 5, cfg.Discovery.TargetCount)
	assert.Equal(t, 5, cfg.Discovery.MinRounds)
	assert.Equal(t, 20, cfg.Discovery.MaxRounds)
	assert.Equal(t, 5, cfg.Discovery.MaxEmptyRounds)
	assert.Equal(t, 8, cfg.Discovery.FetchConcurrency)
	assert.True(t, cfg.Verify.AssumeValidOnDNSError)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  base_url: http://searx.internal:9090
discovery:
  max_rounds: 7
  min_rounds: 2
verify:
  assume_valid_on_dns_error: false
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://searx.internal:9090", cfg.Search.BaseURL)
	assert.Equal(t, 7, cfg.Discovery.MaxRounds)
	assert.Equal(t, 2, cfg.Discovery.MinRounds)
	assert.False(t, cfg.Verify.AssumeValidOnDNSError)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep defaults.
	assert.Equal(t, 5, cfg.Discovery.TargetCount)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	t.Setenv("DISCOVERY_SEARCH_BASE_URL", "http://env-searx:8888")
	t.Setenv("DISCOVERY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://env-searx:8888", cfg.Search.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
}

func TestVerifyConfigTimeouts(t *testing.T) {
	c := VerifyConfig{DNSTimeoutSecs: 3, SMTPTimeoutSecs: 7}
	assert.Equal(t, "3s", c.DNSTimeout().String())
	assert.Equal(t, "7s", c.SMTPTimeout().String())
}
