package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.MaxSolveDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.DeadlineSlack)
	assert.Equal(t, 8, cfg.Solver.ConcurrentRequests)
	assert.Equal(t, 100, cfg.Solver.ToleranceBps)
	assert.Equal(t, 2*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 10.0, cfg.Limiter.RPS)
	assert.Equal(t, []string{"spl_token_swap", "orca"}, cfg.AMM.Protocols)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9999"
  max_solve_duration: 2s
  log_level: debug
solver:
  concurrent_requests: 4
  tolerance_bps: 25
limiter:
  rps: 3.5
okx:
  api_key: abc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.MaxSolveDuration)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 4, cfg.Solver.ConcurrentRequests)
	assert.Equal(t, 25, cfg.Solver.ToleranceBps)
	assert.Equal(t, 3.5, cfg.Limiter.RPS)
	assert.Equal(t, "abc", cfg.OKX.APIKey)

	// Untouched sections keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Cache.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.Server.MaxSolveDuration = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Server.DeadlineSlack = cfg.Server.MaxSolveDuration
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Solver.ToleranceBps = 20_000
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Limiter.BackoffFactor = 0.5
	assert.Error(t, cfg.Validate())

	assert.NoError(t, valid().Validate())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
solver:
  concurrent_requests: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
