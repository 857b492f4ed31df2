package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "knowtree", cfg.Name)
	assert.Equal(t, "moonshot", cfg.Oracle.Provider)
	assert.Equal(t, 4, cfg.Explorer.MaxDepth)
	assert.True(t, cfg.Explorer.Parallel)
	assert.Equal(t, 10, cfg.Enrichment.MaxConcurrent)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Explorer.MaxDepth, cfg.Explorer.MaxDepth)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
oracle:
  provider: moonshot
  api_key: test-key
  model: kimi-k2-thinking
  timeout: 30s
explorer:
  max_depth: 2
  parallel: false
  cache_ttl: 10m
enrichment:
  max_concurrent: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Oracle.APIKey)
	assert.Equal(t, 2, cfg.Explorer.MaxDepth)
	assert.False(t, cfg.Explorer.Parallel)
	assert.Equal(t, 5, cfg.Enrichment.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.GetOracleTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetCacheTTL())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MOONSHOT_API_KEY", "env-key")
	t.Setenv("KNOWTREE_MAX_DEPTH", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Oracle.APIKey)
	assert.Equal(t, "moonshot", cfg.Oracle.Provider)
	assert.Equal(t, 3, cfg.Explorer.MaxDepth)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.Oracle.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.Explorer.MaxDepth = 0
	assert.Error(t, cfg.Validate())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Oracle.Timeout = "garbage"
	cfg.Explorer.CacheTTL = ""
	cfg.Enrichment.CallTimeout = "nope"

	assert.Equal(t, 120*time.Second, cfg.GetOracleTimeout())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
	assert.Equal(t, 60*time.Second, cfg.GetCallTimeout())
}
