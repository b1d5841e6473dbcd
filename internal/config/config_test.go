package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Service.Host)
	assert.Equal(t, 8436, cfg.Service.Port)
	assert.Equal(t, "rule_based", cfg.Evaluation.Strategy)
	assert.True(t, cfg.API.Enabled)
}

func TestLoad_ParsesAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REFINE_KEY", "secret-key")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[service]
host = "0.0.0.0"
port = 9000

[llm]
provider = "anthropic"
api_key = "${TEST_REFINE_KEY}"
judge_model = "claude-sonnet-4-20250514"

[evaluation]
strategy = "llm_judge"

[logging]
level = "debug"
output = ["console", "file"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Address())
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.JudgeModel)
	assert.Equal(t, "llm_judge", cfg.Evaluation.Strategy)
	assert.Equal(t, []string{"console", "file"}, cfg.Logging.Output)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Service.Port = 9999
	cfg.Evaluation.Strategy = "llm_judge"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Service.Port)
	assert.Equal(t, "llm_judge", loaded.Evaluation.Strategy)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.DataDir = filepath.Join(t.TempDir(), "data")

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.Service.DataDir, cfg.SessionsDir(), filepath.Dir(cfg.LogPath())} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
