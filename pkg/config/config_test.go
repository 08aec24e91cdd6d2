package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Generation.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Resilience.CacheTTL)
	assert.Equal(t, 100, cfg.Resilience.CacheMaxEntries)
	assert.Equal(t, 20, cfg.Resilience.RateLimitMax)
	assert.Equal(t, 3, cfg.Resilience.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.Resilience.RetryBaseDelay)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0o755))
	content := []byte(`
generation:
  provider: ollama
  model: llama3.2
  ollama_host: "http://localhost:11434"
resilience:
  rate_limit_max: 5
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigDir, ConfigFilename), content, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Generation.Provider)
	assert.Equal(t, "llama3.2", cfg.Generation.Model)
	assert.Equal(t, 5, cfg.Resilience.RateLimitMax)
	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Resilience.CacheTTL)
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProjectConfigDir), 0o755))
	content := []byte("generation:\n  provider: skynet\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigDir, ConfigFilename), content, 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Generation.Provider = ProviderOpenAI
	cfg.Generation.Model = "gpt-4o"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, loaded.Generation.Provider)
	assert.Equal(t, "gpt-4o", loaded.Generation.Model)
}

func TestAPIKeyName(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.APIKeyName())
	cfg.Generation.Provider = ProviderOllama
	assert.Empty(t, cfg.APIKeyName(), "local provider needs no key")
}

func TestVaultSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	vault := NewVault()
	vault.Set("ANTHROPIC_API_KEY", "sk-test-123")
	vault.Set("OPENAI_API_KEY", "sk-test-456")
	require.NoError(t, vault.Save(dir, "hunter2"))
	assert.True(t, SecretsFileExists(dir))

	// File permissions are restrictive.
	info, err := os.Stat(filepath.Join(dir, ProjectConfigDir, secretsFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored := NewVault()
	require.NoError(t, restored.Load(dir, "hunter2"))
	value, err := restored.Get("ANTHROPIC_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", value)
	assert.Len(t, restored.Names(), 2)
}

func TestVaultWrongPassword(t *testing.T) {
	dir := t.TempDir()
	vault := NewVault()
	vault.Set("KEY", "value")
	require.NoError(t, vault.Save(dir, "correct"))

	err := NewVault().Load(dir, "wrong")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestVaultFallsBackToEnvironment(t *testing.T) {
	t.Setenv("PLANNER_TEST_SECRET", "from-env")

	vault := NewVault()
	value, err := vault.Get("PLANNER_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = vault.Get("PLANNER_TEST_MISSING")
	assert.Error(t, err)

	vault.Set("PLANNER_TEST_SECRET", "from-vault")
	value, err = vault.Get("PLANNER_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", value, "vault wins over environment")
}
