package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, DefaultFileName, cfg.FileName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.LibraryPath)
	assert.NotEmpty(t, cfg.TokenPath)
	assert.NotEmpty(t, cfg.ListenAddr)
	assert.False(t, cfg.IsConfigured())
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
client_id = "real-id.apps.googleusercontent.com"
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "real-id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultFileName, cfg.FileName)
	assert.True(t, cfg.IsConfigured())
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
client_id = "x"
clientid = "typo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
	assert.Contains(t, err.Error(), "clientid")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `log_level = "trace"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_FileNameValidation(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `file_name = ""`))
	require.Error(t, err)

	// Single quotes would break the Drive search query.
	_, err = Load(writeConfig(t, `file_name = "it's.json"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single quotes")
}

func TestLoad_MalformedTOML(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `client_id = `))
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFileName, cfg.FileName)

	path := writeConfig(t, `client_id = "x.apps.googleusercontent.com"`)

	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsConfigured())
}

func TestIsConfigured_PlaceholderRejected(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ClientID = placeholderClientID
	assert.False(t, cfg.IsConfigured())

	cfg.ClientID = "real.apps.googleusercontent.com"
	assert.True(t, cfg.IsConfigured())
}
