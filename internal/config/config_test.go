package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "wizard", cfg.Models.Default)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Purge.Enabled)
	assert.NoError(t, Validate(cfg))
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-verysecret"
	cfg.Providers.Anthropic.APIKey = "sk-ant-alsosecret"

	out := cfg.String()
	assert.NotContains(t, out, "sk-verysecret")
	assert.NotContains(t, out, "sk-ant-alsosecret")
	assert.Contains(t, out, "***")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leia.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"gateway": {"port": 9090},
		"models": {"default": "claude"},
		"providers": {
			"local": [{"name": "llama", "base_url": "http://localhost:11434/v1", "model": "llama3"}]
		}
	}`), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Gateway.Port)
	assert.Equal(t, "claude", cfg.Models.Default)
	require.Len(t, cfg.Providers.Local, 1)
	assert.Equal(t, "llama", cfg.Providers.Local[0].Name)

	// Unset sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leia.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gateway": {"port": -1}}`), 0644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "leia.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Gateway.Port = 7070
	cfg.Models.Default = "assistant"
	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, reloaded.Gateway.Port)
	assert.Equal(t, "assistant", reloaded.Models.Default)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Gateway.Port = 0 },
			wantErr: "invalid gateway port",
		},
		{
			name: "local provider without name",
			mutate: func(c *Config) {
				c.Providers.Local = []LocalModelConfig{{BaseURL: "http://x", Model: "m"}}
			},
			wantErr: "name is required",
		},
		{
			name: "local provider with reserved name",
			mutate: func(c *Config) {
				c.Providers.Local = []LocalModelConfig{{Name: "default", BaseURL: "http://x", Model: "m"}}
			},
			wantErr: "reserved",
		},
		{
			name: "purge enabled with bad time frame",
			mutate: func(c *Config) {
				c.Purge.Enabled = true
				c.Purge.TimeFrame = "sideways"
			},
			wantErr: "invalid purge time frame",
		},
		{
			name:    "negative catalog timeout",
			mutate:  func(c *Config) { c.Catalog.Timeout = -1 },
			wantErr: "catalog timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
