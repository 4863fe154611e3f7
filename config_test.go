package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	newCmd(cfg)

	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig(t)

	require.NoError(t, cfg.validate())
	assert.Equal(t, "http", cfg.scheme())
	assert.Equal(t, 20, cfg.chunkSize)
	assert.Equal(t, int64(15000), cfg.maxFileSize)
	assert.Contains(t, cfg.extensions, "go")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"tls cert without key", func(c *Config) { c.tlsCert = "cert.pem" }},
		{"port out of range", func(c *Config) { c.port = 70000 }},
		{"zero chunk size", func(c *Config) { c.chunkSize = 0 }},
		{"zero choices", func(c *Config) { c.maxChoices = 0 }},
		{"negative peeks", func(c *Config) { c.peeks = -1 }},
		{"no extensions", func(c *Config) { c.extensions = nil }},
		{"zero cache", func(c *Config) { c.cacheSize = 0 }},
		{"peek period longer than guess time", func(c *Config) {
			c.guessTime = 10 * time.Second
			c.peekPeriod = 20 * time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.modify(cfg)

			assert.Error(t, cfg.validate())
		})
	}
}

func TestEnvironmentAndFlags(t *testing.T) {
	t.Setenv("GITGAME_PEEKS", "3")
	t.Setenv("GITGAME_EXTENSIONS", "go,rs")

	cfg := &Config{}
	cmd := newCmd(cfg)

	assert.Equal(t, 3, cfg.peeks)
	assert.Equal(t, []string{"go", "rs"}, cfg.extensions)

	require.NoError(t, cmd.ParseFlags([]string{"--peeks=5", "--guess-time=30s"}))

	assert.Equal(t, 5, cfg.peeks)
	assert.Equal(t, 30*time.Second, cfg.guessTime)
}

func TestLoadEnvFiles(t *testing.T) {
	const key = "GITGAME_DOTENV_TEST"

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	t.Cleanup(func() { os.Unsetenv(key) })

	require.NoError(t, loadEnvFiles(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv(key))
}
