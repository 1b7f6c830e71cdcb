package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("WOM_API_KEY", "key")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "key", cfg.WOMAPIKey)
	assert.Equal(t, "https://api.wiseoldman.net/v2", cfg.WOMBaseURL)
	assert.Equal(t, 30*time.Second, cfg.WOMTimeout)
	assert.Equal(t, 2*time.Second, cfg.GuildDelay)
	assert.Equal(t, 1, cfg.SweepConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.StatsInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.InactiveGrace)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("WOM_API_KEY", "key")

	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("DISCORD_BOT_TOKEN=from-file\nGUILD_DELAY=5s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DISCORD_BOT_TOKEN")
		os.Unsetenv("GUILD_DELAY")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DiscordToken)
	assert.Equal(t, 5*time.Second, cfg.GuildDelay)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	t.Setenv("WOM_API_KEY", "key")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_BOT_TOKEN")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			SweepConcurrency: 1,
			WOMTimeout:       time.Second,
			StatsInterval:    time.Minute,
			InactiveGrace:    time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.SweepConcurrency = 0 }, wantErr: "SWEEP_CONCURRENCY"},
		{name: "negative delay", mutate: func(c *Config) { c.GuildDelay = -time.Second }, wantErr: "GUILD_DELAY"},
		{name: "zero timeout", mutate: func(c *Config) { c.WOMTimeout = 0 }, wantErr: "WOM_TIMEOUT"},
		{name: "zero stats interval", mutate: func(c *Config) { c.StatsInterval = 0 }, wantErr: "STATS_INTERVAL"},
		{name: "zero grace", mutate: func(c *Config) { c.InactiveGrace = 0 }, wantErr: "INACTIVE_GRACE"},
		{name: "negative retention", mutate: func(c *Config) { c.BackupRetention = -1 }, wantErr: "BACKUP_RETENTION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
