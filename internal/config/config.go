package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string `env:"DISCORD_BOT_TOKEN,required,notEmpty"`
	OwnerID      string `env:"BOT_OWNER_ID"`

	// Wise Old Man API
	WOMAPIKey    string        `env:"WOM_API_KEY,required,notEmpty"`
	WOMBaseURL   string        `env:"WOM_BASE_URL" envDefault:"https://api.wiseoldman.net/v2"`
	WOMUserAgent string        `env:"WOM_USER_AGENT" envDefault:"MultiServerSyncBot/2.4"`
	WOMTimeout   time.Duration `env:"WOM_TIMEOUT" envDefault:"30s"`

	// Database
	DatabasePath    string `env:"DATABASE_PATH" envDefault:"./data/wom_multi.db"`
	BackupDir       string `env:"BACKUP_DIR" envDefault:"./backups"`
	BackupRetention int    `env:"BACKUP_RETENTION" envDefault:"14"`

	// Scheduling
	GuildDelay       time.Duration `env:"GUILD_DELAY" envDefault:"2s"`
	GuildTimeout     time.Duration `env:"GUILD_TIMEOUT" envDefault:"2m"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"1"`
	StatsInterval    time.Duration `env:"STATS_INTERVAL" envDefault:"5m"`
	DailyStagger     time.Duration `env:"DAILY_STAGGER" envDefault:"1m"`
	InactiveGrace    time.Duration `env:"INACTIVE_GRACE" envDefault:"720h"`

	// Status site
	APIAddr    string `env:"API_ADDR" envDefault:":5000"`
	WebsiteDir string `env:"WEBSITE_DIR" envDefault:"./website"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables, after loading envFiles
// (config.env and .env when none are given) if they exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{"config.env", ".env"}
	}
	for _, f := range envFiles {
		// Missing files are fine, the environment may already be populated
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("invalid SWEEP_CONCURRENCY: must be at least 1, got %d", c.SweepConcurrency)
	}
	if c.GuildDelay < 0 {
		return fmt.Errorf("invalid GUILD_DELAY: must not be negative")
	}
	if c.WOMTimeout <= 0 {
		return fmt.Errorf("invalid WOM_TIMEOUT: must be positive")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("invalid STATS_INTERVAL: must be positive")
	}
	if c.InactiveGrace <= 0 {
		return fmt.Errorf("invalid INACTIVE_GRACE: must be positive")
	}
	if c.BackupRetention < 0 {
		return fmt.Errorf("invalid BACKUP_RETENTION: must not be negative")
	}
	return nil
}
