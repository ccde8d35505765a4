// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds all runtime settings for the bot, the audio pipeline and the
// web surface.
type Config struct {
	DiscordToken        string `env:"DISCORD_TOKEN,required,notEmpty"`
	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"data/memejoin.json"`
	SoundsDir   string `env:"SOUNDS_DIR" envDefault:"sounds"`
	CacheDir    string `env:"CACHE_DIR" envDefault:"data/cache"`

	AppOrigin     string `env:"APP_ORIGIN" envDefault:"http://localhost:8100"`
	WebPort       int    `env:"WEB_PORT" envDefault:"8100"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"memejoin-dev-secret"`
	RunAPI        bool   `env:"RUN_API" envDefault:"true"`
	RunBot        bool   `env:"RUN_BOT" envDefault:"true"`

	// QueueCap bounds pending join events per guild; the oldest pending
	// event is discarded once the cap is exceeded.
	QueueCap int `env:"QUEUE_CAP" envDefault:"6"`

	// IdleTimeout is how long a session stays in a voice channel with an
	// empty queue before disconnecting.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"10s"`

	// FetchTimeout bounds a single remote asset download.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`

	// RefreshInterval and RefreshWindow drive the credential refresher:
	// wake every interval, renew tokens expiring within the window.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m"`
	RefreshWindow   time.Duration `env:"REFRESH_WINDOW" envDefault:"15m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// New loads the configuration. A missing .env file is not an error.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using system environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.QueueCap < 1 {
		cfg.QueueCap = 1
	}

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, keeping default")
	}

	return cfg, nil
}
