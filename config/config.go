package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	Telegram struct {
		BotToken    string `env:"BOT_TOKEN,required,notEmpty"`
		Debug       bool   `env:"DEBUG" envDefault:"false"`
		PollTimeout int    `env:"POLL_TIMEOUT" envDefault:"60"`
	} `envPrefix:"TELEGRAM_"`
	Storage struct {
		Driver string `env:"DRIVER" envDefault:"redis"`
	} `envPrefix:"STORAGE_"`
	Redis struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     string `env:"PORT" envDefault:"6379"`
		Password string `env:"PASSWORD"`
		DB       int    `env:"DB" envDefault:"0"`
	} `envPrefix:"REDIS_"`
	Postgres struct {
		DSN string `env:"DSN"`
	} `envPrefix:"POSTGRES_"`
	SQLite struct {
		Path string `env:"PATH" envDefault:"santa.db"`
	} `envPrefix:"SQLITE_"`
	Log struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Pretty bool   `env:"PRETTY" envDefault:"false"`
	} `envPrefix:"LOG_"`
	HTTP struct {
		Addr string `env:"ADDR"`
	} `envPrefix:"HTTP_"`
	Game struct {
		MessagesPath      string  `env:"MESSAGES_PATH"`
		SnowballHitChance float64 `env:"SNOWBALL_HIT_CHANCE" envDefault:"0.5"`
		UpdateWorkers     int     `env:"UPDATE_WORKERS" envDefault:"4"`
	}
}

// LoadFromEnv reads an optional .env file and then the process environment.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
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

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageRedis, StorageSQLite:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN environment variable is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Game.SnowballHitChance < 0 || c.Game.SnowballHitChance > 1 {
		return fmt.Errorf("SNOWBALL_HIT_CHANCE must be between 0 and 1, got %v", c.Game.SnowballHitChance)
	}
	if c.Game.UpdateWorkers < 1 {
		c.Game.UpdateWorkers = 1
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 60
	}
	return nil
}
