package config

import (
	"strings"
	"testing"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("BotToken = %q", cfg.Telegram.BotToken)
	}
	if cfg.Storage.Driver != StorageRedis {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, StorageRedis)
	}
	if cfg.Redis.Host != "localhost" || cfg.Redis.Port != "6379" {
		t.Errorf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.Telegram.PollTimeout != 60 {
		t.Errorf("PollTimeout = %d, want 60", cfg.Telegram.PollTimeout)
	}
	if cfg.Game.SnowballHitChance != 0.5 {
		t.Errorf("SnowballHitChance = %v, want 0.5", cfg.Game.SnowballHitChance)
	}
	if cfg.Game.UpdateWorkers != 4 {
		t.Errorf("UpdateWorkers = %d, want 4", cfg.Game.UpdateWorkers)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("HTTP.Addr = %q, want empty", cfg.HTTP.Addr)
	}
}

func TestLoadFromEnvRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing TELEGRAM_BOT_TOKEN")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/santa.db")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SNOWBALL_HIT_CHANCE", "0.25")
	t.Setenv("UPDATE_WORKERS", "8")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.SQLite.Path != "/tmp/santa.db" {
		t.Errorf("unexpected storage config: %+v %+v", cfg.Storage, cfg.SQLite)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d, want 3", cfg.Redis.DB)
	}
	if cfg.Game.SnowballHitChance != 0.25 || cfg.Game.UpdateWorkers != 8 {
		t.Errorf("unexpected game config: %+v", cfg.Game)
	}
	if !cfg.Log.Pretty {
		t.Error("Log.Pretty should be true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"redis ok", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown STORAGE_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = StoragePostgres }, "POSTGRES_DSN"},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Driver = StoragePostgres
			c.Postgres.DSN = "postgres://localhost/santa"
		}, ""},
		{"hit chance too high", func(c *Config) { c.Game.SnowballHitChance = 1.5 }, "SNOWBALL_HIT_CHANCE"},
		{"hit chance negative", func(c *Config) { c.Game.SnowballHitChance = -0.1 }, "SNOWBALL_HIT_CHANCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Storage.Driver = StorageRedis
			cfg.Game.SnowballHitChance = 0.5
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClampsWorkersAndTimeout(t *testing.T) {
	cfg := &Config{}
	cfg.Storage.Driver = StorageSQLite
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Game.UpdateWorkers != 1 {
		t.Errorf("UpdateWorkers = %d, want 1", cfg.Game.UpdateWorkers)
	}
	if cfg.Telegram.PollTimeout != 60 {
		t.Errorf("PollTimeout = %d, want 60", cfg.Telegram.PollTimeout)
	}
}
