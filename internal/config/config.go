// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token      string  `yaml:"token"`
	Mode       string  `yaml:"mode"` // polling | webhook (future)
	Username   string  `yaml:"username"`
	AdminIDs   []int64 `yaml:"admin_ids"`
	BlockedIDs []int64 `yaml:"blocked_ids"`
}

type DispatchConfig struct {
	RateLimit     int           `yaml:"rate_limit"`     // max updates per user per window
	RateWindow    time.Duration `yaml:"rate_window"`    // rate-limit window size
	UpdateTimeout time.Duration `yaml:"update_timeout"` // per-update processing deadline
	DrainTimeout  time.Duration `yaml:"drain_timeout"`  // graceful shutdown budget
	LaneQueue     int           `yaml:"lane_queue"`     // per-lane pending update capacity
	LaneIdleTTL   time.Duration `yaml:"lane_idle_ttl"`  // retire lanes idle this long
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | postgres | redis
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type OpsConfig struct {
	Port       int           `yaml:"port"`
	JWTSecret  string        `yaml:"jwt_secret"`
	APIKey     string        `yaml:"api_key"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Ops      OpsConfig      `yaml:"ops"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Dispatch.RateLimit <= 0 {
		cfg.Dispatch.RateLimit = 30
	}
	if cfg.Dispatch.RateWindow <= 0 {
		cfg.Dispatch.RateWindow = time.Minute
	}
	if cfg.Dispatch.UpdateTimeout <= 0 {
		cfg.Dispatch.UpdateTimeout = 30 * time.Second
	}
	if cfg.Dispatch.DrainTimeout <= 0 {
		cfg.Dispatch.DrainTimeout = 15 * time.Second
	}
	if cfg.Dispatch.LaneQueue <= 0 {
		cfg.Dispatch.LaneQueue = 64
	}
	if cfg.Dispatch.LaneIdleTTL <= 0 {
		cfg.Dispatch.LaneIdleTTL = 5 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 8081
	}
	if cfg.Ops.SessionTTL <= 0 {
		cfg.Ops.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required for store.backend=postgres")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required for store.backend=redis")
		}
	default:
		return nil, fmt.Errorf("unknown store.backend %q", cfg.Store.Backend)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
