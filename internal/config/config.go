// Package config defines the client configuration structure.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultStoreBackend = "file"
	DefaultStorePath    = ".erp-session.json"
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultRedisPrefix  = "erp-session"
	DefaultLogLevel     = "info"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the root client configuration.
type Config struct {
	API   APISection   `yaml:"api"`
	Store StoreSection `yaml:"store"`
	Log   LogSection   `yaml:"log"`
}

// Duration unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// APISection configures the backend endpoints.
type APISection struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// StoreSection configures session persistence.
type StoreSection struct {
	Backend string      `yaml:"backend"` // memory | file | redis
	Path    string      `yaml:"path"`    // file backend
	Redis   RedisConfig `yaml:"redis"`   // redis backend
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogSection configures logging.
type LogSection struct {
	Level string `yaml:"level"`
}

// Default returns the default client configuration.
func Default() *Config {
	return &Config{
		API: APISection{
			Timeout: Duration(DefaultTimeout),
		},
		Store: StoreSection{
			Backend: DefaultStoreBackend,
			Path:    DefaultStorePath,
			Redis: RedisConfig{
				Addr:   DefaultRedisAddr,
				Prefix: DefaultRedisPrefix,
			},
		},
		Log: LogSection{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads a YAML configuration file over the defaults. Environment
// variables override the file: ERP_API_BASE_URL, ERP_STORE_BACKEND,
// ERP_STORE_PATH, ERP_REDIS_ADDR, ERP_LOG_LEVEL.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "[config.Load] read")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "[config.Load] parse")
		}
	}

	applyEnv(cfg)

	if err := Verify(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load]")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ERP_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ERP_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ERP_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ERP_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("ERP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if cfg.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the file backend")
		}
	case BackendRedis:
		if cfg.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
		if cfg.Store.Redis.Prefix == "" {
			return errors.New("store.redis.prefix is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}
