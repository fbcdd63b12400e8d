// Package config loads taskboard configuration from a YAML file and the
// environment. Environment variables take precedence over the file;
// both fall back to the defaults set here. E.g. TASKBOARD_STORAGE_BACKEND,
// TASKBOARD_POSTGRES_HOST, TASKBOARD_CACHE_STATS_TTL.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TASKBOARD"

// Storage backend names accepted in storage.backend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the resolved application configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// PostgresConfig carries the connection settings for the postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// CacheConfig tunes the cache coherency layer.
type CacheConfig struct {
	StatsTTL time.Duration `mapstructure:"stats_ttl" yaml:"stats_ttl"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TracingConfig toggles the stdout trace exporter.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{Backend: BackendMemory},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "taskboard",
			Database: "taskboard",
			SSLMode:  "disable",
		},
		Cache:   CacheConfig{StatsTTL: 60 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{Enabled: false},
	}
}

// Load reads configuration from path (optional; empty means env and
// defaults only) and the TASKBOARD_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := defaults()
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("postgres.host", def.Postgres.Host)
	v.SetDefault("postgres.port", def.Postgres.Port)
	v.SetDefault("postgres.user", def.Postgres.User)
	v.SetDefault("postgres.password", def.Postgres.Password)
	v.SetDefault("postgres.database", def.Postgres.Database)
	v.SetDefault("postgres.sslmode", def.Postgres.SSLMode)
	v.SetDefault("cache.stats_ttl", def.Cache.StatsTTL)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("tracing.enabled", def.Tracing.Enabled)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the resolved configuration for values that can only be
// caught at startup.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendPostgres {
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			return fmt.Errorf("postgres.port %d out of range", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required")
		}
	}
	if c.Cache.StatsTTL < 0 {
		return fmt.Errorf("cache.stats_ttl must not be negative")
	}
	return nil
}

// WriteSkeleton writes a commented starter config file to path. It refuses
// to overwrite an existing file.
func WriteSkeleton(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	def := defaults()
	skeleton := struct {
		Storage  StorageConfig  `yaml:"storage"`
		Postgres PostgresConfig `yaml:"postgres"`
		Cache    struct {
			StatsTTL string `yaml:"stats_ttl"`
		} `yaml:"cache"`
		Logging LoggingConfig `yaml:"logging"`
		Tracing TracingConfig `yaml:"tracing"`
	}{
		Storage:  def.Storage,
		Postgres: def.Postgres,
		Logging:  def.Logging,
		Tracing:  def.Tracing,
	}
	skeleton.Cache.StatsTTL = def.Cache.StatsTTL.String()

	data, err := yaml.Marshal(&skeleton)
	if err != nil {
		return fmt.Errorf("marshaling defaults: %w", err)
	}

	header := "# taskboard configuration. Every key can be overridden with a\n# TASKBOARD_* environment variable, e.g. TASKBOARD_POSTGRES_HOST.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}
