package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
)

// Backend selects which cacheport.Cache implementation the application
// wires up.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config is the root application configuration, loaded from YAML plus
// environment overrides.
type Config struct {
	App   AppConfig   `mapstructure:"app" validate:"required"`
	Log   LogConfig   `mapstructure:"log" validate:"required"`
	Cache CacheConfig `mapstructure:"cache" validate:"required"`
	Lock  LockConfig  `mapstructure:"lock" validate:"required"`

	Memory  MemoryConfig  `mapstructure:"memory"`
	Redis   RedisConfig   `mapstructure:"redis"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig holds application-identity settings.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	Debug       bool   `mapstructure:"debug"`
}

// LogConfig holds logging configuration (mirrors pkg/logger.Config for
// mapstructure/viper purposes).
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"required,oneof=json text"`
	Output     string `mapstructure:"output" validate:"required,oneof=stdout stderr file"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// CacheConfig holds the tagcache wrapper's own behavior: which backend
// to drive, default TTL, and the isolation level governing lock
// strategy (locks.Level).
type CacheConfig struct {
	Backend       Backend       `mapstructure:"backend" validate:"required,oneof=memory redis sqlite postgres"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl" validate:"required"`
	Isolation     string        `mapstructure:"isolation" validate:"required,oneof=read_uncommitted read_committed repeatable_read serializable"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// LockConfig holds tag-lock timing: the released-state delay window that
// locks.Make hands to every isolation level, and the tag-state TTLs.
// TagTimeout and TagStateTimeout are loaded and validated but not read by
// package deps, which uses its own constants of the same names.
type LockConfig struct {
	Delay           time.Duration `mapstructure:"delay" validate:"gte=0"`
	TagTimeout      time.Duration `mapstructure:"tag_timeout" validate:"required"`
	TagStateTimeout time.Duration `mapstructure:"tag_state_timeout" validate:"required"`
}

// MemoryConfig holds in-process LRU backend sizing.
type MemoryConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// RedisConfig mirrors redisstore.Config for mapstructure/viper purposes.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// SQLiteConfig mirrors sqlitestore.Config.
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PostgresConfig mirrors pgstore.Config.
type PostgresConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Database          string        `mapstructure:"database"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Load reads configuration from configPath (if non-empty) and environment
// variables, falling back to defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("TAGCACHE")

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "tagcache")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.isolation", "read_committed")
	viper.SetDefault("cache.enable_metrics", true)
	viper.SetDefault("cache.key_prefix", "")

	viper.SetDefault("lock.delay", "0s")
	viper.SetDefault("lock.tag_timeout", "24h")
	viper.SetDefault("lock.tag_state_timeout", "5s")

	viper.SetDefault("memory.max_entries", 10000)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 1)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "8ms")
	viper.SetDefault("redis.max_retry_backoff", "512ms")

	viper.SetDefault("sqlite.path", "tagcache.db")
	viper.SetDefault("sqlite.max_open_conns", 1)
	viper.SetDefault("sqlite.max_idle_conns", 1)

	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.database", "tagcache")
	viper.SetDefault("postgres.user", "tagcache")
	viper.SetDefault("postgres.ssl_mode", "disable")
	viper.SetDefault("postgres.max_conns", 10)
	viper.SetDefault("postgres.min_conns", 1)
	viper.SetDefault("postgres.max_conn_lifetime", "1h")
	viper.SetDefault("postgres.max_conn_idle_time", "30m")
	viper.SetDefault("postgres.health_check_period", "1m")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)
}

var validate = validator.New()

// Validate validates the configuration via struct tags plus a handful
// of cross-field checks the tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when cache.backend=redis")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when cache.backend=sqlite")
		}
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required when cache.backend=postgres")
		}
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsolationLevel maps the config's snake_case isolation name to the
// locks.Level value locks.Make expects.
func (c *Config) IsolationLevel() (locks.Level, error) {
	switch c.Cache.Isolation {
	case "read_uncommitted":
		return locks.ReadUncommitted, nil
	case "read_committed":
		return locks.ReadCommitted, nil
	case "repeatable_read":
		return locks.RepeatableRead, nil
	case "serializable":
		return locks.Serializable, nil
	default:
		return "", fmt.Errorf("config: unknown isolation level %q", c.Cache.Isolation)
	}
}
