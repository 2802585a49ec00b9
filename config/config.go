package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

type StoreConfig struct {
	Type     string         `mapstructure:"type"` // redis, memory, postgres, sqlite, dynamodb
	Redis    RedisConfig    `mapstructure:"redis"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQL      SQLConfig      `mapstructure:"sql"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// SQLConfig holds settings shared by the SQL-backed stores
type SQLConfig struct {
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // optional, e.g. DynamoDB Local
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type FetcherConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Path           string `mapstructure:"path"`
	Namespace      string `mapstructure:"namespace"`
	Subsystem      string `mapstructure:"subsystem"`
	CollectRuntime bool   `mapstructure:"collect_runtime"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/webcache/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")

	viper.SetDefault("store.type", "redis")
	viper.SetDefault("store.redis.addr", "localhost:6379")
	viper.SetDefault("store.redis.password", "")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.sqlite.path", "./data/webcache.db")
	viper.SetDefault("store.postgres.url", "")
	viper.SetDefault("store.sql.purge_interval", "1m")
	viper.SetDefault("store.dynamodb.table", "webcache")
	viper.SetDefault("store.dynamodb.region", "us-east-1")
	viper.SetDefault("store.dynamodb.endpoint", "")

	viper.SetDefault("cache.ttl", "10s")

	viper.SetDefault("fetcher.timeout", "30s")
	viper.SetDefault("fetcher.user_agent", "webcache/1.0")
	viper.SetDefault("fetcher.max_body_bytes", 10<<20)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.namespace", "webcache")
	viper.SetDefault("metrics.subsystem", "pages")
	viper.SetDefault("metrics.collect_runtime", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the store or fetcher cannot honor
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "redis", "memory", "postgres", "sqlite", "dynamodb":
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}

	// Store expiry has whole-second granularity
	if c.Cache.TTL < time.Second {
		return errors.New("cache.ttl must be at least 1s")
	}

	if c.Store.Type == "postgres" && c.Store.Postgres.URL == "" {
		return errors.New("store.postgres.url is required for the postgres store")
	}

	return nil
}

func (c *Config) GetStoreURL() string {
	switch c.Store.Type {
	case "redis":
		return c.Store.Redis.Addr
	case "sqlite":
		return c.Store.SQLite.Path
	case "postgres":
		return c.Store.Postgres.URL
	case "dynamodb":
		return c.Store.DynamoDB.Table
	default:
		return ""
	}
}
