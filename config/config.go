// Package config provides loading and validation of graphmap.yaml files.
// A configuration selects the graph store backend, the identity generator
// and the log level a mapper is built with.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverEmbedded = "embedded"
	DriverNeo4j    = "neo4j"
)

// Identity generators.
const (
	GeneratorClock = "clock"
	GeneratorRedis = "redis"
)

// Config represents a graphmap.yaml configuration file.
type Config struct {
	Store StoreConfig `yaml:"store"`
	IDs   IDConfig    `yaml:"ids"`
	Log   LogConfig   `yaml:"log"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	// Driver is "embedded" or "neo4j".
	// Default: "embedded"
	Driver string `yaml:"driver,omitempty"`

	// Path is the data directory of the embedded store.
	// Default: "./data"
	Path string `yaml:"path,omitempty"`

	// NoSync disables fsync on commit for the embedded store. Only for tests
	// and throwaway data.
	NoSync bool `yaml:"no_sync,omitempty"`

	Neo4j *Neo4jConfig `yaml:"neo4j,omitempty"`
}

// Neo4jConfig holds the connection settings of the neo4j driver.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	// MaxConnectionPoolSize is the maximum number of pooled connections.
	// Default: 50
	MaxConnectionPoolSize int `yaml:"max_connection_pool_size,omitempty"`

	// ConnectionTimeout is a Go duration string (e.g., "10s").
	// Default: 30s
	ConnectionTimeout string `yaml:"connection_timeout,omitempty"`

	// MaxTransactionRetryTime is a Go duration string.
	// Default: 30s
	MaxTransactionRetryTime string `yaml:"max_transaction_retry_time,omitempty"`
}

// GetConnectionTimeout parses the connection timeout and returns a duration.
// Returns the default value if not set or invalid.
func (n *Neo4jConfig) GetConnectionTimeout() time.Duration {
	return durationOr(n, func(n *Neo4jConfig) string { return n.ConnectionTimeout }, 30*time.Second)
}

// GetMaxTransactionRetryTime parses the retry budget and returns a duration.
// Returns the default value if not set or invalid.
func (n *Neo4jConfig) GetMaxTransactionRetryTime() time.Duration {
	return durationOr(n, func(n *Neo4jConfig) string { return n.MaxTransactionRetryTime }, 30*time.Second)
}

// GetMaxConnectionPoolSize returns the pool size or the default value.
func (n *Neo4jConfig) GetMaxConnectionPoolSize() int {
	if n == nil || n.MaxConnectionPoolSize <= 0 {
		return 50
	}
	return n.MaxConnectionPoolSize
}

func durationOr(n *Neo4jConfig, field func(*Neo4jConfig) string, def time.Duration) time.Duration {
	if n == nil || field(n) == "" {
		return def
	}
	d, err := time.ParseDuration(field(n))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// IDConfig selects the generator assigning node identities.
type IDConfig struct {
	// Generator is "clock" or "redis".
	// Default: "clock"
	Generator string `yaml:"generator,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis identity counter.
type RedisConfig struct {
	URL string `yaml:"url"`

	// Key is the counter key. Default: "graphmap:node:id"
	Key string `yaml:"key,omitempty"`

	// Floor raises the counter to at least this value when the mapper opens,
	// so new ids stay above ids issued by another generator.
	Floor int64 `yaml:"floor,omitempty"`
}

// LogConfig configures mapper logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level,omitempty"`
}

// SlogLevel returns the configured level, or slog.LevelInfo when unset.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns a configuration for an embedded store under ./data with
// clock identities.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverEmbedded
	}
	if c.Store.Driver == DriverEmbedded && c.Store.Path == "" {
		c.Store.Path = "./data"
	}
	if c.IDs.Generator == "" {
		c.IDs.Generator = GeneratorClock
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverEmbedded:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the embedded driver"))
		}
	case DriverNeo4j:
		if c.Store.Neo4j == nil || c.Store.Neo4j.URI == "" {
			errs = append(errs, errors.New("store.neo4j.uri is required for the neo4j driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of %s, %s", c.Store.Driver, DriverEmbedded, DriverNeo4j))
	}

	switch c.IDs.Generator {
	case GeneratorClock:
	case GeneratorRedis:
		if c.IDs.Redis == nil || c.IDs.Redis.URL == "" {
			errs = append(errs, errors.New("ids.redis.url is required for the redis generator"))
		} else if c.IDs.Redis.Floor < 0 {
			errs = append(errs, fmt.Errorf("ids.redis.floor must not be negative, got %d", c.IDs.Redis.Floor))
		}
	default:
		errs = append(errs, fmt.Errorf("ids.generator %q is not one of %s, %s", c.IDs.Generator, GeneratorClock, GeneratorRedis))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q: %w", c.Log.Level, err))
	}

	return errors.Join(errs...)
}

// Load reads, defaults and validates a graphmap.yaml file.
// If the path is a directory, it looks for graphmap.yaml or graphmap.yml in that directory.
// Environment variables referenced as ${NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"graphmap.yaml", "graphmap.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no graphmap.yaml or graphmap.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(strings.TrimSpace(name))
	})

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}
