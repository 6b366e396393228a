package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/staycount/factory"
	"github.com/warp/staycount/generic"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig       `mapstructure:"server"`
	Database DatabaseConfig     `mapstructure:"database"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Redis    RedisConfig        `mapstructure:"redis"`
	Snapshot SnapshotConfig     `mapstructure:"snapshot"`
	Engine   EngineConfig       `mapstructure:"engine"`
	Rules    []factory.RuleJSON `mapstructure:"rules"`

	// Parsed from Rules during validation
	parsedRules []generic.Rule
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BindAddress     string        `mapstructure:"bind_address"`
	StaticDir       string        `mapstructure:"static_dir"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxTripDays     int           `mapstructure:"max_trip_days"` // single-trip cap enforced by the API
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// DatabaseConfig defines sqlite settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

// RedisConfig defines the optional summary cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SnapshotConfig defines the periodic snapshot job
type SnapshotConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

// EngineConfig defines calculation settings
type EngineConfig struct {
	PrimaryZone       string `mapstructure:"primary_zone"`
	SearchHorizonDays int    `mapstructure:"search_horizon_days"`
	RuleCacheSize     int    `mapstructure:"rule_cache_size"`
}

// Load loads configuration from file and environment variables.
// An empty path uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("STAYCOUNT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_trip_days", 90)

	// Database defaults
	v.SetDefault("database.path", "staycount.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	// Snapshot defaults
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.interval", "1h")
	v.SetDefault("snapshot.concurrency", 4)

	// Engine defaults
	v.SetDefault("engine.primary_zone", "schengen")
	v.SetDefault("engine.search_horizon_days", generic.DefaultSearchHorizon)
	v.SetDefault("engine.rule_cache_size", 256)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxTripDays <= 0 || cfg.Server.MaxTripDays > generic.MaxRuleDays {
		return fmt.Errorf("max_trip_days must be between 1 and %d: %d", generic.MaxRuleDays, cfg.Server.MaxTripDays)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", cfg.Logging.Format)
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if cfg.Snapshot.Enabled && cfg.Snapshot.Interval <= 0 {
		return fmt.Errorf("invalid snapshot interval: %s", cfg.Snapshot.Interval)
	}
	if cfg.Snapshot.Concurrency <= 0 {
		cfg.Snapshot.Concurrency = 1
	}

	if cfg.Engine.SearchHorizonDays <= 0 {
		return fmt.Errorf("search_horizon_days must be positive: %d", cfg.Engine.SearchHorizonDays)
	}

	// Rules declared in config are fatal when invalid
	rules, err := factory.NewRuleFactory().FromJSONList(cfg.Rules)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	cfg.parsedRules = rules

	// Ensure database directory exists
	if cfg.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}

// ExtraRules returns the validated rules declared in the config file.
func (c *Config) ExtraRules() []generic.Rule {
	return c.parsedRules
}
