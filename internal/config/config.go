// Package config provides Viper-based configuration loading for the
// progression daemon.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// URL is a redis:// connection URL.
	URL string `mapstructure:"url"`
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `mapstructure:"key_prefix"`
	// DialTimeout bounds the startup ping.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// StorageConfig selects the character persistence backend.
type StorageConfig struct {
	// Backend is one of "postgres", "redis", or "memory".
	Backend string `mapstructure:"backend"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig holds tick driver settings.
type SimulationConfig struct {
	// TickInterval is the wall-clock period between regeneration ticks.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// Autosave persists a character whenever it levels up or dies.
	Autosave bool `mapstructure:"autosave"`
	// SaveInterval is the period of the full roster save; 0 disables it.
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// ContentConfig locates static content.
type ContentConfig struct {
	// ArchetypesDir holds archetype YAML files.
	ArchetypesDir string `mapstructure:"archetypes_dir"`
	// DefaultArchetype is used when a character names no archetype.
	DefaultArchetype string `mapstructure:"default_archetype"`
}

// ScriptingConfig holds Lua hook settings.
type ScriptingConfig struct {
	// GlobalDir holds hooks shared by every archetype; empty disables scripting.
	GlobalDir string `mapstructure:"global_dir"`
	// InstructionLimit caps opcodes per hook call; 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Content    ContentConfig    `mapstructure:"content"`
	Scripting  ScriptingConfig  `mapstructure:"scripting"`
}

// Validate checks all configuration invariants. Database and Redis sections
// are only checked when the storage backend uses them.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Storage.Backend {
	case "postgres":
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	case "redis":
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	validBackends := map[string]bool{"postgres": true, "redis": true, "memory": true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("storage.backend must be one of [postgres, redis, memory], got %q", s.Backend)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.URL == "" {
		errs = append(errs, "redis.url must not be empty")
	} else if !strings.HasPrefix(r.URL, "redis://") && !strings.HasPrefix(r.URL, "rediss://") {
		errs = append(errs, fmt.Sprintf("redis.url must use redis:// or rediss://, got %q", r.URL))
	}
	if r.DialTimeout < 0 {
		errs = append(errs, "redis.dial_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.tick_interval must be > 0, got %s", s.TickInterval))
	}
	if s.SaveInterval < 0 {
		errs = append(errs, "simulation.save_interval must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	if c.DefaultArchetype == "" {
		return errors.New("content.default_archetype must not be empty")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PROGRESSION_ prefix
	v.SetEnvPrefix("PROGRESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance carrying only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "progression")
	v.SetDefault("database.password", "progression")
	v.SetDefault("database.name", "progression")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "progression")
	v.SetDefault("redis.dial_timeout", "5s")

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("simulation.tick_interval", "100ms")
	v.SetDefault("simulation.autosave", true)
	v.SetDefault("simulation.save_interval", "1m")

	v.SetDefault("content.archetypes_dir", "content/archetypes")
	v.SetDefault("content.default_archetype", "wanderer")

	v.SetDefault("scripting.global_dir", "content/scripts/global")
	v.SetDefault("scripting.instruction_limit", 0)
}
