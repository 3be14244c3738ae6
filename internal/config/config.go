// Package config loads quotactl settings from a YAML file and QUOTA_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverTiered = "tiered"
)

// Config is the full quotactl configuration.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	Store    StoreConfig  `mapstructure:"store" yaml:"store"`
	Events   EventsConfig `mapstructure:"events" yaml:"events"`
	Limits   LimitsConfig `mapstructure:"limits" yaml:"limits"`
}

// StoreConfig selects the counter store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory sqlite redis tiered"`
	// DSN is the SQLite database path for the sqlite and tiered drivers.
	DSN         string        `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Driver sqlite,required_if=Driver tiered"`
	RedisAddr   string        `mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPrefix string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"gte=0"`
}

// EventsConfig points at the SQLite event store cleared on reset. An empty
// DSN disables it.
type EventsConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LimitsConfig holds default limits used when flags do not override them.
type LimitsConfig struct {
	Minute int64 `mapstructure:"minute" yaml:"minute" validate:"gte=0"`
	Month  int64 `mapstructure:"month" yaml:"month" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_prefix", "quota:")
	v.SetDefault("store.cache_ttl", time.Second)
	v.SetDefault("events.dsn", "")
	v.SetDefault("limits.minute", 60)
	v.SetDefault("limits.month", 100000)
}

// Load reads configFile (or quotactl.yaml from the working directory and
// $HOME/.quotactl when empty), applies QUOTA_ environment overrides, and
// validates the result. A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("quotactl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quotactl")
	}

	v.SetEnvPrefix("QUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration using its struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// WriteYAML writes the effective configuration to w.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
