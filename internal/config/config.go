// File: internal/config/config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
}

// Config holds the entire application configuration. Fields are exported
// for unmarshalling; readers go through the Interface getters.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	EngineCfg EngineConfig `mapstructure:"engine" yaml:"engine"`
}

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig { return c.EngineCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig bounds the memory of the taint tracking engine.
type EngineConfig struct {
	// MaxRangesPerValue caps the number of taint ranges recorded against a
	// single value; overflow is truncated deterministically.
	MaxRangesPerValue int `mapstructure:"max_ranges_per_value" yaml:"max_ranges_per_value"`
	// MaxTrackedValues caps the number of values tracked at once.
	MaxTrackedValues int `mapstructure:"max_tracked_values" yaml:"max_tracked_values"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "taintgrid")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.max_ranges_per_value", 128)
	v.SetDefault("engine.max_tracked_values", 65536)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.MaxRangesPerValue <= 0 {
		return fmt.Errorf("engine.max_ranges_per_value must be a positive integer")
	}
	if c.EngineCfg.MaxTrackedValues <= 0 {
		return fmt.Errorf("engine.max_tracked_values must be a positive integer")
	}
	return nil
}
