package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for our application
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Timezone   string           `mapstructure:"timezone"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Emit       EmitConfig       `mapstructure:"emit"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Bluefors   BlueforsConfig   `mapstructure:"bluefors"`
}

type CheckpointConfig struct {
	Backend  string         `mapstructure:"backend"`
	Database DatabaseConfig `mapstructure:"database"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Textfile is the node_exporter textfile the run metrics are written to.
	Textfile string `mapstructure:"textfile"`
}

type EmitConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

type BlueforsConfig struct {
	Channels    []int  `mapstructure:"channels"`
	ValveLayout string `mapstructure:"valve_layout"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Unmarshalling defaults alone cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// First unmarshal into a map to handle type conversions
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	// Convert the map to YAML again
	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	// Expand environment variables
	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Location resolves the configured timezone. "Local" and the empty string
// mean the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ConnString builds the lib/pq connection string of the checkpoint database.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// DefaultDataDir is the per-user directory holding file checkpoints.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "cryolog")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "cryolog")
	}
	return filepath.Join(os.TempDir(), "cryolog")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("timezone", "Local")

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.database.host", "localhost")
	v.SetDefault("checkpoint.database.port", 5432)
	v.SetDefault("checkpoint.database.name", "cryolog")
	v.SetDefault("checkpoint.database.ssl_mode", "disable")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("emit.rate_limit", 0)
	v.SetDefault("emit.burst", 1)

	v.SetDefault("bluefors.channels", []int{1, 2, 5, 6, 7, 8})
	v.SetDefault("bluefors.valve_layout", "dual-turbo")
}
