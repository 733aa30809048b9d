package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Device
	DeviceIP         string `mapstructure:"device-ip"`
	DevicePort       int    `mapstructure:"device-port"`
	DeviceConfigPort int    `mapstructure:"device-config-port"`
	ForceIP          bool   `mapstructure:"force-ip"`

	// Observer location, decimal degrees; empty when unknown
	Latitude  string `mapstructure:"latitude"`
	Longitude string `mapstructure:"longitude"`
	Timezone  string `mapstructure:"timezone"`

	// Planetarium
	StellariumURL      string        `mapstructure:"stellarium-url"`
	PlanetariumTimeout time.Duration `mapstructure:"planetarium-timeout"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Command sequencing
	CommandTimeout    time.Duration `mapstructure:"command-timeout"`
	CommandPacing     time.Duration `mapstructure:"command-pacing"`
	RestoreDelay      time.Duration `mapstructure:"restore-delay"`
	RestoreInterval   time.Duration `mapstructure:"restore-interval"`
	ReconnectAttempts int           `mapstructure:"reconnect-attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect-delay"`

	// S3 configuration
	S3Bucket   string `mapstructure:"s3-bucket"`
	S3Region   string `mapstructure:"s3-region"`
	S3Endpoint string `mapstructure:"s3-endpoint"`
	S3Prefix   string `mapstructure:"s3-prefix"`

	// Largest archive "archive fetch" writes to disk, in bytes
	MaxArchiveSize int64 `mapstructure:"max-archive-size"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("device-ip", "")
	viper.SetDefault("device-port", 9900)
	viper.SetDefault("device-config-port", 8082)
	viper.SetDefault("force-ip", false)
	viper.SetDefault("latitude", "")
	viper.SetDefault("longitude", "")
	viper.SetDefault("timezone", "UTC")
	viper.SetDefault("stellarium-url", "")
	viper.SetDefault("planetarium-timeout", "2s")
	viper.SetDefault("sqlite-path", ".dwarfctl/dwarfctl.db")
	viper.SetDefault("fsm-db-path", ".dwarfctl/fsm")
	viper.SetDefault("fsm-max-retries", 3)
	viper.SetDefault("command-timeout", "5s")
	viper.SetDefault("command-pacing", "500ms")
	viper.SetDefault("restore-delay", "1s")
	viper.SetDefault("restore-interval", "500ms")
	viper.SetDefault("reconnect-attempts", 3)
	viper.SetDefault("reconnect-delay", "2s")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("s3-prefix", "sessions")
	viper.SetDefault("max-archive-size", 256*1024*1024) // 256MB
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-file", "")

	// Environment variables (will be DWARF_DEVICE_IP, etc.)
	viper.SetEnvPrefix("DWARF")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.dwarfctl")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DevicePort <= 0 || c.DeviceConfigPort <= 0 {
		return fmt.Errorf("device ports must be positive")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command-timeout must be positive")
	}
	if c.CommandPacing < 0 || c.RestoreDelay < 0 || c.RestoreInterval < 0 {
		return fmt.Errorf("command-pacing, restore-delay and restore-interval must be non-negative")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect-attempts must be non-negative")
	}
	if c.MaxArchiveSize < 0 {
		return fmt.Errorf("max-archive-size must be non-negative")
	}
	if c.PlanetariumTimeout <= 0 {
		return fmt.Errorf("planetarium-timeout must be positive")
	}
	if _, err := c.Observer(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Observer returns the configured observer location, or nil when latitude or
// longitude is not set.
func (c *Config) Observer() (*coords.Observer, error) {
	if c.Latitude == "" || c.Longitude == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(c.Latitude, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude must be decimal degrees in [-90, 90]: %q", c.Latitude)
	}
	lon, err := strconv.ParseFloat(c.Longitude, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude must be decimal degrees in [-180, 180]: %q", c.Longitude)
	}
	return &coords.Observer{Lat: lat, Lon: lon}, nil
}

// Location loads the configured IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ParseLevel maps a log-level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log-level %q", s)
	}
	return level, nil
}
