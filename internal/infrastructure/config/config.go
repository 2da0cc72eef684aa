package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Bus       BusConfig
	Boot      BootConfig
	Shell     ShellConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// BusConfig holds event bus limits.
type BusConfig struct {
	MaxSubscribers int           `envconfig:"BUS_MAX_SUBSCRIBERS" default:"100"`
	SlowHandler    time.Duration `envconfig:"BUS_SLOW_HANDLER" default:"100ms"`
}

// BootConfig holds boot sequence configuration.
type BootConfig struct {
	StepTimeout time.Duration `envconfig:"BOOT_STEP_TIMEOUT" default:"10s"`
}

// ShellConfig locates the shell's config files and app manifests.
type ShellConfig struct {
	ConfigDir   string `envconfig:"MIZU_CONFIG_DIR" default:"./config"`
	SystemFile  string `envconfig:"MIZU_SYSTEM_FILE" default:"system.json"`
	ModulesFile string `envconfig:"MIZU_MODULES_FILE" default:"modules.json"`
	AppsDir     string `envconfig:"MIZU_APPS_DIR" default:"./apps"`

	FetchTimeout        time.Duration `envconfig:"MIZU_FETCH_TIMEOUT" default:"10s"`
	LoadTimeout         time.Duration `envconfig:"MIZU_LOAD_TIMEOUT" default:"30s"`
	DiagnosticsInterval time.Duration `envconfig:"MIZU_DIAGNOSTICS_INTERVAL" default:"5s"`
}

// StoreConfig selects the persistent state backend.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STORE_DSN" default:"file:mizu.db?_pragma=busy_timeout(5000)"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Bus: BusConfig{
			MaxSubscribers: 100,
			SlowHandler:    100 * time.Millisecond,
		},
		Boot: BootConfig{
			StepTimeout: 10 * time.Second,
		},
		Shell: ShellConfig{
			ConfigDir:   "./config",
			SystemFile:  "system.json",
			ModulesFile: "modules.json",
			AppsDir:     "./apps",

			FetchTimeout:        10 * time.Second,
			LoadTimeout:         30 * time.Second,
			DiagnosticsInterval: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "file:mizu.db?_pragma=busy_timeout(5000)",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}
