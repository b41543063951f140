// Package config provides YAML-based configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int             `yaml:"port" env:"PORT"`
	BindAddress          string          `yaml:"bindAddress" env:"BIND_ADDRESS"`
	AllowOrigins         string          `yaml:"allowOrigins" env:"ALLOWED_ORIGIN"`
	BodyLimit            string          `yaml:"bodyLimit" env:"BODY_LIMIT"`
	ReadTimeout          time.Duration   `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout         time.Duration   `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	IdleTimeout          time.Duration   `yaml:"idleTimeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout      time.Duration   `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	EnableRequestLogging bool            `yaml:"enableRequestLogging" env:"ENABLE_REQUEST_LOGGING"`
	TrustProxy           bool            `yaml:"trustProxy" env:"TRUST_PROXY"`
	RateLimit            RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig controls the per-client request limiter
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" env:"RATE_LIMIT_RPS"`
	Burst             int           `yaml:"burst" env:"RATE_LIMIT_BURST"`
	ExpiresIn         time.Duration `yaml:"expiresIn" env:"RATE_LIMIT_EXPIRES_IN"`
}

// StorageConfig contains marker database settings
type StorageConfig struct {
	// DatabasePath is the DuckDB file. Empty keeps markers in memory.
	DatabasePath string `yaml:"databasePath" env:"DATABASE_PATH"`
	Threads      int    `yaml:"threads" env:"DUCKDB_THREADS"`
	MemoryLimit  string `yaml:"memoryLimit" env:"DUCKDB_MEMORY_LIMIT"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8080,
			BindAddress:          "0.0.0.0",
			AllowOrigins:         "*",
			BodyLimit:            "10K",
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         15 * time.Second,
			IdleTimeout:          60 * time.Second,
			ShutdownTimeout:      10 * time.Second,
			EnableRequestLogging: true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
				ExpiresIn:         3 * time.Minute,
			},
		},
		Storage: StorageConfig{
			DatabasePath: "./data/markers.duckdb",
			Threads:      2,
			MemoryLimit:  "256MB",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first if it does not exist. Environment variables override both.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Marker service configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *AppConfig) applyEnvironmentOverrides() error {
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// resolvePaths makes a relative database path relative to the config file
func (c *AppConfig) resolvePaths(configDir string) {
	path := c.Storage.DatabasePath
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return
	}
	c.Storage.DatabasePath = filepath.Join(configDir, path)
}

// Validate rejects settings the server cannot start with
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.BodyLimit) == "" {
		return errors.New("body limit must be set")
	}
	if _, err := bytes.Parse(c.Server.BodyLimit); err != nil {
		return fmt.Errorf("invalid body limit %q: %w", c.Server.BodyLimit, err)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", c.Server.RateLimit.RequestsPerSecond)
		}
		if c.Server.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1, got %d", c.Server.RateLimit.Burst)
		}
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowOrigins splits the comma separated origin list, defaulting to "*"
func (c *AppConfig) GetAllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// GetDatabasePath returns the DuckDB path; empty means in-memory
func (c *AppConfig) GetDatabasePath() string {
	if c.Storage.DatabasePath == ":memory:" {
		return ""
	}
	return c.Storage.DatabasePath
}
