package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Auth    AuthConfig     `yaml:"auth"`
	Storage StorageConfig  `yaml:"storage"`
	Log     LogConfig      `yaml:"log"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" env:"PENSINE_HOST"`
	Port            int           `yaml:"port" env:"PENSINE_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"PENSINE_SHUTDOWN_TIMEOUT"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	Method    string `yaml:"method" env:"PENSINE_AUTH_METHOD"` // "none", "apikey" or "jwt"
	APIKey    string `yaml:"apiKey,omitempty" env:"PENSINE_API_KEY"`
	JWTSecret string `yaml:"jwtSecret,omitempty" env:"PENSINE_JWT_SECRET"`
}

// StorageConfig says where plugin data lives
type StorageConfig struct {
	Dir string `yaml:"dir" env:"PENSINE_DATA_DIR"`
	// Git turns Dir into a git repository with one commit per write.
	Git bool `yaml:"git" env:"PENSINE_STORAGE_GIT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"PENSINE_LOG_LEVEL"` // debug, info, warn or error
}

// PluginConfig enables a plugin and carries its settings
type PluginConfig struct {
	ID      string         `yaml:"id"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Auth.Method == "" {
		c.Auth.Method = "none"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Parse reads YAML configuration, fills in defaults and applies PENSINE_*
// environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Auth.Method {
	case "none":
	case "apikey":
		if c.Auth.APIKey == "" {
			return errors.New("auth.apiKey is required for the apikey method")
		}
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwtSecret is required for the jwt method")
		}
	default:
		return fmt.Errorf("unknown auth.method %q", c.Auth.Method)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	seen := make(map[string]bool, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.ID == "" {
			return errors.New("plugin without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("plugin %s configured twice", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// PluginEnabled reports whether plugin id should be enabled. Plugins that
// are not listed are enabled.
func (c *Config) PluginEnabled(id string) bool {
	for _, p := range c.Plugins {
		if p.ID == id {
			return p.Enabled == nil || *p.Enabled
		}
	}
	return true
}

// PluginValues returns the settings of every configured plugin by id.
func (c *Config) PluginValues() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.Config != nil {
			out[p.ID] = p.Config
		}
	}
	return out
}
