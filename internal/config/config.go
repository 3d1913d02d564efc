// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "MOONSILVER_CONFIG"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Engine     EngineConfig      `yaml:"engine"`
	Processors []ProcessorConfig `yaml:"processors"`
	Log        LogConfig         `yaml:"log"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Storage    StorageConfig     `yaml:"storage"`
	World      WorldConfig       `yaml:"world"`
}

type EngineConfig struct {
	// UpdateInterval is the target time between tick starts.
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// ProcessorConfig enables a registered processor. Order in the list is the
// registration order, which breaks priority ties.
type ProcessorConfig struct {
	Name string `yaml:"name"`
	// Priority overrides the processor's default when set.
	Priority *int  `yaml:"priority,omitempty"`
	Enabled  *bool `yaml:"enabled,omitempty"`
}

func (p ProcessorConfig) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type MetricsConfig struct {
	// Addr serves /metrics; empty disables the endpoint.
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	QueueSize int    `yaml:"queue_size"`
}

type WorldConfig struct {
	// StaticPath points at a YAML world definition loaded during setup.
	StaticPath string `yaml:"static_path"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Engine.UpdateInterval == 0 {
		c.Engine.UpdateInterval = 100 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = models.BackendMemory.String()
	}
	if c.Storage.QueueSize <= 0 {
		c.Storage.QueueSize = 64
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}
	if len(c.Processors) == 0 {
		c.Processors = []ProcessorConfig{{Name: "persistence"}}
	}
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	if c.Engine.UpdateInterval <= 0 {
		return fmt.Errorf("%w: engine.update_interval must be positive", ErrInvalidConfig)
	}
	b, ok := models.ParseBackend(c.Storage.Backend)
	if !ok {
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if (b == models.BackendSQLite || b == models.BackendBadger) && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required for %s", ErrInvalidConfig, b)
	}
	seen := make(map[string]bool, len(c.Processors))
	for i, p := range c.Processors {
		if p.Name == "" {
			return fmt.Errorf("%w: processors[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: processor %q listed twice", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// StorageBackend returns the parsed storage backend. Call after Validate.
func (c *Config) StorageBackend() models.Backend {
	b, _ := models.ParseBackend(c.Storage.Backend)
	return b
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the YAML file at path. If path is empty, MOONSILVER_CONFIG is
// consulted; if that is empty too, defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
		if path == "" {
			return Default(), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}
