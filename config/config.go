// Package config provides layered configuration for the engine: defaults,
// user config, project config, then flags, each overriding the last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lnaes/engine/pipeline"
)

var validate = validator.New()

// Config is the complete engine configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Ontology  OntologyConfig  `yaml:"ontology"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Schemas   SchemasConfig   `yaml:"schemas"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string          `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// ProviderConfig configures the generation provider.
type ProviderConfig struct {
	// URL is the generation endpoint. Empty selects the builtin passthrough
	// provider, which echoes normalized source as the initial draft.
	URL string `yaml:"url" validate:"omitempty,url"`

	// Timeout is the maximum time to wait for a generation response.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// OntologyConfig locates the knowledge base.
type OntologyConfig struct {
	// Path is the YAML knowledge-base file. Empty runs with an empty
	// in-memory base; WEIGHT then passes entities through unweighted.
	Path string `yaml:"path"`

	// Version pins the required knowledge-base version. Empty accepts any.
	Version string `yaml:"version"`
}

// PipelineConfig bounds the run loop.
type PipelineConfig struct {
	// MaxIterations is the convergence budget: rewrite attempts before a
	// run is declared exhausted.
	MaxIterations int `yaml:"max_iterations" validate:"gte=1,lte=50"`

	// CallTimeout bounds each external operator call.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gt=0"`

	Retry pipeline.RetryConfig `yaml:"retry"`
}

// SchemasConfig configures operator contract schemas.
type SchemasConfig struct {
	// Dir holds schema YAML files layered over the builtin contracts.
	// Empty disables file loading and hot reload.
	Dir string `yaml:"dir"`

	// Watch enables hot reload of schema files in Dir.
	Watch bool `yaml:"watch"`
}

// NATSConfig configures audit card publishing.
type NATSConfig struct {
	// URL is the NATS server. Empty disables publishing.
	URL string `yaml:"url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with working defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			URL:     "",
			Timeout: 2 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxIterations: 5,
			CallTimeout:   60 * time.Second,
			Retry:         pipeline.DefaultRetryConfig(),
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Pipeline.Retry.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.retry.max_attempts must be at least 1")
	}
	return nil
}

// LoadFromFile reads a YAML config file over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Merge overlays other onto c; other's non-zero values win.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Provider.URL != "" {
		c.Provider.URL = other.Provider.URL
	}
	if other.Provider.Timeout != 0 {
		c.Provider.Timeout = other.Provider.Timeout
	}
	if other.Ontology.Path != "" {
		c.Ontology.Path = other.Ontology.Path
	}
	if other.Ontology.Version != "" {
		c.Ontology.Version = other.Ontology.Version
	}
	if other.Pipeline.MaxIterations != 0 {
		c.Pipeline.MaxIterations = other.Pipeline.MaxIterations
	}
	if other.Pipeline.CallTimeout != 0 {
		c.Pipeline.CallTimeout = other.Pipeline.CallTimeout
	}
	if other.Pipeline.Retry.MaxAttempts != 0 {
		c.Pipeline.Retry = other.Pipeline.Retry
	}
	if other.Schemas.Dir != "" {
		c.Schemas.Dir = other.Schemas.Dir
		c.Schemas.Watch = other.Schemas.Watch
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
