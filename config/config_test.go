package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Empty(t, c.Provider.URL)
	assert.Equal(t, 2*time.Minute, c.Provider.Timeout)
	assert.Equal(t, 5, c.Pipeline.MaxIterations)
	assert.Equal(t, 60*time.Second, c.Pipeline.CallTimeout)
	assert.Equal(t, 3, c.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider url", func(c *Config) { c.Provider.URL = "not a url" }},
		{"zero provider timeout", func(c *Config) { c.Provider.Timeout = 0 }},
		{"zero iterations", func(c *Config) { c.Pipeline.MaxIterations = 0 }},
		{"excessive iterations", func(c *Config) { c.Pipeline.MaxIterations = 51 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero retry attempts", func(c *Config) { c.Pipeline.Retry.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lnaes.yaml")
	content := `provider:
  url: https://gen.example.com/v1
ontology:
  path: /etc/lnaes/ontology.yaml
  version: "2024.1"
pipeline:
  max_iterations: 7
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gen.example.com/v1", c.Provider.URL)
	assert.Equal(t, "2024.1", c.Ontology.Version)
	assert.Equal(t, 7, c.Pipeline.MaxIterations)
	assert.Equal(t, "debug", c.LogLevel)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 2*time.Minute, c.Provider.Timeout)
	assert.Equal(t, "text", c.LogFormat)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMergePrecedence(t *testing.T) {
	base := DefaultConfig()
	base.Ontology.Path = "/base/ontology.yaml"

	overlay := &Config{}
	overlay.Provider.URL = "https://gen.example.com/v1"
	overlay.Pipeline.MaxIterations = 9
	overlay.LogLevel = "warn"

	base.Merge(overlay)

	assert.Equal(t, "https://gen.example.com/v1", base.Provider.URL)
	assert.Equal(t, 9, base.Pipeline.MaxIterations)
	assert.Equal(t, "warn", base.LogLevel)
	// Zero values in the overlay never clobber the base.
	assert.Equal(t, "/base/ontology.yaml", base.Ontology.Path)
	assert.Equal(t, 60*time.Second, base.Pipeline.CallTimeout)
	assert.Equal(t, 3, base.Pipeline.Retry.MaxAttempts)

	base.Merge(nil)
	assert.Equal(t, "warn", base.LogLevel)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lnaes.yaml")

	c := DefaultConfig()
	c.NATS.URL = "nats://localhost:4222"
	c.Metrics.Addr = ":9090"
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.NATS.URL, loaded.NATS.URL)
	assert.Equal(t, c.Metrics.Addr, loaded.Metrics.Addr)
	assert.Equal(t, c.Pipeline.MaxIterations, loaded.Pipeline.MaxIterations)
}
