package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "assets", cfg.Assets.Root)
	assert.Empty(t, cfg.Assets.Routes)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := createTempFile(t, "poold.yaml", `
server:
  addr: "127.0.0.1:7878"
  workers: 4
  read_timeout: 250ms
assets:
  root: "/srv/www"
  routes:
    "/": index.html
    "/about": about.html
tracing:
  enabled: true
  exporter: zipkin
  endpoint: http://zipkin:9411/api/v2/spans
  sample_rate: 0.5
`)
	t.Setenv("POOLD_SERVER_WORKERS", "16")
	t.Setenv("POOLD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7878", cfg.Server.Addr)
	assert.Equal(t, 16, cfg.Server.Workers, "env overrides the file")
	assert.Equal(t, 250*time.Millisecond, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout.Std(), "defaults survive a partial file")
	assert.Equal(t, map[string]string{"/": "index.html", "/about": "about.html"}, cfg.Assets.Routes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Server.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Server.Workers = 4096 }},
		{"negative max conns", func(c *Config) { c.Server.MaxConns = -1 }},
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"no asset root", func(c *Config) { c.Assets.Root = "" }},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "carrier-pigeon" }},
		{"sample rate above 1", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
		{"metrics without addr", func(c *Config) { c.Metrics.Addr = "" }},
		{"jaeger without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	t.Setenv("POOLD_SERVER_WORKERS", "0")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, Default()))

	out := buf.String()
	assert.Contains(t, out, "read_timeout: 500ms")
	assert.Contains(t, out, "workers: 8")

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, Default(), &back)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestConfig_ValidateNamesField(t *testing.T) {
	cfg := Default()
	cfg.Server.ReadTimeout = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.read_timeout = 0s")
}
