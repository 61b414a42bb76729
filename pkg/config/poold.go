package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fluxorio/poold/pkg/core"
)

// EnvPrefix prefixes every environment override, e.g. POOLD_SERVER_WORKERS.
const EnvPrefix = "POOLD"

// Duration is a time.Duration that reads and writes as "500ms" in YAML,
// JSON and environment variables.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the poold configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Assets  AssetsConfig  `yaml:"assets" json:"assets"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the listener and its worker pool.
type ServerConfig struct {
	Addr            string   `yaml:"addr" json:"addr"`
	Workers         int      `yaml:"workers" json:"workers"`
	MaxConns        int      `yaml:"max_conns" json:"max_conns"`
	ReadTimeout     Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// ConnTimeout bounds a whole connection. Zero keeps only the read and
	// write timeouts.
	ConnTimeout Duration `yaml:"conn_timeout" json:"conn_timeout"`
}

// AssetsConfig configures the static files served over HTTP.
type AssetsConfig struct {
	Root string `yaml:"root" json:"root"`
	// Routes maps URL paths to files under Root. Empty means "/" -> index.html.
	Routes map[string]string `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// MetricsConfig configures the admin endpoint serving /metrics, /healthz and /stats.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	Exporter    string  `yaml:"exporter" json:"exporter"` // none, stdout, zipkin, jaeger
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":9000",
			Workers:         8,
			ReadTimeout:     Duration(500 * time.Millisecond),
			WriteTimeout:    Duration(5 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Assets: AssetsConfig{
			Root: "assets",
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "poold",
			Exporter:    "none",
			SampleRate:  1.0,
		},
	}
}

// LoadConfig builds the effective configuration: defaults, then the file at
// path (skipped when path is empty), then POOLD_* environment overrides.
// The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadWithEnv(path, EnvPrefix, cfg); err != nil {
			return nil, err
		}
	} else if err := ApplyEnvOverrides(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	return Validate(c,
		RequiredFields("Server.Addr", "Assets.Root"),
		RangeValidator("Server.Workers", 1, 1024),
		RangeValidator("Server.MaxConns", 0, math.MaxInt32),
		RangeValidator("Server.ReadTimeout", 1, math.MaxInt64),
		RangeValidator("Server.WriteTimeout", 1, math.MaxInt64),
		RangeValidator("Server.ShutdownTimeout", 0, math.MaxInt64),
		RangeValidator("Server.ConnTimeout", 0, math.MaxInt64),
		OneOfValidator("Tracing.Exporter", "none", "stdout", "zipkin", "jaeger"),
		RangeValidator("Tracing.SampleRate", 0, 1),
		ValidatorFunc(func(interface{}) error {
			_, err := core.ParseLevel(c.Log.Level)
			return err
		}),
		ValidatorFunc(func(interface{}) error {
			if c.Metrics.Enabled && c.Metrics.Addr == "" {
				return errors.New("metrics.addr is required when metrics are enabled")
			}
			return nil
		}),
		ValidatorFunc(func(interface{}) error {
			if !c.Tracing.Enabled {
				return nil
			}
			switch c.Tracing.Exporter {
			case "zipkin", "jaeger":
				if c.Tracing.Endpoint == "" {
					return fmt.Errorf("tracing.endpoint is required for the %s exporter", c.Tracing.Exporter)
				}
			}
			return nil
		}),
	)
}
