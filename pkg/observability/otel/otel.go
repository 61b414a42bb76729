// Package otel wires OpenTelemetry tracing for poold: a tracer provider
// built from configuration and a tcp middleware that opens one span per
// connection.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config configures tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exporter is one of "none", "stdout", "zipkin" or "jaeger".
	Exporter string
	// Endpoint is the collector URL for zipkin and jaeger.
	Endpoint string
	// SampleRate is the share of root spans sampled, 0..1.
	SampleRate float64

	// Writer receives stdout exporter output. Nil means os.Stdout.
	Writer io.Writer
}

// ErrUnknownExporter is returned for an Exporter name that is not supported.
var ErrUnknownExporter = errors.New("otel: unknown exporter")

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// NewTracerProvider builds a tracer provider for config without installing it.
func NewTracerProvider(config Config) (*sdktrace.TracerProvider, error) {
	exporter, err := newExporter(config)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", config.ServiceName)}
	if config.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", config.ServiceVersion))
	}
	if config.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", config.Environment))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newExporter(config Config) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case "zipkin":
		return zipkin.New(config.Endpoint)
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.Endpoint)))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, config.Exporter)
	}
}

// Initialize builds a tracer provider and installs it as the global one.
// Calling it again replaces (and shuts down) the previous provider.
func Initialize(ctx context.Context, config Config) error {
	tp, err := NewTracerProvider(config)
	if err != nil {
		return fmt.Errorf("otel initialize: %w", err)
	}

	mu.Lock()
	prev := provider
	provider = tp
	mu.Unlock()

	gootel.SetTracerProvider(tp)
	if prev != nil {
		return prev.Shutdown(ctx)
	}
	return nil
}

// IsInitialized reports whether Initialize has installed a provider.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Shutdown flushes and stops the provider installed by Initialize.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
