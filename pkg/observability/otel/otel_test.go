package otel

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/tcp"
)

func newRecordingProvider() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)), sr
}

func testConn() *tcp.ConnContext {
	id := "c0ffee"
	return &tcp.ConnContext{
		Context:    core.WithConnID(context.Background(), id),
		ID:         id,
		RemoteAddr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
		LocalAddr:  &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000},
	}
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestConnectionMiddleware_RecordsSpan(t *testing.T) {
	tp, sr := newRecordingProvider()
	mw := ConnectionMiddleware(tp)

	ctx := testConn()
	parent := ctx.Context
	var inside trace.SpanContext
	err := mw(func(c *tcp.ConnContext) error {
		inside = trace.SpanContextFromContext(c.Context)
		assert.Equal(t, "c0ffee", core.ConnID(c.Context), "span context keeps the conn id")
		return nil
	})(ctx)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "tcp.conn", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, s.SpanContext().SpanID(), inside.SpanID())
	assert.Equal(t, "c0ffee", spanAttr(s, "conn.id").AsString())
	assert.Equal(t, "127.0.0.1:40000", spanAttr(s, "net.peer.addr").AsString())
	assert.Equal(t, codes.Unset, s.Status().Code)
	assert.Equal(t, parent, ctx.Context, "context restored after the handler")
}

func TestConnectionMiddleware_Error(t *testing.T) {
	tp, sr := newRecordingProvider()

	err := ConnectionMiddleware(tp)(func(*tcp.ConnContext) error {
		return errors.New("write failed")
	})(testConn())
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "write failed", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1, "error recorded as a span event")
}

func TestConnectionMiddleware_PanicEndsSpanAndRepanics(t *testing.T) {
	tp, sr := newRecordingProvider()

	assert.PanicsWithValue(t, "boom", func() {
		_ = ConnectionMiddleware(tp)(func(*tcp.ConnContext) error { panic("boom") })(testConn())
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.True(t, spanAttr(spans[0], "conn.panic").AsBool())
}

func TestNewTracerProvider_Exporters(t *testing.T) {
	for _, exporter := range []string{"", "none", "stdout", "zipkin", "jaeger"} {
		t.Run(exporter, func(t *testing.T) {
			tp, err := NewTracerProvider(Config{
				ServiceName: "poold-test",
				Exporter:    exporter,
				Endpoint:    "http://127.0.0.1:1/collector",
				SampleRate:  1,
				Writer:      &bytes.Buffer{},
			})
			require.NoError(t, err)
			require.NotNil(t, tp)
			// No spans were started, so nothing is sent to the endpoint.
			assert.NoError(t, tp.Shutdown(context.Background()))
		})
	}
}

func TestNewTracerProvider_UnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(Config{Exporter: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInitialize_StdoutExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Initialize(context.Background(), Config{
		ServiceName: "poold-test",
		Exporter:    "stdout",
		SampleRate:  1,
		Writer:      &buf,
	}))
	assert.True(t, IsInitialized())

	err := ConnectionMiddleware(nil)(func(*tcp.ConnContext) error { return nil })(testConn())
	require.NoError(t, err)

	require.NoError(t, Shutdown(context.Background()))
	assert.False(t, IsInitialized())
	assert.Contains(t, buf.String(), "tcp.conn")
	assert.Contains(t, buf.String(), "poold-test")

	assert.NoError(t, Shutdown(context.Background()), "second shutdown is a no-op")
}
