package otel

import (
	"fmt"

	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/poold/pkg/tcp"
)

const tracerName = "github.com/fluxorio/poold/pkg/tcp"

// ConnectionMiddleware opens a server span around each connection handler
// and stores it in ctx.Context for the handler. A nil provider means the
// global one.
func ConnectionMiddleware(tp trace.TracerProvider) tcp.Middleware {
	return func(next tcp.ConnectionHandler) tcp.ConnectionHandler {
		return func(ctx *tcp.ConnContext) error {
			provider := tp
			if provider == nil {
				provider = gootel.GetTracerProvider()
			}

			spanCtx, span := provider.Tracer(tracerName).Start(ctx.Context, "tcp.conn",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("conn.id", ctx.ID),
					attribute.String("net.peer.addr", addrString(ctx.RemoteAddr)),
					attribute.String("net.local.addr", addrString(ctx.LocalAddr)),
				),
			)
			defer span.End()

			parent := ctx.Context
			ctx.Context = spanCtx
			defer func() { ctx.Context = parent }()

			defer func() {
				if r := recover(); r != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
					span.SetAttributes(attribute.Bool("conn.panic", true))
					panic(r)
				}
			}()

			err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

func addrString(a interface{ String() string }) string {
	if a == nil {
		return ""
	}
	return a.String()
}
