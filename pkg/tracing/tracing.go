package tracing

import (
	"context"
	"io"

	"tripsync/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider that batches spans to out. When
// tracing is disabled the global no-op provider stays in place.
func Setup(enabled bool, out io.Writer, log *logger.Logger) (ShutdownFunc, error) {
	if !enabled {
		log.Info("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	log.Info("Tracing enabled", "exporter", "stdout")
	return tp.Shutdown, nil
}
