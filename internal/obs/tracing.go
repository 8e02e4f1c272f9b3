// Package obs wires the ambient observability stack: the OpenTelemetry
// tracer used for per-server scan and detector-run spans, and Prometheus
// counters for the interception proxy. Adapted from the tracer-provider shape in
// digitallysavvy-go-ai's pkg/telemetry package (a stdout exporter behind a
// settings flag, falling back to a no-op tracer when disabled).
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	otrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies mcpsentry's spans in any collector.
const TracerName = "mcpsentry"

// TracerProvider wraps the SDK provider so callers can shut it down cleanly;
// nil is valid and means tracing is disabled (no-op tracer).
type TracerProvider struct {
	sdk *sdktrace.TracerProvider
}

// NewStdoutTracerProvider builds a provider that writes spans to stdout,
// pretty-printed, which is useful for `mcpsentry scan --trace` without standing up
// a collector. Pass enabled=false to get a provider whose Tracer() call
// returns a no-op tracer instead.
func NewStdoutTracerProvider(enabled bool) (*TracerProvider, error) {
	if !enabled {
		return &TracerProvider{}, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
	}
	sdk := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return &TracerProvider{sdk: sdk}, nil
}

// Tracer returns the configured tracer, or a no-op tracer if tracing is
// disabled.
func (tp *TracerProvider) Tracer() otrace.Tracer {
	if tp == nil || tp.sdk == nil {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return tp.sdk.Tracer(TracerName)
}

// Shutdown flushes and closes the underlying SDK provider, if any.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.sdk == nil {
		return nil
	}
	return tp.sdk.Shutdown(ctx)
}

// SetGlobal installs tp's tracer provider as the process-wide default so
// library code can call otel.Tracer(TracerName) directly.
func (tp *TracerProvider) SetGlobal() {
	if tp == nil || tp.sdk == nil {
		return
	}
	otel.SetTracerProvider(tp.sdk)
}
