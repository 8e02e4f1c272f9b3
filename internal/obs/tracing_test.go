package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStdoutTracerProvider_DisabledReturnsNoopTracer(t *testing.T) {
	tp, err := NewStdoutTracerProvider(false)
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewStdoutTracerProvider_EnabledStartsASpan(t *testing.T) {
	tp, err := NewStdoutTracerProvider(true)
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer().Start(context.Background(), "scan")
	require.True(t, span.SpanContext().HasTraceID())
	span.End()
}
