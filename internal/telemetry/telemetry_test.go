package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "ideafit", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestProviderRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := NewProvider("ideafit-test", sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "insight.complete")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "insight.complete", ended[0].Name())
	v, ok := ended[0].Resource().Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "ideafit-test", v.AsString())
}
