package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitWithExporterRecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter(context.Background(), "test-service", "s-1", exp)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "server.Frame")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "server.Frame", spans[0].Name)

	var session string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "game.session_id" {
			session = kv.Value.AsString()
		}
	}
	assert.Equal(t, "s-1", session)
	require.NoError(t, shutdown(context.Background()))
}
