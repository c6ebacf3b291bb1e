package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/jepx/internal/config"
)

func TestSetupTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	tr, err := SetupTracing(context.Background(), &config.TracingConfig{Exporter: "stdout"}, &buf)
	require.NoError(t, err)

	_, span := tr.Provider().Tracer("test").Start(context.Background(), "fetcher:FetchFile")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name": "fetcher:FetchFile"`)
	assert.Contains(t, out, `"service.name"`)
	assert.Contains(t, out, `"jepx"`)
}

func TestSetupTracingNone(t *testing.T) {
	var buf bytes.Buffer
	tr, err := SetupTracing(context.Background(), &config.TracingConfig{Exporter: "none"}, &buf)
	require.NoError(t, err)
	assert.NotNil(t, tr.Provider())
	assert.NoError(t, tr.Shutdown(context.Background()))
	assert.Empty(t, buf.String())

	var nilTracing *Tracing
	assert.NoError(t, nilTracing.Shutdown(context.Background()))
}

func TestSetupTracingUnknownExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), &config.TracingConfig{Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, `unknown exporter "zipkin"`)
}
