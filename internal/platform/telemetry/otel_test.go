package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false, ServiceName: "reqctx-service"})
	require.NoError(t, err)

	// Nothing is exported, but spans still carry valid IDs.
	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "GET /orders")
	span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Nil(t, p.meterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_ZeroUsesGlobal(t *testing.T) {
	var p Provider

	assert.Equal(t, otel.GetTracerProvider(), p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}
