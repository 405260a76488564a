package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tr, shutdown := NewTracer(TraceConfig{})
	assert.False(t, tr.Enabled())

	ctx, span := tr.Start(context.Background(), "run", attribute.String("thread_id", "t"))
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(-1).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
