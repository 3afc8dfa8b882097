package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RequiresServiceName(t *testing.T) {
	_, err := NewProvider("", "")
	require.Error(t, err)
}

func TestProvider_StartSpanAndRecordMetric(t *testing.T) {
	p, err := NewProvider("nexus-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "unit.test")
	require.NotNil(t, ctx)
	span.SetAttribute("key", "value")
	span.RecordError(nil)
	span.End()

	assert.NotPanics(t, func() {
		p.RecordMetric("pipeline.repair.duration_ms", 42, map[string]string{"module_id": "finance/plaid"})
		p.RecordMetric("pipeline.repair.attempts", 1, map[string]string{"module_id": "finance/plaid"})
	})
}

func TestProvider_ShutdownIsIdempotent(t *testing.T) {
	p, err := NewProvider("nexus-test", "")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestIsCounterMetric(t *testing.T) {
	assert.True(t, isCounterMetric("pipeline.repair.attempts_total"))
	assert.True(t, isCounterMetric("gateway.generate.errors"))
	assert.True(t, isCounterMetric("success_count"))
	assert.False(t, isCounterMetric("gateway.generate.duration_ms"))
	assert.False(t, isCounterMetric("delegation.classification.complexity"))
}
