package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "written"),
		attribute.String("site_id", "456"),
		attribute.String("kind", "detailed"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("outcome"))
	assert.Contains(t, keys, attribute.Key("kind"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordAllocationOutcome(ctx, "skipped", "missing_aggregate_total")
		m.RecordAllocationRun(ctx, "completed", time.Second)
		m.RecordImportRows(ctx, "detailed", "ok", 3)
		m.RecordUpsertConflict(ctx, "emission")
		m.RecordGeocodeLookup(ctx, "hit")
		m.RecordRateLimitDenied(ctx, "imports", "rate_limited")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "verdant"}, noop.NewMeterProvider())
	require.NoError(t, err)
	require.NotNil(t, m)
	m.RecordAllocationOutcome(context.Background(), "written", "")
}
