package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopLoggerDiscardsAllLevelsWithoutPanicking(t *testing.T) {
	t.Parallel()
	l := NewNoopLogger()
	ctx := context.Background()
	assert.NotPanics(t, func() {
		l.Debug(ctx, "debug", "k", "v")
		l.Info(ctx, "info")
		l.Warn(ctx, "warn", "k", 1)
		l.Error(ctx, "error")
	})
}

func TestNoopMetricsDiscardsWithoutPanicking(t *testing.T) {
	t.Parallel()
	m := NewNoopMetrics()
	assert.NotPanics(t, func() {
		m.IncCounter("requests", 1, "tool", "search")
		m.RecordTimer("latency", 0)
		m.RecordGauge("queue_depth", 3)
	})
}

func TestNoopTracerReturnsUsableSpan(t *testing.T) {
	t.Parallel()
	tr := NewNoopTracer()
	ctx, span := tr.Start(context.Background(), "step")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("started")
		span.SetStatus(0, "")
		span.RecordError(nil)
		span.End()
	})
}

func TestKvSliceToClueConvertsPairsAndDropsTrailingUnpaired(t *testing.T) {
	t.Parallel()
	fielders := kvSliceToClue([]any{"step_id", 1, "tool", "search", "orphan"})
	assert.Len(t, fielders, 2)
}

func TestKvSliceToClueSkipsNonStringKeys(t *testing.T) {
	t.Parallel()
	fielders := kvSliceToClue([]any{42, "value"})
	assert.Empty(t, fielders)
}

func TestTagsToAttrsPairsTagsIntoStringAttributes(t *testing.T) {
	t.Parallel()
	attrs := tagsToAttrs([]string{"tool", "search", "status"})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("tool", "search"),
		attribute.String("status", ""),
	}, attrs)
}

func TestKvSliceToAttrsPicksAttributeTypeByValue(t *testing.T) {
	t.Parallel()
	attrs := kvSliceToAttrs([]any{
		"name", "search",
		"count", 3,
		"total", int64(9),
		"ratio", 0.5,
		"ok", true,
	})
	require := assert.New(t)
	require.Equal(attribute.String("name", "search"), attrs[0])
	require.Equal(attribute.Int("count", 3), attrs[1])
	require.Equal(attribute.Int64("total", 9), attrs[2])
	require.Equal(attribute.Float64("ratio", 0.5), attrs[3])
	require.Equal(attribute.Bool("ok", true), attrs[4])
}
