package xkeylock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumByResult 汇总计数器中指定 result 标签的数据点。
func sumByResult(t *testing.T, m metricdata.Metrics, result string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attrResult); ok && v.AsString() == result {
			total += dp.Value
		}
	}
	return total
}

func TestNewLockMetrics(t *testing.T) {
	m, err := newLockMetrics(nil, false, func() int64 { return 0 })
	require.NoError(t, err)
	assert.Nil(t, m)

	// nil 接收者上的记录方法均为空操作
	m.recordAcquire(context.Background(), opAcquire, "k", 1, 0, nil)
	m.recordRelease(context.Background(), "k")
	assert.NoError(t, m.close())

	m, err = newLockMetrics(noop.NewMeterProvider(), false, func() int64 { return 0 })
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestMetrics_AcquireAndRelease(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	kl := newForTest(t, WithMeterProvider(mp))
	ctx := context.Background()

	g, err := kl.Acquire(ctx, "order:1")
	require.NoError(t, err)

	_, err = kl.TryAcquire("order:1")
	require.ErrorIs(t, err, ErrLockOccupied)
	_, err = kl.Acquire(ctx, "order:1", WithTimeout(0))
	require.ErrorIs(t, err, ErrTimedOut)

	got := collect(t, reader)

	total := got[metricNameAcquireTotal]
	assert.Equal(t, int64(1), sumByResult(t, total, resultAcquired))
	assert.Equal(t, int64(1), sumByResult(t, total, resultOccupied))
	assert.Equal(t, int64(1), sumByResult(t, total, resultTimedOut))

	held, ok := got[metricNameKeysHeld].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, held.DataPoints, 1)
	assert.Equal(t, int64(1), held.DataPoints[0].Value)

	assert.Contains(t, got, metricNameAcquireDuration)
	assert.Contains(t, got, metricNameAcquireAttempts)

	g.Release()
	got = collect(t, reader)
	rel, ok := got[metricNameReleaseTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rel.DataPoints, 1)
	assert.Equal(t, int64(1), rel.DataPoints[0].Value)
	key, _ := rel.DataPoints[0].Attributes.Value(attrKey)
	assert.Equal(t, "order:1", key.AsString())
}

func TestMetrics_DisableKeyAttribute(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	kl := newForTest(t, WithMeterProvider(mp), WithDisableKeyAttribute())

	g, err := kl.Acquire(context.Background(), "user:12345")
	require.NoError(t, err)
	g.Release()

	sum, ok := collect(t, reader)[metricNameAcquireTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range sum.DataPoints {
		_, has := dp.Attributes.Value(attrKey)
		assert.False(t, has, "key attribute must be omitted")
	}
}

func TestTracing_AcquireSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	kl := newForTest(t, WithTracerProvider(tp))

	g, err := kl.Acquire(context.Background(), "k")
	require.NoError(t, err)
	_, err = kl.Acquire(context.Background(), "k", WithMaxAttempts(1))
	require.ErrorIs(t, err, ErrTooManyAttempts)
	g.Release()

	spans := sr.Ended()
	require.Len(t, spans, 2)

	succeeded := spans[0]
	assert.Equal(t, spanNameAcquire, succeeded.Name())
	assert.Equal(t, codes.Ok, succeeded.Status().Code)
	assert.Contains(t, succeeded.Attributes(), attribute.String(attrKey, "k"))
	assert.Contains(t, succeeded.Attributes(), attribute.Int(attrAttempts, 1))
	assert.Contains(t, succeeded.Attributes(), attribute.String(attrResult, resultAcquired))

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Attributes(), attribute.String(attrResult, resultTooManyAttempts))
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, resultAcquired},
		{ErrLockOccupied, resultOccupied},
		{contextError(context.Canceled), resultCancelled},
		{contextError(context.DeadlineExceeded), resultTimedOut},
		{ErrTooManyAttempts, resultTooManyAttempts},
		{ErrClosed, resultClosed},
		{ErrInvalidKey, resultError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultOf(tt.err))
	}
}
