package xkeylock

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 设计决策: 指标前缀使用 "xkeylock.*"，与 Meter scope 名称一致。
const (
	metricNameAcquireTotal    = "xkeylock.acquire.total"
	metricNameAcquireDuration = "xkeylock.acquire.duration"
	metricNameAcquireAttempts = "xkeylock.acquire.attempts"
	metricNameReleaseTotal    = "xkeylock.release.total"
	metricNameReleaseMismatch = "xkeylock.release.mismatch"
	metricNameGuardLeaked     = "xkeylock.guard.leaked"
	metricNameKeysHeld        = "xkeylock.keys.held"
)

// 获取结果标签取值。
const (
	resultAcquired        = "acquired"
	resultOccupied        = "occupied"
	resultCancelled       = "cancelled"
	resultTimedOut        = "timed_out"
	resultTooManyAttempts = "too_many_attempts"
	resultClosed          = "closed"
	resultError           = "error"
)

// 操作标签取值。
const (
	opAcquire    = "acquire"
	opTryAcquire = "try_acquire"
)

// durationBuckets 等待耗时直方图的桶边界（秒）
var durationBuckets = []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

// attemptBuckets 尝试次数直方图的桶边界
var attemptBuckets = []float64{1, 2, 4, 8, 16, 32, 64, 128}

// lockMetrics 收集 Locker 指标。nil 接收者上的方法均为空操作。
type lockMetrics struct {
	acquireTotal    metric.Int64Counter
	acquireDuration metric.Float64Histogram
	acquireAttempts metric.Int64Histogram
	releaseTotal    metric.Int64Counter
	releaseMismatch metric.Int64Counter
	guardLeaked     metric.Int64Counter
	registration    metric.Registration
	disableKey      bool
}

// newLockMetrics 创建指标收集器。meterProvider 为 nil 时返回 nil（不采集指标）。
// held 用于异步上报当前持有的 key 数量。
func newLockMetrics(mp metric.MeterProvider, disableKey bool, held func() int64) (*lockMetrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter(componentName, metric.WithInstrumentationVersion(instrumentationVersion))
	m := &lockMetrics{disableKey: disableKey}

	var err error
	if m.acquireTotal, err = meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("key 获取次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.acquireDuration, err = meter.Float64Histogram(metricNameAcquireDuration,
		metric.WithDescription("key 获取耗时（含等待）"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.acquireAttempts, err = meter.Int64Histogram(metricNameAcquireAttempts,
		metric.WithDescription("单次获取的占用尝试次数"), metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(attemptBuckets...)); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("key 释放次数"), metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.releaseMismatch, err = meter.Int64Counter(metricNameReleaseMismatch,
		metric.WithDescription("释放时 Registry 条目缺失或 Generation 不匹配的次数"),
		metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.guardLeaked, err = meter.Int64Counter(metricNameGuardLeaked,
		metric.WithDescription("未调用 Release 即被回收的 Guard 数量"), metric.WithUnit("{guard}")); err != nil {
		return nil, err
	}

	keysHeld, err := meter.Int64ObservableGauge(metricNameKeysHeld,
		metric.WithDescription("当前被持有的 key 数量"), metric.WithUnit("{key}"))
	if err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(keysHeld, held())
		return nil
	}, keysHeld)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *lockMetrics) keyAttrs(key string, attrs ...attribute.KeyValue) []attribute.KeyValue {
	if !m.disableKey {
		attrs = append(attrs, attribute.String(attrKey, key))
	}
	return attrs
}

// recordAcquire 记录一次获取结果。
func (m *lockMetrics) recordAcquire(ctx context.Context, op, key string, attempts int, waited time.Duration, err error) {
	if m == nil {
		return
	}
	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	ctx = context.WithoutCancel(ctx)
	set := metric.WithAttributes(m.keyAttrs(key,
		attribute.String(attrOperation, op),
		attribute.String(attrResult, resultOf(err)),
	)...)
	m.acquireTotal.Add(ctx, 1, set)
	m.acquireDuration.Record(ctx, waited.Seconds(), set)
	m.acquireAttempts.Record(ctx, int64(attempts), set)
}

func (m *lockMetrics) recordRelease(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.releaseTotal.Add(ctx, 1, metric.WithAttributes(m.keyAttrs(key)...))
}

func (m *lockMetrics) recordReleaseMismatch(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.releaseMismatch.Add(ctx, 1, metric.WithAttributes(m.keyAttrs(key)...))
}

func (m *lockMetrics) recordLeaked(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.guardLeaked.Add(ctx, 1, metric.WithAttributes(m.keyAttrs(key)...))
}

func (m *lockMetrics) close() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// resultOf 将获取错误归类为指标标签。
func resultOf(err error) string {
	switch {
	case err == nil:
		return resultAcquired
	case errors.Is(err, ErrLockOccupied):
		return resultOccupied
	case errors.Is(err, ErrCancelled):
		return resultCancelled
	case errors.Is(err, ErrTimedOut):
		return resultTimedOut
	case errors.Is(err, ErrTooManyAttempts):
		return resultTooManyAttempts
	case errors.Is(err, ErrClosed):
		return resultClosed
	default:
		return resultError
	}
}
