package xkeylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
)

// keyLockImpl 是 Locker 的实现：Registry 负责原子占用，本类型负责等待协议。
type keyLockImpl struct {
	registry Registry
	snapshot Snapshotter // Registry 未实现 Snapshotter 时为 nil
	opts     *options
	logger   xlog.Logger
	metrics  *lockMetrics
	tracer   trace.Tracer
	held     atomic.Int64
	closed   atomic.Bool
	done     chan struct{}
}

func newKeyLockImpl(opts *options) (*keyLockImpl, error) {
	reg := opts.registry
	if reg == nil {
		sharded, err := NewShardedRegistry(opts.shardCount)
		if err != nil {
			return nil, err
		}
		reg = sharded
	}
	logger := opts.logger
	if logger == nil {
		logger = xlog.Nop()
	}
	kl := &keyLockImpl{
		registry: reg,
		opts:     opts,
		logger:   logger.With(xlog.Component(componentName)),
		tracer:   getTracer(opts.tracerProvider),
		done:     make(chan struct{}),
	}
	kl.snapshot, _ = reg.(Snapshotter)

	m, err := newLockMetrics(opts.meterProvider, opts.disableKeyAttribute, kl.held.Load)
	if err != nil {
		return nil, fmt.Errorf("xkeylock: init metrics: %w", err)
	}
	kl.metrics = m
	return kl, nil
}

func (kl *keyLockImpl) Acquire(ctx context.Context, key string, opts ...AcquireOption) (g Guard, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	o := resolveAcquireOptions(kl.opts.defaults, opts)

	start := time.Now()
	ctx, span := startSpan(ctx, kl.tracer, spanNameAcquire,
		trace.WithAttributes(acquireSpanAttributes(key, kl.opts.disableKeyAttribute)...))
	attempts := 0
	defer func() {
		waited := time.Since(start)
		finishAcquireSpan(span, attempts, err)
		kl.metrics.recordAcquire(ctx, opAcquire, key, attempts, waited, err)
		kl.logAcquire(ctx, key, attempts, waited, err)
	}()

	g, attempts, err = kl.acquire(ctx, key, &o, start)
	if err != nil && isTerminal(err) {
		err = fmt.Errorf("%w: key %q, %d attempts", err, key, attempts)
	}
	return g, err
}

// acquire 执行等待协议，返回 Guard、实际调用 TryClaim 的次数和错误。
//
// 每轮顺序：取消检查 → TryClaim → 取消检查 → 超时检查 → 次数检查 → 退避等待。
// 超时到期前的最后一次等待会被截短到截止时间，醒来后再尝试一次。
func (kl *keyLockImpl) acquire(ctx context.Context, key string, o *acquireOptions, start time.Time) (Guard, int, error) {
	var deadline time.Time
	if o.hasTimeout {
		deadline = start.Add(o.timeout)
	}
	var cancelCh <-chan struct{}
	if o.cancel != nil {
		cancelCh = o.cancel.Done()
	}
	bo := newBackoff(o)

	for attempt := 1; ; attempt++ {
		if err := cancelled(ctx, o.cancel); err != nil {
			return nil, attempt - 1, err
		}
		if kl.closed.Load() {
			return nil, attempt - 1, ErrClosed
		}

		if gen, ok := kl.registry.TryClaim(key); ok {
			return kl.newGuard(key, gen), attempt, nil
		}

		if err := cancelled(ctx, o.cancel); err != nil {
			return nil, attempt, err
		}
		now := time.Now()
		if o.hasTimeout && !now.Before(deadline) {
			return nil, attempt, ErrTimedOut
		}
		if err := ctx.Err(); errors.Is(err, context.DeadlineExceeded) {
			return nil, attempt, fmt.Errorf("%w: %w", ErrTimedOut, err)
		}
		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			return nil, attempt, ErrTooManyAttempts
		}

		delay := bo.next()
		if o.hasTimeout {
			delay = min(delay, deadline.Sub(now))
		}
		if o.onWait != nil {
			o.onWait(attempt, delay)
		}
		kl.logger.Debug(ctx, "key contended, backing off",
			xlog.LockKey(key), xlog.Attempt(attempt), xlog.Delay(delay))

		if err := kl.wait(ctx, cancelCh, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// wait 睡眠 d，可被取消信号、ctx 和 Close 打断。
func (kl *keyLockImpl) wait(ctx context.Context, cancel <-chan struct{}, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-cancel:
		return ErrCancelled
	case <-ctx.Done():
		return contextError(ctx.Err())
	case <-kl.done:
		return ErrClosed
	}
}

// cancelled 检查取消信号与 ctx 取消。ctx deadline 到期不算取消，由超时检查处理。
func cancelled(ctx context.Context, s Signal) error {
	if signaled(s) {
		return ErrCancelled
	}
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// contextError 将 ctx 错误映射为获取失败的终态错误，同时保留原始错误链。
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimedOut) || errors.Is(err, ErrTooManyAttempts)
}

func (kl *keyLockImpl) logAcquire(ctx context.Context, key string, attempts int, waited time.Duration, err error) {
	switch {
	case err == nil:
		if attempts > 1 {
			kl.logger.Debug(ctx, "key acquired after waiting",
				xlog.LockKey(key), xlog.Attempt(attempts), xlog.Waited(waited))
		}
	case errors.Is(err, ErrTimedOut), errors.Is(err, ErrTooManyAttempts):
		kl.logger.Warn(ctx, "key acquisition failed",
			xlog.LockKey(key), xlog.Attempt(attempts), xlog.Waited(waited), xlog.Err(err))
	default:
		kl.logger.Debug(ctx, "key acquisition aborted",
			xlog.LockKey(key), xlog.Attempt(attempts), xlog.Err(err))
	}
}

func (kl *keyLockImpl) TryAcquire(key string) (Guard, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if kl.closed.Load() {
		return nil, ErrClosed
	}
	ctx := context.Background()
	start := time.Now()
	gen, ok := kl.registry.TryClaim(key)
	if !ok {
		kl.metrics.recordAcquire(ctx, opTryAcquire, key, 1, time.Since(start), ErrLockOccupied)
		return nil, ErrLockOccupied
	}
	kl.metrics.recordAcquire(ctx, opTryAcquire, key, 1, time.Since(start), nil)
	return kl.newGuard(key, gen), nil
}

func (kl *keyLockImpl) Do(ctx context.Context, key string, fn func(ctx context.Context) error, opts ...AcquireOption) error {
	g, err := kl.Acquire(ctx, key, opts...)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

func (kl *keyLockImpl) Len() int {
	return int(max(kl.held.Load(), 0))
}

func (kl *keyLockImpl) Keys() []string {
	if kl.snapshot == nil {
		return nil
	}
	return kl.snapshot.Keys()
}

func (kl *keyLockImpl) Close() error {
	if !kl.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(kl.done)
	return kl.metrics.close()
}

// release 归还 guard 对应的条目。leaked 为 true 表示由 GC 清理触发。
func (kl *keyLockImpl) release(st *guardState, leaked bool) {
	ctx := context.Background()
	removed := kl.registry.Release(st.key, st.gen)
	kl.held.Add(-1)

	if !removed {
		// 条目缺失或 Generation 不匹配说明有人绕过 Guard 改动了 Registry。
		kl.metrics.recordReleaseMismatch(ctx, st.key)
		kl.logger.Stack(ctx, "registry entry missing on release",
			xlog.LockKey(st.key), slog.Uint64(xlog.KeyGeneration, uint64(st.gen)))
		return
	}
	kl.metrics.recordRelease(ctx, st.key)

	if leaked {
		kl.metrics.recordLeaked(ctx, st.key)
		kl.logger.Warn(ctx, "guard collected without Release, key released by cleanup",
			xlog.LockKey(st.key), slog.Uint64(xlog.KeyGeneration, uint64(st.gen)))
	}
}

// 编译期接口检查。
var _ Locker = (*keyLockImpl)(nil)
