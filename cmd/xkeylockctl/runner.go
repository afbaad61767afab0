package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
	"github.com/omeyang/multikeylock/pkg/util/xkeylock"
)

// 失败原因，与 xkeylock 指标的 result 标签取值一致。
const (
	failTimedOut        = "timed_out"
	failTooManyAttempts = "too_many_attempts"
	failCancelled       = "cancelled"
	failClosed          = "closed"
)

// defaultRetryDelay 是外层重试两次 Acquire 之间的固定间隔。
const defaultRetryDelay = time.Millisecond

// workload 描述一次压测：workers 个 worker 各执行 ops 次"获取 → 持有 hold → 释放"。
type workload struct {
	name    string
	workers int
	ops     int
	hold    time.Duration
	keys    []string
	// random 为 true 时每次随机挑选 key，否则按 worker 编号与轮次轮转。
	random bool
	// retries 是 Acquire 以超时或次数上限失败后的外层重试次数。
	retries     int
	retryDelay  time.Duration
	acquireOpts []xkeylock.AcquireOption
}

func (w *workload) validate() error {
	if w.workers <= 0 {
		return newUsageError("--workers must be > 0, got %d", w.workers)
	}
	if w.ops <= 0 {
		return newUsageError("ops per worker must be > 0, got %d", w.ops)
	}
	if w.hold < 0 {
		return newUsageError("--hold must be >= 0, got %s", w.hold)
	}
	if w.retries < 0 {
		return newUsageError("--retries must be >= 0, got %d", w.retries)
	}
	if len(w.keys) == 0 {
		return newUsageError("at least one key is required")
	}
	for _, k := range w.keys {
		if k == "" {
			return newUsageError("key must not be empty")
		}
	}
	return nil
}

// report 是一次压测的结果。
type report struct {
	Workload   string
	Workers    int
	Keys       int
	Ops        int
	Acquired   int64
	Retries    int64
	Failures   map[string]int64
	MaxHolders int32
	Violations int64
	Elapsed    time.Duration
}

func (r *report) failed() int64 {
	var n int64
	for _, c := range r.Failures {
		n += c
	}
	return n
}

// Violated 报告是否观察到同一 key 同时有多个持有者。
func (r *report) Violated() bool {
	return r.Violations > 0 || r.MaxHolders > 1
}

func (r *report) write(w io.Writer) {
	fmt.Fprintf(w, "workload:     %s (workers=%d keys=%d ops/worker=%d)\n", r.Workload, r.Workers, r.Keys, r.Ops)
	fmt.Fprintf(w, "acquired:     %d\n", r.Acquired)
	fmt.Fprintf(w, "failed:       %d", r.failed())
	if len(r.Failures) > 0 {
		kinds := make([]string, 0, len(r.Failures))
		for k := range r.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprint(w, " (")
		for i, k := range kinds {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%s=%d", k, r.Failures[k])
		}
		fmt.Fprint(w, ")")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "retries:      %d\n", r.Retries)
	fmt.Fprintf(w, "max holders:  %d\n", r.MaxHolders)
	fmt.Fprintf(w, "elapsed:      %s\n", r.Elapsed.Round(time.Microsecond))
	if secs := r.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "throughput:   %.0f ops/s\n", float64(r.Acquired)/secs)
	}
}

// holderTracker 统计每个 key 的同时持有者数量。
type holderTracker struct {
	holders    map[string]*atomic.Int32
	maxHolders atomic.Int32
	violations atomic.Int64
}

func newHolderTracker(keys []string) *holderTracker {
	t := &holderTracker{holders: make(map[string]*atomic.Int32, len(keys))}
	for _, k := range keys {
		t.holders[k] = new(atomic.Int32)
	}
	return t
}

func (t *holderTracker) enter(key string) {
	n := t.holders[key].Add(1)
	if n > 1 {
		t.violations.Add(1)
	}
	for {
		cur := t.maxHolders.Load()
		if n <= cur || t.maxHolders.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (t *holderTracker) leave(key string) {
	t.holders[key].Add(-1)
}

// failureCounter 按失败原因计数。
type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *failureCounter) add(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[kind]++
}

func (c *failureCounter) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// failureKind 将获取失败归类。无法归类的错误返回空串，由调用方按运行错误处理。
func failureKind(err error) string {
	switch {
	case errors.Is(err, xkeylock.ErrTimedOut):
		return failTimedOut
	case errors.Is(err, xkeylock.ErrTooManyAttempts):
		return failTooManyAttempts
	case errors.Is(err, xkeylock.ErrCancelled), errors.Is(err, context.Canceled):
		return failCancelled
	case errors.Is(err, xkeylock.ErrClosed):
		return failClosed
	default:
		return ""
	}
}

// retryableAcquire 仅超时和次数上限值得外层重试，取消与关闭是终态。
func retryableAcquire(err error) bool {
	return errors.Is(err, xkeylock.ErrTimedOut) || errors.Is(err, xkeylock.ErrTooManyAttempts)
}

// runner 在一个 Locker 上执行 workload。
type runner struct {
	locker   xkeylock.Locker
	logger   xlog.Logger
	tracker  *holderTracker
	failures failureCounter
	acquired atomic.Int64
	retries  atomic.Int64
}

// runWorkload 并发执行 workload 并汇总报告。ctx 取消时 worker 提前收尾，已完成的统计仍然返回。
func runWorkload(ctx context.Context, lk xkeylock.Locker, logger xlog.Logger, w workload) (*report, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	if w.retryDelay <= 0 {
		w.retryDelay = defaultRetryDelay
	}
	r := &runner{
		locker:  lk,
		logger:  logger.With(xlog.Operation(w.name)),
		tracker: newHolderTracker(w.keys),
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for id := range w.workers {
		g.Go(func() error {
			return r.worker(gctx, id, &w)
		})
	}
	err := g.Wait()

	rep := &report{
		Workload:   w.name,
		Workers:    w.workers,
		Keys:       len(w.keys),
		Ops:        w.ops,
		Acquired:   r.acquired.Load(),
		Retries:    r.retries.Load(),
		Failures:   r.failures.snapshot(),
		MaxHolders: r.tracker.maxHolders.Load(),
		Violations: r.tracker.violations.Load(),
		Elapsed:    time.Since(start),
	}
	return rep, err
}

func (r *runner) worker(ctx context.Context, id int, w *workload) error {
	logger := r.logger.With(xlog.Worker(id))
	for i := range w.ops {
		if ctx.Err() != nil {
			return nil
		}
		key := w.keys[(id+i)%len(w.keys)]
		if w.random {
			key = w.keys[rand.IntN(len(w.keys))]
		}

		g, err := r.acquire(ctx, logger, key, w)
		if err != nil {
			kind := failureKind(err)
			if kind == "" {
				return fmt.Errorf("worker %d: acquire %q: %w", id, key, err)
			}
			r.failures.add(kind)
			logger.Debug(ctx, "acquire failed", xlog.LockKey(key), xlog.Err(err))
			continue
		}

		r.tracker.enter(key)
		r.acquired.Add(1)
		sleepCtx(ctx, w.hold)
		r.tracker.leave(key)
		g.Release()
	}
	return nil
}

// acquire 调用 Locker.Acquire，超时或达到次数上限时按 w.retries 重试。
func (r *runner) acquire(ctx context.Context, logger xlog.Logger, key string, w *workload) (xkeylock.Guard, error) {
	calls := 0
	return retry.NewWithData[xkeylock.Guard](
		retry.Context(ctx),
		retry.Attempts(uint(w.retries)+1),
		retry.Delay(w.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryableAcquire),
	).Do(func() (xkeylock.Guard, error) {
		calls++
		if calls > 1 {
			r.retries.Add(1)
			logger.Debug(ctx, "retrying acquire", xlog.LockKey(key), xlog.Attempt(calls))
		}
		return r.locker.Acquire(ctx, key, w.acquireOpts...)
	})
}

// sleepCtx 睡眠 d，ctx 结束时提前返回。
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
