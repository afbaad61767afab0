package xkeylock

import (
	"context"
	"io"
)

// Guard 表示一次成功的 key 占用。
// 持有 Guard 即独占该 key，直到 Release 被调用。
type Guard interface {
	// Key 返回被占用的 key。Release 之后仍返回原值。
	Key() string

	// Generation 返回本次占用的 Generation。
	Generation() Generation

	// Release 释放 key。幂等：只有首次调用生效，后续调用什么都不做。
	// 释放只会删除本次占用写入的条目，不会影响之后重新占用该 key 的持有者。
	Release()

	// Released 报告 Release 是否已被调用。
	Released() bool
}

// Locker 提供基于 key 的进程内互斥。
// 所有方法都是并发安全的。
type Locker interface {
	io.Closer

	// Acquire 获取 key 的独占权，key 被占用时按指数退避轮询重试。
	//
	// 成功返回 Guard，调用方必须在临界区结束后调用 Guard.Release（通常 defer）。
	// 失败时返回以下错误之一（用 errors.Is 判断）：
	//   - [ErrCancelled]：WithCancel 传入的信号或 ctx 被取消
	//   - [ErrTimedOut]：WithTimeout 到期或 ctx deadline 到期
	//   - [ErrTooManyAttempts]：达到 WithMaxAttempts 上限
	//   - [ErrClosed]：Locker 已关闭
	//   - [ErrInvalidKey] / [ErrNilContext]：参数错误
	//
	// 注意: 未设置超时、取消信号和次数上限，且 ctx 永不结束时，
	// Acquire 会一直等待直到 key 被释放。若持有者永不释放，调用方将永久阻塞。
	//
	// 设计决策: 锁是非可重入的（non-reentrant），与 sync.Mutex 一致。
	// 同一 goroutine 对同一 key 重复 Acquire 会等待自己，由调用方负责避免。
	// 等待者之间没有排队顺序，先等待的调用方不保证先获得 key。
	Acquire(ctx context.Context, key string, opts ...AcquireOption) (Guard, error)

	// TryAcquire 只尝试一次，不等待。
	// key 被占用时返回 (nil, [ErrLockOccupied])。
	TryAcquire(key string) (Guard, error)

	// Do 获取 key 后执行 fn，fn 返回或 panic 时都会释放 key。
	// 获取失败时 fn 不会被执行，直接返回获取错误。fn 不得为 nil。
	Do(ctx context.Context, key string, fn func(ctx context.Context) error, opts ...AcquireOption) error

	// Len 返回当前被持有的 key 数量（单次原子读取，瞬时快照）。
	// Close 后仍可安全调用，返回值随已持有 Guard 的释放逐渐归零。
	Len() int

	// Keys 返回当前被持有的 key 列表，仅用于调试。
	// Registry 未实现 [Snapshotter] 时返回 nil。
	Keys() []string
}

// New 创建一个新的 Locker 实例。
// 不传任何选项即可使用：默认 32 分片 Registry，不记录日志，不采集指标。
// 配置无效时返回错误（如分片数不是 2 的幂）。
func New(opts ...Option) (Locker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return newKeyLockImpl(&o)
}
