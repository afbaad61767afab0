package xkeylock

import "errors"

// 获取失败的三类终态错误。
// 调用方通过 errors.Is 判断失败原因，重试策略由调用方在更高层决定。
var (
	// ErrCancelled 表示取消信号（Signal 或 ctx 取消）在获取成功前触发。
	// 由 ctx 触发时同时包装 [context.Canceled]。
	ErrCancelled = errors.New("xkeylock: acquisition cancelled")

	// ErrTimedOut 表示超时截止时间已到仍未获取成功。
	// 由 ctx deadline 触发时同时包装 [context.DeadlineExceeded]。
	ErrTimedOut = errors.New("xkeylock: acquisition timed out")

	// ErrTooManyAttempts 表示尝试次数达到 [WithMaxAttempts] 上限。
	ErrTooManyAttempts = errors.New("xkeylock: too many attempts")
)

var (
	// ErrLockOccupied 表示 TryAcquire 时 key 已被他人持有。
	ErrLockOccupied = errors.New("xkeylock: lock occupied")

	// ErrClosed 表示 Locker 已关闭。
	// Close 后调用 Acquire/TryAcquire 返回此错误，等待中的 Acquire 也会以此返回。
	ErrClosed = errors.New("xkeylock: closed")

	// ErrInvalidKey 表示 key 为空字符串。
	ErrInvalidKey = errors.New("xkeylock: invalid key")

	// ErrNilContext 表示传入的 ctx 为 nil。
	ErrNilContext = errors.New("xkeylock: nil context")

	// ErrInvalidShardCount 表示分片数不是 [1, 65536] 范围内的 2 的幂。
	ErrInvalidShardCount = errors.New("xkeylock: invalid shard count")

	// ErrInvalidConfig 表示 [Config] 校验失败，具体原因见包装的错误信息。
	ErrInvalidConfig = errors.New("xkeylock: invalid config")
)
