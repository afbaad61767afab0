package xkeylock

import "sync"

// Signal 是可被等待的一次性取消信号。
// Done 在信号触发后返回已关闭的 channel；未触发时返回的 channel 保持阻塞。
// 返回 nil channel 表示永不触发。
//
// [context.Context] 天然满足该接口，可直接作为 Signal 传入 [WithCancel]。
type Signal interface {
	Done() <-chan struct{}
}

// CancelToken 是 [Signal] 的最小实现：一个可被任意 goroutine 触发的取消标志。
// 零值不可用，请使用 [NewCancelToken] 创建。
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancelToken 创建未触发的取消令牌。
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel 触发取消。可重复调用，仅首次生效。
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Done 实现 [Signal]。
func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}

// Cancelled 报告令牌是否已触发。
func (t *CancelToken) Cancelled() bool {
	return signaled(t)
}

// signaled 非阻塞地检查信号是否已触发。nil 信号视为未触发。
func signaled(s Signal) bool {
	if s == nil {
		return false
	}
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

var _ Signal = (*CancelToken)(nil)
