package xkeylock

import (
	"runtime"
	"sync/atomic"
)

// guard 实现 Guard 接口。
//
// 释放所需的状态放在独立的 guardState 中：runtime.AddCleanup 的参数不能引用 guard 本身，
// 否则 guard 永远不可回收。调用方忘记 Release 且 guard 被 GC 回收时，
// 清理函数负责归还 key 并记录告警。
type guard struct {
	state   *guardState
	cleanup runtime.Cleanup
}

type guardState struct {
	kl       *keyLockImpl
	key      string
	gen      Generation
	released atomic.Bool
}

func (kl *keyLockImpl) newGuard(key string, gen Generation) *guard {
	kl.held.Add(1)
	st := &guardState{kl: kl, key: key, gen: gen}
	g := &guard{state: st}
	g.cleanup = runtime.AddCleanup(g, releaseLeaked, st)
	return g
}

// releaseLeaked 在 guard 被回收时运行。
func releaseLeaked(st *guardState) {
	if st.released.CompareAndSwap(false, true) {
		st.kl.release(st, true)
	}
}

func (g *guard) Key() string {
	return g.state.key
}

func (g *guard) Generation() Generation {
	return g.state.gen
}

func (g *guard) Release() {
	if !g.state.released.CompareAndSwap(false, true) {
		return
	}
	g.cleanup.Stop()
	g.state.kl.release(g.state, false)
}

func (g *guard) Released() bool {
	return g.state.released.Load()
}

var _ Guard = (*guard)(nil)
