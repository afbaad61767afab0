package xkeylock

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// XsyncRegistry 基于 xsync.MapOf 实现 [Registry]。
//
// MapOf 内部自行分桶，Compute 在桶锁内执行回调，
// 因此"不存在则插入"与"匹配则删除"都是单次原子操作。
// 读多写少、key 数量很大时通常优于 [ShardedRegistry]。
type XsyncRegistry struct {
	m   *xsync.MapOf[string, Generation]
	gen generator
}

// NewXsyncRegistry 创建基于 xsync.MapOf 的 Registry。
func NewXsyncRegistry() *XsyncRegistry {
	return &XsyncRegistry{m: xsync.NewMapOf[string, Generation]()}
}

// TryClaim 实现 [Registry]。
// Generation 只在插入成功时发放，竞争失败不消耗序号。
func (r *XsyncRegistry) TryClaim(key string) (Generation, bool) {
	var (
		g       Generation
		claimed bool
	)
	r.m.Compute(key, func(cur Generation, loaded bool) (Generation, bool) {
		if loaded {
			return cur, false
		}
		g = r.gen.next()
		claimed = true
		return g, false
	})
	return g, claimed
}

// Release 实现 [Registry]。
func (r *XsyncRegistry) Release(key string, gen Generation) bool {
	var removed bool
	r.m.Compute(key, func(cur Generation, loaded bool) (Generation, bool) {
		if !loaded {
			// delete=true 阻止 Compute 为不存在的 key 创建条目。
			return cur, true
		}
		if cur != gen {
			return cur, false
		}
		removed = true
		return cur, true
	})
	return removed
}

// Len 实现 [Snapshotter]。
func (r *XsyncRegistry) Len() int {
	return r.m.Size()
}

// Keys 实现 [Snapshotter]。
func (r *XsyncRegistry) Keys() []string {
	keys := make([]string, 0, r.m.Size())
	r.m.Range(func(k string, _ Generation) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// 编译期接口检查。
var (
	_ Registry    = (*XsyncRegistry)(nil)
	_ Snapshotter = (*XsyncRegistry)(nil)
)
