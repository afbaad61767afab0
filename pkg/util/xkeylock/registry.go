package xkeylock

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Generation 是一次成功占用的唯一标识。
// 同一 Registry 发放的 Generation 严格递增，0 永不发放。
// 释放时必须出示占用时拿到的 Generation，过期的释放不会误删新持有者的条目。
type Generation uint64

// Registry 是 key 到 Generation 的并发映射，只提供两个原子操作。
// 条目存在即表示该 key 被持有。Registry 不阻塞等待，等待与退避由 Locker 负责。
//
// 实现必须保证 TryClaim 的"不存在则插入"与 Release 的"匹配则删除"各自原子。
type Registry interface {
	// TryClaim 尝试占用 key。
	// key 空闲时插入新条目并返回 (gen, true)；已被占用时返回 (0, false)。
	TryClaim(key string) (Generation, bool)

	// Release 仅当 key 当前条目的 Generation 等于 gen 时删除条目，返回是否删除。
	// 条目不存在或 Generation 不匹配时不做任何修改。
	Release(key string, gen Generation) bool
}

// Snapshotter 是 Registry 的可选扩展，用于调试时列出当前条目。
type Snapshotter interface {
	// Len 返回当前条目数量（瞬时值）。
	Len() int
	// Keys 返回当前被持有的 key 快照，不保证跨分片原子性。
	Keys() []string
}

const (
	defaultShardCount = 32
	maxShardCount     = 1 << 16 // 65536
)

// generator 发放单调递增的 Generation。
type generator struct {
	seq atomic.Uint64
}

func (g *generator) next() Generation {
	return Generation(g.seq.Add(1))
}

// =============================================================================
// 分片 Registry
// =============================================================================

// ShardedRegistry 使用 xxhash 将 key 分散到 2 的幂个分片，每个分片一把互斥锁。
// 分片锁只保护 map 本身的读写，持有时间是常数级，不会因 key 被占用而阻塞。
type ShardedRegistry struct {
	shards []registryShard
	mask   uint64
	gen    generator
	count  atomic.Int64
}

type registryShard struct {
	mu      sync.Mutex
	entries map[string]Generation
}

// NewShardedRegistry 创建分片 Registry。
// shards 必须为 [1, 65536] 范围内的 2 的幂，否则返回 [ErrInvalidShardCount]。
func NewShardedRegistry(shards int) (*ShardedRegistry, error) {
	if err := validateShardCount(shards); err != nil {
		return nil, err
	}
	r := &ShardedRegistry{
		shards: make([]registryShard, shards),
		// shards ∈ [1, maxShardCount] 且为 2 的幂，int→uint64 转换安全。
		mask: uint64(shards - 1),
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]Generation)
	}
	return r, nil
}

func validateShardCount(n int) error {
	if n <= 0 || n > maxShardCount || n&(n-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, n)
	}
	return nil
}

func (r *ShardedRegistry) shard(key string) *registryShard {
	return &r.shards[xxhash.Sum64String(key)&r.mask]
}

// TryClaim 实现 [Registry]。
func (r *ShardedRegistry) TryClaim(key string) (Generation, bool) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.entries[key]; held {
		return 0, false
	}
	g := r.gen.next()
	s.entries[key] = g
	r.count.Add(1)
	return g, true
}

// Release 实现 [Registry]。
func (r *ShardedRegistry) Release(key string, gen Generation) bool {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, held := s.entries[key]
	if !held || cur != gen {
		return false
	}
	delete(s.entries, key)
	r.count.Add(-1)
	return true
}

// Len 实现 [Snapshotter]。
func (r *ShardedRegistry) Len() int {
	return int(max(r.count.Load(), 0))
}

// Keys 实现 [Snapshotter]。
func (r *ShardedRegistry) Keys() []string {
	keys := make([]string, 0, r.Len())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}
	return keys
}

// 编译期接口检查。
var (
	_ Registry    = (*ShardedRegistry)(nil)
	_ Snapshotter = (*ShardedRegistry)(nil)
)
