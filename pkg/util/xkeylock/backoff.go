package xkeylock

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff 是单次 Acquire 调用私有的指数退避状态。
//
// 第 n 次等待的基础时长为 min(initial * multiplier^(n-1), max)。
// jitter 为 0 时序列单调不减且不超过 max；jitter > 0 时每次在基础时长上
// 做 ±jitter 比例的扰动，结果仍截断到 max，但不再保证单调。
type backoff struct {
	cur        time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

func newBackoff(o *acquireOptions) *backoff {
	return &backoff{
		cur:        o.initialBackoff,
		max:        o.maxBackoff,
		multiplier: o.multiplier,
		jitter:     o.jitter,
	}
}

// next 返回本次应等待的时长，并把基础时长推进到下一档。
func (b *backoff) next() time.Duration {
	d := b.cur
	if b.jitter > 0 {
		d = capDelay(float64(d)*(1+(rand.Float64()*2-1)*b.jitter), b.max)
	}
	b.cur = capDelay(float64(b.cur)*b.multiplier, b.max)
	return d
}

// capDelay 将浮点时长截断到 [0, limit]。
// 乘法溢出为 +Inf 或出现 NaN 时按已达上限处理。
func capDelay(d float64, limit time.Duration) time.Duration {
	if math.IsNaN(d) || d >= float64(limit) {
		return limit
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}
