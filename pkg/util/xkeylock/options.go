package xkeylock

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
)

// 退避默认值。
const (
	DefaultInitialBackoff    = 10 * time.Millisecond
	DefaultMaxBackoff        = time.Second
	DefaultBackoffMultiplier = 2.0
)

// =============================================================================
// Locker 选项
// =============================================================================

// Option 定义 Locker 可选配置。
type Option func(*options)

type options struct {
	registry            Registry
	shardCount          int
	logger              xlog.Logger
	meterProvider       metric.MeterProvider
	tracerProvider      trace.TracerProvider
	disableKeyAttribute bool
	defaults            []AcquireOption
}

func defaultOptions() options {
	return options{
		shardCount: defaultShardCount,
	}
}

// WithRegistry 使用自定义 Registry。
// 设置后 [WithShardCount] 不再生效。r 为 nil 时忽略。
func WithRegistry(r Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithShardCount 设置默认分片 Registry 的分片数量。
// n 必须为正整数且为 2 的幂，上限 65536，否则 New 返回 [ErrInvalidShardCount]。默认 32。
// 建议设置为 2×GOMAXPROCS 左右；过多分片在 CPU 核数较少时无额外收益。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

// WithLogger 设置日志记录器。默认不输出日志。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。未设置时不采集指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 OpenTelemetry TracerProvider。
// 未设置时使用全局 TracerProvider（otel.GetTracerProvider()）。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithDisableKeyAttribute 不在指标和 span 中记录 key。
// key 含用户 ID 等动态内容时应启用，避免指标高基数。
func WithDisableKeyAttribute() Option {
	return func(o *options) {
		o.disableKeyAttribute = true
	}
}

// WithDefaultAcquireOptions 设置每次 Acquire 的默认获取选项。
// 调用 Acquire 时传入的选项在其后应用，可覆盖默认值。
func WithDefaultAcquireOptions(opts ...AcquireOption) Option {
	return func(o *options) {
		o.defaults = append(o.defaults, opts...)
	}
}

func (o *options) validate() error {
	if o.registry != nil {
		return nil
	}
	return validateShardCount(o.shardCount)
}

// =============================================================================
// Acquire 选项
// =============================================================================

// AcquireOption 定义单次 Acquire 的可选参数。
// 非法取值被静默忽略（保持默认值），WithJitter 例外：越界时截断到 [0, 1]。
type AcquireOption func(*acquireOptions)

type acquireOptions struct {
	timeout        time.Duration
	hasTimeout     bool
	cancel         Signal
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         float64
	maxAttempts    int
	onWait         func(attempt int, delay time.Duration)
}

func defaultAcquireOptions() acquireOptions {
	return acquireOptions{
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		multiplier:     DefaultBackoffMultiplier,
	}
}

// WithTimeout 设置等待上限，从 Acquire 被调用时开始计时。
// d <= 0 表示只尝试一次，key 被占用时立即返回 [ErrTimedOut]，不做任何等待。
func WithTimeout(d time.Duration) AcquireOption {
	if d < 0 {
		d = 0
	}
	return func(o *acquireOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}

// WithoutTimeout 清除此前设置的超时（例如 [WithDefaultAcquireOptions] 中的默认超时）。
func WithoutTimeout() AcquireOption {
	return func(o *acquireOptions) {
		o.timeout = 0
		o.hasTimeout = false
	}
}

// WithCancel 设置取消信号。信号触发后，Acquire 在下一个检查点返回 [ErrCancelled]，
// 正在进行的退避等待会被立即打断。
func WithCancel(s Signal) AcquireOption {
	return func(o *acquireOptions) {
		o.cancel = s
	}
}

// WithInitialBackoff 设置首次等待时长，默认 10ms。
func WithInitialBackoff(d time.Duration) AcquireOption {
	return func(o *acquireOptions) {
		if d > 0 {
			o.initialBackoff = d
		}
	}
}

// WithMaxBackoff 设置单次等待时长上限，默认 1s。
// 小于初始等待时长时按初始等待时长处理。
func WithMaxBackoff(d time.Duration) AcquireOption {
	return func(o *acquireOptions) {
		if d > 0 {
			o.maxBackoff = d
		}
	}
}

// WithBackoffMultiplier 设置等待时长增长倍数（>= 1），默认 2。
// 传入 1 表示固定间隔重试。
func WithBackoffMultiplier(m float64) AcquireOption {
	return func(o *acquireOptions) {
		if m >= 1 {
			o.multiplier = m
		}
	}
}

// WithJitter 设置等待时长的随机扰动比例（0-1），默认 0。
// 启用后可缓解大量等待者同步醒来，但等待时长不再单调递增。
func WithJitter(j float64) AcquireOption {
	if j < 0 {
		j = 0
	} else if j > 1 {
		j = 1
	}
	return func(o *acquireOptions) {
		o.jitter = j
	}
}

// WithMaxAttempts 设置尝试占用的总次数上限（含首次），达到后返回 [ErrTooManyAttempts]。
// n <= 0 表示不限制（默认）。
func WithMaxAttempts(n int) AcquireOption {
	if n < 0 {
		n = 0
	}
	return func(o *acquireOptions) {
		o.maxAttempts = n
	}
}

// WithOnWait 设置每次进入退避等待前的回调，参数为已失败的尝试次数和本次等待时长。
// 回调在 Acquire 所在 goroutine 中同步执行，不应阻塞。
func WithOnWait(fn func(attempt int, delay time.Duration)) AcquireOption {
	return func(o *acquireOptions) {
		o.onWait = fn
	}
}

func resolveAcquireOptions(defaults, opts []AcquireOption) acquireOptions {
	o := defaultAcquireOptions()
	for _, opt := range defaults {
		if opt != nil {
			opt(&o)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.maxBackoff < o.initialBackoff {
		o.maxBackoff = o.initialBackoff
	}
	return o
}
