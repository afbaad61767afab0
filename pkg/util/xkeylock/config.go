package xkeylock

import (
	"fmt"
	"time"
)

// Registry 实现名称，用于 [Config.Registry]。
const (
	RegistrySharded = "sharded"
	RegistryXsync   = "xsync"
)

// Config 是 Locker 的声明式配置，字段带 koanf 标签，可直接从 YAML/JSON 解码。
// 零值字段表示使用默认值。
//
// 注意: Timeout 为 0 表示不设超时（一直等待），与 [WithTimeout](0) 的"只尝试一次"不同。
// 需要立即失败的调用方应使用 TryAcquire。
type Config struct {
	// Registry 选择 Registry 实现："sharded"（默认）或 "xsync"。
	Registry string `koanf:"registry" json:"registry"`
	// ShardCount 分片数，仅 sharded 生效，默认 32。
	ShardCount int `koanf:"shard_count" json:"shard_count"`
	// Timeout 默认等待上限，0 表示不限。
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
	// InitialBackoff 首次等待时长，默认 10ms。
	InitialBackoff time.Duration `koanf:"initial_backoff" json:"initial_backoff"`
	// MaxBackoff 单次等待上限，默认 1s。
	MaxBackoff time.Duration `koanf:"max_backoff" json:"max_backoff"`
	// BackoffMultiplier 等待时长增长倍数，默认 2。
	BackoffMultiplier float64 `koanf:"backoff_multiplier" json:"backoff_multiplier"`
	// Jitter 等待时长随机扰动比例 [0, 1]，默认 0。
	Jitter float64 `koanf:"jitter" json:"jitter"`
	// MaxAttempts 尝试次数上限（含首次），0 表示不限。
	MaxAttempts int `koanf:"max_attempts" json:"max_attempts"`
	// DisableKeyAttribute 不在指标和 span 中记录 key。
	DisableKeyAttribute bool `koanf:"disable_key_attribute" json:"disable_key_attribute"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Registry:          RegistrySharded,
		ShardCount:        defaultShardCount,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Validate 校验配置，失败时返回包装了 [ErrInvalidConfig] 的错误。
func (c Config) Validate() error {
	switch c.Registry {
	case "", RegistrySharded:
		if c.ShardCount != 0 {
			if err := validateShardCount(c.ShardCount); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
	case RegistryXsync:
	default:
		return fmt.Errorf("%w: unknown registry %q", ErrInvalidConfig, c.Registry)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %s", ErrInvalidConfig, c.Timeout)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("%w: backoff must be >= 0", ErrInvalidConfig)
	}
	if c.InitialBackoff > 0 && c.MaxBackoff > 0 && c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("%w: max_backoff %s < initial_backoff %s",
			ErrInvalidConfig, c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier != 0 && c.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1, got %g", ErrInvalidConfig, c.BackoffMultiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be in [0, 1], got %g", ErrInvalidConfig, c.Jitter)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must be >= 0, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	return nil
}

// AcquireOptions 将配置中的等待参数转换为获取选项，零值字段不生成选项。
func (c Config) AcquireOptions() []AcquireOption {
	var opts []AcquireOption
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.InitialBackoff > 0 {
		opts = append(opts, WithInitialBackoff(c.InitialBackoff))
	}
	if c.MaxBackoff > 0 {
		opts = append(opts, WithMaxBackoff(c.MaxBackoff))
	}
	if c.BackoffMultiplier > 0 {
		opts = append(opts, WithBackoffMultiplier(c.BackoffMultiplier))
	}
	if c.Jitter > 0 {
		opts = append(opts, WithJitter(c.Jitter))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(c.MaxAttempts))
	}
	return opts
}

// NewFromConfig 按配置创建 Locker。opts 在配置之后应用，可覆盖配置项。
func NewFromConfig(cfg Config, opts ...Option) (Locker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []Option{WithDefaultAcquireOptions(cfg.AcquireOptions()...)}
	switch cfg.Registry {
	case RegistryXsync:
		base = append(base, WithRegistry(NewXsyncRegistry()))
	default:
		if cfg.ShardCount != 0 {
			base = append(base, WithShardCount(cfg.ShardCount))
		}
	}
	if cfg.DisableKeyAttribute {
		base = append(base, WithDisableKeyAttribute())
	}
	return New(append(base, opts...)...)
}
