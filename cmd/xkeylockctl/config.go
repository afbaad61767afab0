package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/omeyang/multikeylock/pkg/observability/xlog"
	"github.com/omeyang/multikeylock/pkg/util/xkeylock"
)

var (
	errUnsupportedFormat = errors.New("unsupported config format, expected .yaml, .yml or .json")
	errLoadConfig        = errors.New("load config failed")
)

// fileConfig 是配置文件的顶层结构。
//
//	lock:
//	  registry: sharded
//	  timeout: 500ms
//	log:
//	  level: debug
//	  rotation:
//	    filename: /var/log/xkeylockctl.log
type fileConfig struct {
	Lock xkeylock.Config `koanf:"lock" json:"lock"`
	Log  logConfig       `koanf:"log" json:"log"`
}

type logConfig struct {
	Level     xlog.Level    `koanf:"level" json:"level"`
	Format    string        `koanf:"format" json:"format"`
	AddSource bool          `koanf:"add_source" json:"add_source"`
	Rotation  xlog.Rotation `koanf:"rotation" json:"rotation"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Lock: xkeylock.DefaultConfig(),
		Log: logConfig{
			Level:  xlog.LevelInfo,
			Format: xlog.FormatText,
		},
	}
}

// loadConfig 读取配置文件并覆盖默认值。path 为空时返回默认配置。
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	parser, err := parserFor(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", errLoadConfig, err)
	}
	if err := decodeConfig(data, parser, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Lock.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, parser koanf.Parser, cfg *fileConfig) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfig, err)
	}
	// 默认 DecoderConfig 带 StringToTimeDuration 钩子，"500ms" 可直接解码为 time.Duration。
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfig, err)
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedFormat, path)
	}
}

// applyLogFlags 用命令行显式给出的日志参数覆盖配置文件。
func (c *fileConfig) applyLogFlags(level, format, file string) error {
	if level != "" {
		parsed, err := xlog.ParseLevel(level)
		if err != nil {
			return err
		}
		c.Log.Level = parsed
	}
	if format != "" {
		c.Log.Format = format
	}
	if file != "" {
		c.Log.Rotation.Filename = file
	}
	return nil
}

// buildLogger 按配置构建日志器，返回的 cleanup 关闭轮转文件。
func (c *fileConfig) buildLogger(stderr io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetLevel(c.Log.Level).
		SetFormat(c.Log.Format).
		SetAddSource(c.Log.AddSource)
	if c.Log.Rotation.Filename != "" {
		b = b.SetRotation(c.Log.Rotation)
	} else {
		b = b.SetOutput(stderr)
	}
	return b.Build()
}

// configView 是 config 命令的输出形式，时长以可读字符串表示。
type configView struct {
	Lock lockView  `json:"lock"`
	Log  logConfig `json:"log"`
}

type lockView struct {
	Registry            string  `json:"registry"`
	ShardCount          int     `json:"shard_count"`
	Timeout             string  `json:"timeout"`
	InitialBackoff      string  `json:"initial_backoff"`
	MaxBackoff          string  `json:"max_backoff"`
	BackoffMultiplier   float64 `json:"backoff_multiplier"`
	Jitter              float64 `json:"jitter"`
	MaxAttempts         int     `json:"max_attempts"`
	DisableKeyAttribute bool    `json:"disable_key_attribute"`
}

func (c *fileConfig) view() configView {
	timeout := "none"
	if c.Lock.Timeout > 0 {
		timeout = c.Lock.Timeout.String()
	}
	return configView{
		Lock: lockView{
			Registry:            c.Lock.Registry,
			ShardCount:          c.Lock.ShardCount,
			Timeout:             timeout,
			InitialBackoff:      c.Lock.InitialBackoff.String(),
			MaxBackoff:          c.Lock.MaxBackoff.String(),
			BackoffMultiplier:   c.Lock.BackoffMultiplier,
			Jitter:              c.Lock.Jitter,
			MaxAttempts:         c.Lock.MaxAttempts,
			DisableKeyAttribute: c.Lock.DisableKeyAttribute,
		},
		Log: c.Log,
	}
}
