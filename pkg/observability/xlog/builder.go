package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志输出格式
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Rotation 文件轮转配置，由 lumberjack 执行。
type Rotation struct {
	// Filename 日志文件路径，必填
	Filename string `koanf:"filename" json:"filename"`
	// MaxSizeMB 单个文件最大大小（MB），默认 100
	MaxSizeMB int `koanf:"max_size_mb" json:"max_size_mb"`
	// MaxBackups 保留的历史文件数，0 表示全部保留
	MaxBackups int `koanf:"max_backups" json:"max_backups"`
	// MaxAgeDays 历史文件保留天数，0 表示不按时间清理
	MaxAgeDays int `koanf:"max_age_days" json:"max_age_days"`
	// Compress 是否 gzip 压缩历史文件
	Compress bool `koanf:"compress" json:"compress"`
}

const defaultMaxSizeMB = 100

// ErrEmptyFilename 表示 Rotation.Filename 为空。
var ErrEmptyFilename = errors.New("xlog: rotation filename is empty")

// Builder 日志配置构建器
//
// first-error-wins：遇到第一个配置错误后，Build 返回该错误。
// Builder 为一次性使用，Build 之后不可复用。
type Builder struct {
	output      io.Writer
	levelVar    *slog.LevelVar
	format      string
	addSource   bool
	rotator     *lumberjack.Logger
	onError     func(error)
	replaceAttr func(groups []string, a slog.Attr) slog.Attr
	err         error
}

// New 创建配置构建器，默认输出到 stderr、Info 级别、text 格式。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: levelVar,
		format:   FormatText,
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空值视为 text。
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		b.format = FormatText
	case FormatText, FormatJSON:
		b.format = normalized
	default:
		b.setErr(fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 是否在日志中添加源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetRotation 输出到按大小轮转的文件，覆盖 SetOutput。
func (b *Builder) SetRotation(r Rotation) *Builder {
	if strings.TrimSpace(r.Filename) == "" {
		b.setErr(ErrEmptyFilename)
		return b
	}
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = defaultMaxSizeMB
	}
	b.rotator = &lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
		LocalTime:  true,
	}
	b.output = b.rotator
	return b
}

// SetOnError 设置内部错误回调（Handler 写入失败时调用）。
// 回调在日志调用方 goroutine 中同步执行，应保持轻量。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetReplaceAttr 设置输出前的属性替换函数，用于脱敏、重命名或移除字段。
// 返回空 Key 的 Attr 会移除该属性。
func (b *Builder) SetReplaceAttr(fn func(groups []string, a slog.Attr) slog.Attr) *Builder {
	b.replaceAttr = fn
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build 构建 Logger 实例
//
// 返回值：
//   - LoggerWithLevel: 日志实例，同时支持动态级别控制
//   - func() error: 清理函数，关闭轮转文件；可重复调用
//   - error: 配置错误
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:       b.levelVar,
		AddSource:   b.addSource,
		ReplaceAttr: b.replaceAttr,
	}
	var handler slog.Handler
	if b.format == FormatJSON {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}

	logger := &xlogger{
		handler:    handler,
		levelVar:   b.levelVar,
		onError:    b.onError,
		errorCount: new(atomic.Uint64),
		addSource:  b.addSource,
	}

	rotator := b.rotator
	var once sync.Once
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
	return logger, cleanup, nil
}
