package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，数值与 slog.Level 一致，可直接互转。
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// levelNames 是 ParseLevel 接受的名称（小写）。
var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// Level 实现 slog.Leveler，Level 值可直接用作 HandlerOptions.Level。
func (l Level) Level() slog.Level { return slog.Level(l) }

// String 返回 slog 风格的名称：DEBUG、INFO、WARN、ERROR，中间值如 "INFO+2"。
func (l Level) String() string { return slog.Level(l).String() }

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 供 koanf 等配置解码器使用，规则同 ParseLevel。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析级别名称，忽略大小写和首尾空白。"warning" 等同于 "warn"。
// 失败时返回 LevelInfo 和错误。
func ParseLevel(s string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}
