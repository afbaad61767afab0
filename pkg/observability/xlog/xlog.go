package xlog

import (
	"context"
	"log/slog"
)

// Logger 是结构化日志接口。
//
// 每个方法都接收 ctx，Handler 可从中取出 trace 等请求级信息；
// 属性只接受 slog.Attr，不做 key-value 推断。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 以 Error 级别记录，并在 KeyStack 属性中附带当前 goroutine 的调用栈。
	// 用于内部不变量被破坏这类需要定位调用方的场景。
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回附加了属性的派生 Logger，与父 Logger 共享级别。
	With(attrs ...slog.Attr) Logger
	// WithGroup 返回派生 Logger，之后的属性都归入 name 分组。
	WithGroup(name string) Logger
}

// Leveler 运行时级别控制，与 Logger 分开，库代码只需依赖 Logger。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 是 Builder.Build 的返回类型。
type LoggerWithLevel interface {
	Logger
	Leveler
}
