// Package xlog 基于 log/slog 的结构化日志库。
//
// # 创建 Logger
//
// 使用 Builder 模式（first-error-wins：遇到第一个配置错误后，Build 返回该错误）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat(xlog.FormatJSON).
//		SetRotation(xlog.Rotation{Filename: "/var/log/app.log", MaxBackups: 3}).
//		Build()
//	if err != nil { ... }
//	defer cleanup()
//
// 文件轮转由 lumberjack 执行。未配置日志的组件使用 [Nop]。
//
// # 日志级别
//
// LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)。
// Level 实现 encoding.TextMarshaler/TextUnmarshaler，可直接从配置文件解码。
// Build 返回的 [LoggerWithLevel] 支持运行时调整级别，派生 logger 共享同一级别。
//
// # 便捷属性
//
// [Err]、[Duration]、[Component]、[Operation]，以及锁相关的
// [LockKey]、[Attempt]、[Delay]、[Waited]、[Worker]。
package xlog
