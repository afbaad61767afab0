// Package observability 收纳可观测性相关的子包。
//
// 子包列表：
//   - xlog: 基于 log/slog 的结构化日志，Builder 构建，lumberjack 文件轮转
//
// 指标和链路追踪直接使用 OpenTelemetry API，由各组件通过
// metric.MeterProvider / trace.TracerProvider 选项注入。
package observability
