package xkeylock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// componentName 同时用作 tracer/meter scope 名称和日志 component 字段
	componentName = "xkeylock"
	// instrumentationVersion 上报给 OTel 的 instrumentation 版本
	instrumentationVersion = "0.1.0"
)

const spanNameAcquire = "xkeylock.Acquire"

// Span 与指标共用的属性名，确保 trace 与 metrics 键名一致
const (
	attrKey       = "xkeylock.key"
	attrOperation = "xkeylock.operation"
	attrResult    = "xkeylock.result"
	attrAttempts  = "xkeylock.attempts"
)

// getTracer 获取 tracer 实例。tp 为 nil 时使用全局 TracerProvider。
func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(componentName, trace.WithInstrumentationVersion(instrumentationVersion))
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

func acquireSpanAttributes(key string, disableKey bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(attrOperation, opAcquire)}
	if !disableKey {
		attrs = append(attrs, attribute.String(attrKey, key))
	}
	return attrs
}

// finishAcquireSpan 写入结果属性并结束 span。
func finishAcquireSpan(span trace.Span, attempts int, err error) {
	span.SetAttributes(
		attribute.Int(attrAttempts, attempts),
		attribute.String(attrResult, resultOf(err)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
