package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omeyang/multikeylock/pkg/util/xkeylock"
)

// telemetry 持有本次运行的 OTel Provider。未开启的部分为 nil。
type telemetry struct {
	reader *sdkmetric.ManualReader
	mp     *sdkmetric.MeterProvider
	tp     *sdktrace.TracerProvider
}

// newTelemetry 按开关创建 Provider。span 同步写入 traceOut，便于与日志交错查看。
func newTelemetry(traceOut io.Writer, withTrace, withMetrics bool) (*telemetry, error) {
	t := &telemetry{}
	if withMetrics {
		t.reader = sdkmetric.NewManualReader()
		t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
	}
	if withTrace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		t.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	}
	return t, nil
}

// lockOptions 返回注入 Locker 的可观测性选项。
func (t *telemetry) lockOptions() []xkeylock.Option {
	var opts []xkeylock.Option
	if t.mp != nil {
		opts = append(opts, xkeylock.WithMeterProvider(t.mp))
	}
	if t.tp != nil {
		opts = append(opts, xkeylock.WithTracerProvider(t.tp))
	}
	return opts
}

// writeMetrics 采集一次并按指标名输出汇总。未开启指标时不输出。
func (t *telemetry) writeMetrics(ctx context.Context, w io.Writer) error {
	if t.reader == nil {
		return nil
	}
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			lines = append(lines, summarize(m)...)
		}
	}
	sort.Strings(lines)

	fmt.Fprintln(w, "metrics:")
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}

// summarize 将一个指标的每个数据点格式化为一行。
func summarize(m metricdata.Metrics) []string {
	var lines []string
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s = %d", m.Name, formatAttrs(dp.Attributes), dp.Value))
		}
	case metricdata.Gauge[int64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s = %d", m.Name, formatAttrs(dp.Attributes), dp.Value))
		}
	case metricdata.Histogram[int64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%d",
				m.Name, formatAttrs(dp.Attributes), dp.Count, dp.Sum))
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%.6f",
				m.Name, formatAttrs(dp.Attributes), dp.Count, dp.Sum))
		}
	}
	return lines
}

func formatAttrs(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// shutdown 关闭所有 Provider，合并错误。
func (t *telemetry) shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
