package diag

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// 进程内私有注册表：
// - wattrim_op_total{comp,stage,result}
// - wattrim_error_total{comp,code}
// - wattrim_op_duration_ms{comp,stage}
// 运行结束时可按 textfile 格式落盘（--metrics-file）。
var (
	registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wattrim_op_total",
		Help: "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wattrim_error_total",
		Help: "Errors by component and classification code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wattrim_op_duration_ms",
		Help:    "Stage duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})
)

func init() {
	registry.MustRegister(opTotal, errorTotal, opDuration)
}

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// Registry 暴露私有注册表（测试与导出使用）。
func Registry() *prometheus.Registry { return registry }

// WriteMetrics 以 node_exporter textfile 格式原子写出全部指标。
func WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errors.Wrapf(err, "write metrics %s", path)
	}
	return nil
}
