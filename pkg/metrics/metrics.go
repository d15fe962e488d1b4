// Package metrics 提供 Prometheus 指标集合，包含 HTTP/gRPC 请求与反欺诈业务指标
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/fraudreview/pkg/logger"
)

const namespace = "fraudreview"

// Metrics 指标集合
// 所有 Record 方法允许 nil 接收者，便于测试时不注入指标
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec
	// gRPC 请求耗时
	GRPCRequestDuration *prometheus.HistogramVec

	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram
	// Redis 操作耗时
	RedisOpDuration prometheus.Histogram

	// 业务指标
	TransfersTotal        *prometheus.CounterVec
	ReviewActionsTotal    *prometheus.CounterVec
	AssessorRequestsTotal *prometheus.CounterVec
	AssessorDuration      prometheus.Histogram
	ExportRowsTotal       *prometheus.CounterVec
	ReportDriftTotal      prometheus.Counter
	ReviewQueueSize       prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests",
		}, []string{"method", "code"}),
		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RedisOpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "redis_op_duration_seconds",
			Help:      "Redis operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "transfers_total",
			Help:      "Submitted transfers by resulting status",
		}, []string{"status"}),
		ReviewActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "review_actions_total",
			Help:      "Administrative review actions by outcome",
		}, []string{"action", "outcome"}),
		AssessorRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "assessor_requests_total",
			Help:      "Risk assessor calls by outcome",
		}, []string{"outcome"}),
		AssessorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "assessor_duration_seconds",
			Help:      "Risk assessor call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ExportRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "export_rows_total",
			Help:      "Exported transaction rows by format",
		}, []string{"format"}),
		ReportDriftTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "report_drift_total",
			Help:      "Reconciliations that found incremental counters out of sync",
		}),
		ReviewQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "review_queue_size",
			Help:      "Transactions currently awaiting manual review",
		}),
	}
}

// Register 注册所有指标，reg 为空时使用默认注册器
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.DBQueryDuration,
		m.RedisOpDuration,
		m.TransfersTotal,
		m.ReviewActionsTotal,
		m.AssessorRequestsTotal,
		m.AssessorDuration,
		m.ExportRowsTotal,
		m.ReportDriftTotal,
		m.ReviewQueueSize,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery 记录数据库查询
func (m *Metrics) RecordDBQuery(seconds float64) {
	if m == nil {
		return
	}
	m.DBQueryDuration.Observe(seconds)
}

// RecordRedisOp 记录 Redis 操作
func (m *Metrics) RecordRedisOp(seconds float64) {
	if m == nil {
		return
	}
	m.RedisOpDuration.Observe(seconds)
}

// RecordTransfer 记录转账提交结果
func (m *Metrics) RecordTransfer(status string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(status).Inc()
}

// RecordReviewAction 记录审核动作，outcome 为 applied/conflict/rejected/not_found
func (m *Metrics) RecordReviewAction(action, outcome string) {
	if m == nil {
		return
	}
	m.ReviewActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordAssessor 记录一次评估调用
func (m *Metrics) RecordAssessor(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AssessorRequestsTotal.WithLabelValues(outcome).Inc()
	m.AssessorDuration.Observe(seconds)
}

// RecordExportRows 记录导出行数
func (m *Metrics) RecordExportRows(format string, rows int) {
	if m == nil {
		return
	}
	m.ExportRowsTotal.WithLabelValues(format).Add(float64(rows))
}

// RecordReportDrift 记录一次计数漂移
func (m *Metrics) RecordReportDrift() {
	if m == nil {
		return
	}
	m.ReportDriftTotal.Inc()
}

// SetReviewQueueSize 更新待审核队列长度
func (m *Metrics) SetReviewQueueSize(n int64) {
	if m == nil {
		return
	}
	m.ReviewQueueSize.Set(float64(n))
}
