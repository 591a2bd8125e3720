package grpc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 匹配服务指标
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    prometheus.Histogram
	candidates prometheus.Histogram
	stopLevel  prometheus.Histogram
	rejected   prometheus.Counter
}

// NewMetrics 创建独立注册表上的指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pyrmatch_match_requests_total",
			Help: "Match requests by gRPC status code",
		}, []string{"code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pyrmatch_match_duration_seconds",
			Help:    "Latency of match requests",
			Buckets: prometheus.DefBuckets,
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pyrmatch_match_candidates",
			Help:    "Candidates returned per successful match",
			Buckets: []float64{0, 1, 2, 5, 10, 50},
		}),
		stopLevel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pyrmatch_match_stop_level",
			Help:    "Pyramid level at which the search ended",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8},
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pyrmatch_rate_limited_total",
			Help: "Match requests rejected by the rate limiter",
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.candidates, m.stopLevel, m.rejected)
	return m
}

// observe 记录一次请求
func (m *Metrics) observe(code string, d time.Duration) {
	m.requests.WithLabelValues(code).Inc()
	m.latency.Observe(d.Seconds())
}

// observeReport 记录匹配结果
func (m *Metrics) observeReport(candidates, stoppedAt int) {
	m.candidates.Observe(float64(candidates))
	m.stopLevel.Observe(float64(stoppedAt))
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
