// Package metrics 提供 Prometheus 指标
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal API 请求数（方法、路由、状态码区间）
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vision",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration API 请求耗时
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vision",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// UpstreamRequestsTotal 上游数据接口请求数（endpoint: etherscan|ofac）
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vision",
			Name:      "upstream_requests_total",
			Help:      "Total upstream API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamRequestDuration 上游请求耗时
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vision",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// SanctionLookupsTotal OFAC 查询结果
	SanctionLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vision",
			Name:      "sanction_lookups_total",
			Help:      "Total OFAC lookups by result.",
		},
		[]string{"result"},
	)

	// ReportsPublishedTotal 报告发布结果
	ReportsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vision",
			Name:      "reports_published_total",
			Help:      "Total risk reports published by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		SanctionLookupsTotal,
		ReportsPublishedTotal,
	)
}

// Middleware 记录 API 请求指标
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // 使用路由模板，避免地址参数造成标签膨胀
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			StatusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler /metrics 端点
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// StatusBucket 把状态码归入 1xx..5xx 区间，0 表示请求未得到响应
func StatusBucket(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
