package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 轮询/重试引擎指标
	PollTicks          prometheus.Counter
	RetryTicks         prometheus.Counter
	RetryAttempts      prometheus.Counter
	MessagesDiscovered prometheus.Counter
	StageTransitions   *prometheus.CounterVec
	OwnerFailures      *prometheus.CounterVec

	// 分类与落表指标
	ClassifyDuration prometheus.Histogram
	RecordsSunk      prometheus.Counter

	// 外联任务指标
	CampaignsStarted prometheus.Counter
	CampaignSends    *prometheus.CounterVec
}

// NewMetrics 创建并注册所有监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PollTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_poll_ticks_total",
			Help: "Total number of inbox poll ticks",
		}),
		RetryTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_retry_ticks_total",
			Help: "Total number of retry sweep ticks",
		}),
		RetryAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_retry_attempts_total",
			Help: "Total number of per-message retry attempts",
		}),
		MessagesDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_messages_discovered_total",
			Help: "Total number of messages first recorded in the ledger",
		}),
		StageTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_stage_transitions_total",
				Help: "Total number of message stage transitions",
			},
			[]string{"stage"},
		),
		OwnerFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_owner_failures_total",
				Help: "Total number of per-owner engine pass failures",
			},
			[]string{"op"},
		),
		ClassifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "outreach_classify_duration_seconds",
			Help:    "Duration of a classify plus sink round in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RecordsSunk: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_records_sunk_total",
			Help: "Total number of classification records appended to the sheet",
		}),
		CampaignsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outreach_campaigns_started_total",
			Help: "Total number of campaigns started",
		}),
		CampaignSends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_campaign_sends_total",
				Help: "Total number of campaign emails by send result",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// HTTPHandler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
