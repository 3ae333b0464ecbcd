package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazapay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	webhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazapay_webhook_requests_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	webhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kazapay_webhook_duration_seconds",
			Help:    "Webhook handling latency in seconds, both phases included",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		},
	)

	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazapay_settlements_total",
			Help: "Settlement dispatcher results",
		},
		[]string{"result"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kazapay_rate_limited_total",
			Help: "Webhook requests rejected by the rate limiter",
		},
	)

	auditFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kazapay_audit_failures_total",
			Help: "Audit sink writes that failed",
		},
		[]string{"sink"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordWebhook counts one delivery. outcome is the error kind or "ok".
func RecordWebhook(outcome string, duration time.Duration) {
	webhookRequestsTotal.WithLabelValues(outcome).Inc()
	webhookDuration.Observe(duration.Seconds())
}

func RecordSettlement(result string) {
	settlementsTotal.WithLabelValues(result).Inc()
}

func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

func RecordAuditFailure(sink string) {
	auditFailuresTotal.WithLabelValues(sink).Inc()
}
