package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordWebhook(t *testing.T) {
	before := testutil.ToFloat64(webhookRequestsTotal.WithLabelValues("duplicate"))

	RecordWebhook("duplicate", 20*time.Millisecond)

	after := testutil.ToFloat64(webhookRequestsTotal.WithLabelValues("duplicate"))
	assert.Equal(t, before+1, after)
}

func TestRecordSettlementAndRateLimit(t *testing.T) {
	settledBefore := testutil.ToFloat64(settlementsTotal.WithLabelValues("settled"))
	limitedBefore := testutil.ToFloat64(rateLimitedTotal)

	RecordSettlement("settled")
	RecordRateLimited()

	assert.Equal(t, settledBefore+1, testutil.ToFloat64(settlementsTotal.WithLabelValues("settled")))
	assert.Equal(t, limitedBefore+1, testutil.ToFloat64(rateLimitedTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordHTTPRequest(http.MethodPost, "/callback/kazawallet", http.StatusOK)
	RecordAuditFailure("kafka")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kazapay_http_requests_total")
	assert.Contains(t, rec.Body.String(), "kazapay_audit_failures_total")
}
