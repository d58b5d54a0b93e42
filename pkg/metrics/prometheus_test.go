package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ShopPilot/pkg/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.ObserveExecution(model.TriggerOrderCreated, model.ExecutionPartial, 20*time.Millisecond)
	c.ObserveActionResult(model.ActionType("SEND_NOTIFICATION"), model.OutcomeError)
	c.ObserveJobStatus(model.JobCompleted)
	c.ObserveJobStatus(model.JobCompleted)
	c.ObserveRejection(model.ReasonCode("INSUFFICIENT_PROFIT"))
	c.ObservePurchase(time.Second, nil)
	c.ObservePurchase(time.Second, &model.PurchaseError{Permanent: true})
	c.ObservePurchase(time.Second, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ruleExecutions.WithLabelValues("ORDER_CREATED", "PARTIAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actionResults.WithLabelValues("SEND_NOTIFICATION", "ERROR")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobTransitions.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("INSUFFICIENT_PROFIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.purchases.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.purchases.WithLabelValues("permanent_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.purchases.WithLabelValues("transient_error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := NewCollector()
	c.ObserveJobStatus(model.JobPending)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `shoppilot_fulfillment_jobs_total{status="PENDING"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
