package metrics

import (
	"net/http"
	"time"

	"ShopPilot/pkg/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector private registry for engine and fulfillment metrics.
// Implements engine.Recorder and fulfillment.Recorder.
type Collector struct {
	registry *prometheus.Registry

	ruleExecutions    *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	actionResults     *prometheus.CounterVec
	jobTransitions    *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	purchases         *prometheus.CounterVec
	purchaseDuration  prometheus.Histogram
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		ruleExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppilot_rule_executions_total",
			Help: "Rule firings by trigger and aggregate status",
		}, []string{"trigger", "status"}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shoppilot_rule_execution_duration_seconds",
			Help:    "Time to run all actions of a rule",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}),
		actionResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppilot_action_results_total",
			Help: "Action outcomes by action type",
		}, []string{"action", "outcome"}),
		jobTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppilot_fulfillment_jobs_total",
			Help: "Fulfillment jobs entering each status",
		}, []string{"status"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppilot_fulfillment_rejections_total",
			Help: "Eligibility rejections by reason",
		}, []string{"reason"}),
		purchases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shoppilot_purchases_total",
			Help: "Purchase attempts by result",
		}, []string{"result"}),
		purchaseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shoppilot_purchase_duration_seconds",
			Help:    "Latency of purchase calls to the target marketplace",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

func (c *Collector) ObserveExecution(trigger model.TriggerType, status model.ExecutionStatus, d time.Duration) {
	c.ruleExecutions.WithLabelValues(string(trigger), string(status)).Inc()
	c.executionDuration.WithLabelValues(string(trigger)).Observe(d.Seconds())
}

func (c *Collector) ObserveActionResult(actionType model.ActionType, outcome model.ActionOutcome) {
	c.actionResults.WithLabelValues(string(actionType), string(outcome)).Inc()
}

func (c *Collector) ObserveJobStatus(status model.JobStatus) {
	c.jobTransitions.WithLabelValues(string(status)).Inc()
}

func (c *Collector) ObserveRejection(reason model.ReasonCode) {
	c.rejections.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) ObservePurchase(d time.Duration, err error) {
	result := "ok"
	switch {
	case err == nil:
	case model.IsPermanent(err):
		result = "permanent_error"
	default:
		result = "transient_error"
	}
	c.purchases.WithLabelValues(result).Inc()
	c.purchaseDuration.Observe(d.Seconds())
}

// Handler /metrics for the private registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
