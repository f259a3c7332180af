package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the payment counters.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// PaymentMetrics tracks gateway calls, reconciliations and webhook deliveries.
type PaymentMetrics struct {
	gatewayDuration *prometheus.HistogramVec
	gatewayCalls    *prometheus.CounterVec
	reconciles      *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation"})
	gatewayCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscriptions",
		Name:      "reconcile_total",
		Help:      "Reconciliation attempts by source, resulting status and outcome.",
	}, []string{"source", "status", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(gatewayDuration, gatewayCalls, reconciles, webhooks)
	return &PaymentMetrics{
		gatewayDuration: gatewayDuration,
		gatewayCalls:    gatewayCalls,
		reconciles:      reconciles,
		webhooks:        webhooks,
	}
}

// ObserveGatewayCall records one gateway round trip.
func (p *PaymentMetrics) ObserveGatewayCall(operation string, duration time.Duration, err error) {
	if p == nil || p.gatewayCalls == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	op := normalizeLabel(operation)
	p.gatewayDuration.WithLabelValues(op).Observe(duration.Seconds())
	p.gatewayCalls.WithLabelValues(op, outcome).Inc()
}

// IncReconcile counts a reconciliation result.
func (p *PaymentMetrics) IncReconcile(source, status, outcome string) {
	if p == nil || p.reconciles == nil {
		return
	}
	p.reconciles.WithLabelValues(normalizeLabel(source), normalizeLabel(status), normalizeLabel(outcome)).Inc()
}

// IncWebhook counts a webhook delivery.
func (p *PaymentMetrics) IncWebhook(eventType, outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
