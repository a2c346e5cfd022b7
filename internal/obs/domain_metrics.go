package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// FormulaEvaluationsTotal counts calculator evaluations by result (ok, failed).
	FormulaEvaluationsTotal *prometheus.CounterVec
	// QuotesSubmittedTotal counts lead submissions by result (accepted, rejected).
	QuotesSubmittedTotal *prometheus.CounterVec
	// QuoteServicesDroppedTotal counts services dropped from a submission because evaluation failed.
	QuoteServicesDroppedTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
	// NotificationEmailsTotal counts outbound notification emails by result.
	NotificationEmailsTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by a rate limiter, by scope.
	RateLimitedTotal *prometheus.CounterVec
	// DBQueryDuration records Postgres statement latency in milliseconds by operation.
	DBQueryDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		FormulaEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "formula_evaluations_total",
			Help:      "Count of formula evaluations by outcome.",
		}, []string{"result"})
		QuotesSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_submitted_total",
			Help:      "Count of quote submissions by outcome.",
		}, []string{"result"})
		QuoteServicesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_services_dropped_total",
			Help:      "Number of services dropped from submissions after a failed evaluation.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		NotificationEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_emails_total",
			Help:      "Count of notification emails by outcome.",
		}, []string{"result"})
		RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"scope"})
		DBQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_ms",
			Help:      "Postgres statement latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, FormulaEvaluationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FormulaEvaluationsTotal = v
			}
		})
		mustRegisterCollector(reg, QuotesSubmittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesSubmittedTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteServicesDroppedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				QuoteServicesDroppedTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, WebhookAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				WebhookAttemptLatency = v
			}
		})
		mustRegisterCollector(reg, NotificationEmailsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationEmailsTotal = v
			}
		})
		mustRegisterCollector(reg, RateLimitedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateLimitedTotal = v
			}
		})
		mustRegisterCollector(reg, DBQueryDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				DBQueryDuration = v
			}
		})
	})
}

// ObserveFormulaEvaluation records one evaluation outcome when domain metrics are registered.
func ObserveFormulaEvaluation(err error) {
	if FormulaEvaluationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	FormulaEvaluationsTotal.WithLabelValues(result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
