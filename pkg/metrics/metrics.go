// Package metrics exposes Prometheus collectors for conversions and the
// mailbox worker, and serves them with a health endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "upn2epc"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Registry *prometheus.Registry

	// Conversion outcomes by origin (cli, mail) and status
	Conversions *prometheus.CounterVec

	// Conversion latency by origin
	ConversionLatency *prometheus.HistogramVec

	// Payments recovered by origin
	Payments *prometheus.CounterVec

	// Mailbox poll cycles by result (ok, error)
	MailCycles *prometheus.CounterVec

	// Mailbox messages by outcome (replied, skipped, duplicate, failed)
	MailMessages *prometheus.CounterVec

	MailCycleLatency prometheus.Histogram
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Total conversions by origin and status",
		}, []string{"origin", "status"}),

		ConversionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Duration of a full PDF conversion including page renders",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"origin"}),

		Payments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Total payments recovered from converted documents",
		}, []string{"origin"}),

		MailCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_cycles_total",
			Help:      "Total mailbox poll cycles by result",
		}, []string{"result"}),

		MailMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_messages_total",
			Help:      "Total mailbox messages by outcome",
		}, []string{"outcome"}),

		MailCycleLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mail_cycle_duration_seconds",
			Help:      "Duration of one mailbox poll cycle",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// ObserveConversion records one finished conversion.
func (m *Metrics) ObserveConversion(origin, status string, payments int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(origin, status).Inc()
	m.ConversionLatency.WithLabelValues(origin).Observe(elapsed.Seconds())
	if payments > 0 {
		m.Payments.WithLabelValues(origin).Add(float64(payments))
	}
}

// ObserveCycle records one mailbox poll cycle.
func (m *Metrics) ObserveCycle(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MailCycles.WithLabelValues(result).Inc()
	m.MailCycleLatency.Observe(elapsed.Seconds())
}

// IncMessage records the outcome of one mailbox message.
func (m *Metrics) IncMessage(outcome string) {
	if m != nil {
		m.MailMessages.WithLabelValues(outcome).Inc()
	}
}
