// Package observability exposes Prometheus metrics and error reporting for
// the lending service.
package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector of the service. It implements
// prometheus.Collector so it can be registered as one unit.
type Metrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // deliveries by kind and status
	DeliveryAttempts *prometheus.HistogramVec // attempts per delivery by kind
	DeliveryDuration *prometheus.HistogramVec // latency by kind
	PassesTotal      *prometheus.CounterVec   // trigger passes by category and outcome
	PassRecipients   *prometheus.CounterVec   // recipients handled by category and status
	PassDuration     *prometheus.HistogramVec // pass latency by category
	LoanOpsTotal     *prometheus.CounterVec   // borrow / return results

	registry prometheus.Registerer
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if registry != nil {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register lending metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_notification_deliveries_total",
			Help: "Notification deliveries by kind and status (sent, failed, skipped)",
		},
		[]string{"kind", "status"},
	)
	m.DeliveryAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_notification_delivery_attempts",
			Help:    "Delivery attempts needed per notification",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
		[]string{"kind"},
	)
	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_notification_delivery_duration_seconds",
			Help:    "Time spent delivering one notification including retries",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
	m.PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_trigger_passes_total",
			Help: "Trigger passes by category and success",
		},
		[]string{"category", "success"},
	)
	m.PassRecipients = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_trigger_recipients_total",
			Help: "Recipients handled by trigger passes by category and status",
		},
		[]string{"category", "status"},
	)
	m.PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_trigger_pass_duration_seconds",
			Help:    "Duration of trigger passes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)
	m.LoanOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_loan_operations_total",
			Help: "Borrow and return operations by result",
		},
		[]string{"operation", "result"},
	)
}

// ObserveDelivery records one dispatched notification.
func (m *Metrics) ObserveDelivery(kind, status string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(kind, status).Inc()
	if attempts > 0 {
		m.DeliveryAttempts.WithLabelValues(kind).Observe(float64(attempts))
		m.DeliveryDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObservePass records a finished trigger pass.
func (m *Metrics) ObservePass(category string, success bool, sent, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(category, strconv.FormatBool(success)).Inc()
	m.PassRecipients.WithLabelValues(category, "sent").Add(float64(sent))
	m.PassRecipients.WithLabelValues(category, "failed").Add(float64(failed))
	m.PassDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// ObserveLoan records a borrow or return result label.
func (m *Metrics) ObserveLoan(operation, result string) {
	if m == nil {
		return
	}
	m.LoanOpsTotal.WithLabelValues(operation, result).Inc()
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryAttempts.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.PassesTotal.Describe(ch)
	m.PassRecipients.Describe(ch)
	m.PassDuration.Describe(ch)
	m.LoanOpsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryAttempts.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.PassesTotal.Collect(ch)
	m.PassRecipients.Collect(ch)
	m.PassDuration.Collect(ch)
	m.LoanOpsTotal.Collect(ch)
}
