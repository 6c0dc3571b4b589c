package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты регистрации заказа для label outcome.
const (
	OutcomeCommitted = "committed"
)

// OrderMetrics содержит метрики транзакции регистрации заказа.
type OrderMetrics struct {
	// Счётчики исходов и попыток
	submissions *prometheus.CounterVec
	attempts    prometheus.Counter
	retries     prometheus.Counter

	// Гистограммы времени выполнения
	submitDuration  prometheus.Histogram
	attemptsPerCall prometheus.Histogram

	// Единицы товара, принятые первичной поставкой
	receivedUnits prometheus.Counter

	// Gauge для транзакций в процессе
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном registerer (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		submissions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "scm_order_submissions_total",
			Help: "Total number of order submissions grouped by terminal outcome",
		}, []string{"outcome"}),
		attempts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "scm_order_tx_attempts_total",
			Help: "Total number of order transaction attempts",
		}),
		retries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "scm_order_tx_retries_total",
			Help: "Total number of order transaction retries after a transient conflict",
		}),
		submitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "scm_order_submit_duration_seconds",
			Help:    "Duration of order submissions including retries and backoff",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		attemptsPerCall: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "scm_order_attempts_per_submission",
			Help:    "Number of transaction attempts used per submission",
			Buckets: []float64{1, 2, 3, 5},
		}),
		receivedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "scm_inventory_received_units_total",
			Help: "Total units booked into warehouse inventory by initial receipts",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "scm_order_submissions_in_flight",
			Help: "Number of order submissions currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSubmissionStarted увеличивает количество активных регистраций.
func (m *OrderMetrics) RecordSubmissionStarted() {
	m.inFlight.Inc()
}

// RecordSubmissionFinished фиксирует исход, число попыток и длительность регистрации.
func (m *OrderMetrics) RecordSubmissionFinished(outcome string, attempts int, duration time.Duration) {
	m.inFlight.Dec()
	m.submissions.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.attemptsPerCall.Observe(float64(attempts))
	}
	m.submitDuration.Observe(duration.Seconds())
}

// RecordAttempt увеличивает счётчик транзакционных попыток.
func (m *OrderMetrics) RecordAttempt() {
	m.attempts.Inc()
}

// RecordRetry увеличивает счётчик повторов после transient conflict.
func (m *OrderMetrics) RecordRetry() {
	m.retries.Inc()
}

// RecordReceivedUnits добавляет принятые на склад единицы.
func (m *OrderMetrics) RecordReceivedUnits(units int64) {
	if units <= 0 {
		return
	}
	m.receivedUnits.Add(float64(units))
}
