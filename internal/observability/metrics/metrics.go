package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake flow.
type IntakeMetrics struct {
	transitionsTotal    *prometheus.CounterVec
	bookingsTotal       *prometheus.CounterVec
	confirmationsTotal  *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_intake",
			Subsystem: "calls",
			Name:      "transitions_total",
			Help:      "Total intake state transitions by event and result",
		}, []string{"event", "result"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_intake",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome"}),
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legal_intake",
			Subsystem: "notify",
			Name:      "confirmations_total",
			Help:      "Total confirmation email dispatches by outcome",
		}, []string{"outcome"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "legal_intake",
			Subsystem: "calendar",
			Name:      "availability_latency_seconds",
			Help:      "Latency of availability computation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.bookingsTotal, m.confirmationsTotal, m.availabilityLatency)
	return m
}

func (m *IntakeMetrics) ObserveTransition(event string, err error) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, resultLabel(err)).Inc()
}

func (m *IntakeMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveAvailability(seconds float64, err error) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(resultLabel(err)).Observe(seconds)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
