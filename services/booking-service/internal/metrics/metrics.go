package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts schedule verdicts and times availability checks.
type BookingMetrics struct {
	verdicts     *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "booking",
			Name:      "verdicts_total",
			Help:      "Schedule verdicts by operation and outcome",
		}, []string{"operation", "outcome"}),
		checkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicsched",
			Subsystem: "booking",
			Name:      "check_duration_seconds",
			Help:      "Latency of availability checks including store reads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.verdicts, m.checkLatency)
	return m
}

// ObserveVerdict records outcome, which is "accepted" or the rejection reason.
func (m *BookingMetrics) ObserveVerdict(operation, outcome string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveCheckLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.checkLatency.WithLabelValues(operation).Observe(seconds)
}
