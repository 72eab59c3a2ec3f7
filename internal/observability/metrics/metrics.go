package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for appointment writes.
type BookingMetrics struct {
	writesTotal    *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	checksTotal    *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "booking",
			Name:      "writes_total",
			Help:      "Total appointment writes by operation",
		}, []string{"operation", "service_line", "status"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Writes rejected because a resource or professional was taken",
		}, []string{"service_line", "reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of appointment writes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service_line", "status"}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "availability",
			Name:      "checks_total",
			Help:      "Total availability checks by outcome",
		}, []string{"service_line", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.writesTotal, m.conflictsTotal, m.latency, m.checksTotal)
	return m
}

// ObserveWrite records one booking write. status is "ok" or an error code.
func (m *BookingMetrics) ObserveWrite(operation, serviceLine, status string, seconds float64) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(operation, serviceLine, status).Inc()
	m.latency.WithLabelValues(serviceLine, status).Observe(seconds)
}

func (m *BookingMetrics) ObserveConflict(serviceLine, reason string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(serviceLine, reason).Inc()
}

func (m *BookingMetrics) ObserveCheck(serviceLine string, available bool) {
	if m == nil {
		return
	}
	outcome := "unavailable"
	if available {
		outcome = "available"
	}
	m.checksTotal.WithLabelValues(serviceLine, outcome).Inc()
}
