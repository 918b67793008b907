package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for the scheduling core.
type SchedulerMetrics struct {
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	planCacheLookup *prometheus.CounterVec
	placements      *prometheus.CounterVec
	boardRefreshes  prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiodesk",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total clinic backend API calls",
		}, []string{"operation", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physiodesk",
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "Latency of clinic backend API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		planCacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiodesk",
			Subsystem: "plans",
			Name:      "cache_lookup_total",
			Help:      "Patient-to-plan cache lookups by result",
		}, []string{"result"}),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physiodesk",
			Subsystem: "overbook",
			Name:      "placements_total",
			Help:      "Overbooking queue placement attempts by outcome",
		}, []string{"outcome"}),
		boardRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physiodesk",
			Subsystem: "board",
			Name:      "refreshes_total",
			Help:      "Full day-schedule refreshes served",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendRequests, m.backendLatency, m.planCacheLookup, m.placements, m.boardRefreshes)
	return m
}

func (m *SchedulerMetrics) ObserveBackendRequest(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(operation, outcome).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulerMetrics) ObservePlanCacheLookup(result string) {
	if m == nil {
		return
	}
	m.planCacheLookup.WithLabelValues(result).Inc()
}

func (m *SchedulerMetrics) ObservePlacement(outcome string) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(outcome).Inc()
}

func (m *SchedulerMetrics) ObserveBoardRefresh() {
	if m == nil {
		return
	}
	m.boardRefreshes.Inc()
}
