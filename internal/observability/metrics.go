package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	attendanceScansTotal *prometheus.CounterVec
	loansCheckedOutTotal prometheus.Counter
	loansReturnedTotal   *prometheus.CounterVec
	penaltyCentsTotal    prometheus.Counter
	eventsPublishedTotal *prometheus.CounterVec
	liveClientsActive    prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusdesk_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusdesk_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusdesk_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		attendanceScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusdesk_attendance_signins_total",
			Help: "Sign-in attempts by source and outcome.",
		}, []string{"source", "outcome"})

		loansCheckedOutTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusdesk_loans_checked_out_total",
			Help: "Loans opened at the equipment desk.",
		})

		loansReturnedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusdesk_loans_returned_total",
			Help: "Loans closed, split by whether they were late.",
		}, []string{"late"})

		penaltyCentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusdesk_penalty_cents_total",
			Help: "Late penalties assessed, in cents.",
		})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusdesk_events_published_total",
			Help: "Domain events delivered to local subscribers by type and origin.",
		}, []string{"type", "origin"})

		liveClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusdesk_live_clients_active",
			Help: "Connected live attendance board clients.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			attendanceScansTotal,
			loansCheckedOutTotal,
			loansReturnedTotal,
			penaltyCentsTotal,
			eventsPublishedTotal,
			liveClientsActive,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// AttendanceSignIns counts sign-in attempts.
func AttendanceSignIns() *prometheus.CounterVec {
	RegisterMetrics()
	return attendanceScansTotal
}

// LoansCheckedOut counts opened loans.
func LoansCheckedOut() prometheus.Counter {
	RegisterMetrics()
	return loansCheckedOutTotal
}

// LoansReturned counts closed loans.
func LoansReturned() *prometheus.CounterVec {
	RegisterMetrics()
	return loansReturnedTotal
}

// PenaltyCents sums assessed penalties.
func PenaltyCents() prometheus.Counter {
	RegisterMetrics()
	return penaltyCentsTotal
}

// EventsPublished counts domain events fanned out to local subscribers.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// LiveClientsActive tracks connected live board clients.
func LiveClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return liveClientsActive
}
