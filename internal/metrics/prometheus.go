package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apexfest/checkin/internal/middleware"
)

// Result labels
const (
	ResultSuccess   = "success"
	ResultCooldown  = "cooldown"
	ResultNotFound  = "not_found"
	ResultInvalid   = "invalid"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)

// Manager owns the service metrics and the registry they are served from.
// A nil or disabled Manager accepts every call and records nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	checkins        *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	recordsInserted prometheus.Counter
	registrations   prometheus.Counter
	streamClients   prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager on a private registry unless one is given
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "checkin",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.checkins = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "checkins_total",
		Help:      "Self-service check-in attempts by result",
	}, []string{"result"})

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "submissions_total",
		Help:      "Host batch submissions by result",
	}, []string{"result"})

	m.recordsInserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "records_inserted_total",
		Help:      "Participation records written to the ledger",
	})

	m.registrations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "registrations_total",
		Help:      "Subjects registered",
	})

	m.streamClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "leaderboard_stream_clients",
		Help:      "Connected live leaderboard clients",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) active() bool {
	return m != nil && m.enabled
}

// CheckIn counts a self-service check-in attempt
func (m *Manager) CheckIn(result string) {
	if !m.active() {
		return
	}
	m.checkins.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.recordsInserted.Inc()
	}
}

// Submission counts a batch submission and the records it wrote
func (m *Manager) Submission(result string, records int) {
	if !m.active() {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
	if result == ResultSuccess && records > 0 {
		m.recordsInserted.Add(float64(records))
	}
}

// Registration counts a new subject
func (m *Manager) Registration() {
	if !m.active() {
		return
	}
	m.registrations.Inc()
}

// StreamClients sets the number of live leaderboard clients
func (m *Manager) StreamClients(n int) {
	if !m.active() {
		return
	}
	m.streamClients.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency, labelled by mux route template
func (m *Manager) Middleware(next http.Handler) http.Handler {
	if !m.active() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
