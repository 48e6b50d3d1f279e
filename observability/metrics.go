// Package observability exposes Prometheus metrics for the chat service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	GroupsCreated  prometheus.Counter
	GroupsDeleted  prometheus.Counter
	MessagesPosted *prometheus.CounterVec
	SeenMarks      prometheus.Counter

	requestSeconds *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		GroupsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_groups_created_total",
			Help: "Number of chat groups created.",
		}),
		GroupsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_groups_deleted_total",
			Help: "Number of chat groups deleted.",
		}),
		MessagesPosted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Number of messages posted, by content kind.",
		}, []string{"kind"}),
		SeenMarks: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_seen_marks_total",
			Help: "Number of seen acknowledgements recorded.",
		}),
		requestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Handler serves the /metrics scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labeled by method and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		m.requestSeconds.
			WithLabelValues(r.Method, strconv.Itoa(recorder.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
