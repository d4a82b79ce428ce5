package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event metrics
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_events_received_total",
		Help: "Total number of triggers and actions received",
	}, []string{"event"})

	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_events_processed_total",
		Help: "Total number of triggers and actions processed",
	}, []string{"event", "status"})

	// Command metrics
	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_commands_executed_total",
		Help: "Total number of !commands executed",
	}, []string{"command"})

	// Reply pipeline metrics
	restrictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_restrictions_total",
		Help: "Total number of replies refused by policy",
	}, []string{"reason"})

	repliesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redditbot_replies_posted_total",
		Help: "Total number of AI generated replies submitted",
	})

	counterIncrementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redditbot_usage_increment_failures_total",
		Help: "Total number of usage counter updates that failed after a reply was posted",
	})

	// AI metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redditbot_ai_request_duration_seconds",
		Help:    "Duration of completion and moderation requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_ai_requests_total",
		Help: "Total number of completion and moderation requests",
	}, []string{"endpoint", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redditbot_moderation_cache_hits_total",
		Help: "Total number of moderation cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redditbot_moderation_cache_misses_total",
		Help: "Total number of moderation cache misses",
	})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redditbot_rate_limit_exceeded_total",
		Help: "Total number of comment triggers dropped by the per-author limiter",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redditbot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redditbot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordEventReceived records a received trigger or action
func (m *Metrics) RecordEventReceived(event string) {
	eventsReceived.WithLabelValues(event).Inc()
}

// RecordEventProcessed records the outcome of a trigger or action
func (m *Metrics) RecordEventProcessed(event, status string) {
	eventsProcessed.WithLabelValues(event, status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordRestriction records a policy rejection
func (m *Metrics) RecordRestriction(reason string) {
	restrictionsTotal.WithLabelValues(reason).Inc()
}

// RecordReplyPosted records a submitted reply
func (m *Metrics) RecordReplyPosted() {
	repliesPosted.Inc()
}

// RecordCounterIncrementFailure records a lost usage increment
func (m *Metrics) RecordCounterIncrementFailure() {
	counterIncrementFailures.Inc()
}

// RecordAIRequest records a completion or moderation request
func (m *Metrics) RecordAIRequest(endpoint, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// NewMetricsRouter builds the status router: metrics, health and the rendered command list
func NewMetricsRouter(path, commandsHTML string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/commands", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(commandsHTML))
	}).Methods(http.MethodGet)

	return router
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path, commandsHTML string) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMetricsRouter(path, commandsHTML),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
