package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session lifecycle metrics
	SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_sessions_created_total",
			Help: "Total number of menu sessions created",
		},
		[]string{"menu"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_sessions_ended_total",
			Help: "Total number of menu sessions ended",
		},
		[]string{"menu", "reason"}, // reason: explicit|ttl|shutdown|queue
	)

	// Dispatch metrics
	ActionsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_actions_handled_total",
			Help: "Total number of dispatched menu actions",
		},
		[]string{"menu", "action", "status"}, // status: ok|error|denied
	)

	// Render metrics
	PageBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_page_build_duration_seconds",
			Help:    "Time spent building a menu page",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"menu"},
	)

	// Queue metrics
	QueueMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_queue_messages_total",
			Help: "Total update-queue messages published/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: published|consumed
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(SessionsCreated)
	prometheus.MustRegister(SessionsEnded)
	prometheus.MustRegister(ActionsHandled)
	prometheus.MustRegister(PageBuildDuration)
	prometheus.MustRegister(QueueMessages)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the metrics HTTP server on the given port
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

// RecordQueueMessage records one queue message flow
func RecordQueueMessage(topic, direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QueueMessages.WithLabelValues(topic, direction, status).Inc()
}
