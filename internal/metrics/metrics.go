// Package metrics exposes the orchestrator's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task lifecycle
	TasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_tasks_created_total",
			Help: "Total number of tasks created",
		},
	)

	TasksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_tasks_dispatched_total",
			Help: "Total number of dispatched tasks by bridge",
		},
		[]string{"bridge"},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_tasks_completed_total",
			Help: "Total number of completed tasks",
		},
	)

	TasksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_tasks_failed_total",
			Help: "Total number of failed tasks",
		},
	)

	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_tasks",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)

	// Bridge I/O
	BridgeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_bridge_duration_seconds",
			Help:    "Bridge execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bridge"},
	)

	InboxPickups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_inbox_pickups_total",
			Help: "Total number of result files picked up from the inbox",
		},
	)

	// Registry and feed
	AgentsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_agents_registered",
			Help: "Number of agents discovered in the agents directory",
		},
	)

	FeedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_feed_subscribers",
			Help: "Number of connected live-feed subscribers",
		},
	)

	// API surface
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(TasksDispatched)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(BridgeDuration)
	prometheus.MustRegister(InboxPickups)
	prometheus.MustRegister(AgentsRegistered)
	prometheus.MustRegister(FeedSubscribers)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
