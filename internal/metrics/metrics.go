// Package metrics exposes Prometheus collectors for API calls, stored
// revisions and task execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "wiki_harvester"

var (
	// APIRequestsTotal counts MediaWiki API calls by action and status
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_requests_total",
		Help:      "Total MediaWiki API requests by action and status",
	}, []string{"action", "status"})

	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "api_latency_seconds",
		Help:      "MediaWiki API latency by action",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	// RevisionsStored counts revision documents written, by the task that wrote them
	RevisionsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "revisions_stored_total",
		Help:      "Revision documents written to the store",
	}, []string{"source"})

	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tasks_total",
		Help:      "Finished tasks by name and final status",
	}, []string{"task", "status"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "task_duration_seconds",
		Help:      "Task run time by name",
		Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"task"})

	TasksInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tasks_in_flight",
		Help:      "Tasks currently running on this worker",
	}, []string{"task"})

	PrefetchResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "prefetch_responses_total",
		Help:      "Prefetch responses by kind and status",
	}, []string{"kind", "status"})
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordAPICall records one MediaWiki API round trip.
func RecordAPICall(action string, duration float64, success bool) {
	APIRequestsTotal.WithLabelValues(action, status(success)).Inc()
	APILatency.WithLabelValues(action).Observe(duration)
}

// RecordTask records a finished task.
func RecordTask(task string, duration float64, success bool) {
	TasksTotal.WithLabelValues(task, status(success)).Inc()
	TaskDuration.WithLabelValues(task).Observe(duration)
}

func RecordRevisionsStored(source string, n int) {
	RevisionsStored.WithLabelValues(source).Add(float64(n))
}

func RecordPrefetch(kind string, success bool) {
	PrefetchResponses.WithLabelValues(kind, status(success)).Inc()
}
