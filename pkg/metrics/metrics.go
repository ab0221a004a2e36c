package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	RepositoriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_repositories_created_total",
			Help: "Total number of repositories created",
		},
	)

	BranchesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_branches_created_total",
			Help: "Total number of branches created",
		},
	)

	BranchesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_branches_deleted_total",
			Help: "Total number of branches deleted",
		},
	)

	// Editor metrics
	EditorsCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ross_editors_cached",
			Help: "Number of editors currently held in the context cache",
		},
	)

	EditorOpensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_editor_opens_total",
			Help: "Total number of editor cache misses that loaded a branch from storage",
		},
	)

	PerformsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ross_performs_total",
			Help: "Total number of perform requests by outcome",
		},
		[]string{"outcome"},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ross_conflicts_total",
			Help: "Total number of patch conflicts detected by kind",
		},
		[]string{"kind"},
	)

	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_commits_total",
			Help: "Total number of commits landed",
		},
	)

	LiveChangesAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ross_live_changes_appended_total",
			Help: "Total number of batch patches appended to live-changes logs",
		},
	)

	BroadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ross_broadcast_subscribers",
			Help: "Number of sessions currently subscribed across all editors",
		},
	)

	// Operation latency metrics
	PerformDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ross_perform_duration_seconds",
			Help:    "Time taken to apply and persist a perform request",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ross_commit_duration_seconds",
			Help:    "Time taken to land a commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ross_checkout_duration_seconds",
			Help:    "Time taken to resolve a commit's snapshot chain into a state",
			Buckets: prometheus.DefBuckets,
		},
	)

	EditorOpenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ross_editor_open_duration_seconds",
			Help:    "Time taken to load a branch into an editor on a cache miss",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ross_snapshots_written_total",
			Help: "Total snapshot entries written, by form (snapshot or delta)",
		},
		[]string{"form"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RepositoriesCreatedTotal)
	prometheus.MustRegister(BranchesCreatedTotal)
	prometheus.MustRegister(BranchesDeletedTotal)
	prometheus.MustRegister(EditorsCached)
	prometheus.MustRegister(EditorOpensTotal)
	prometheus.MustRegister(PerformsTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(LiveChangesAppendedTotal)
	prometheus.MustRegister(BroadcastSubscribers)

	// Register operation latency metrics
	prometheus.MustRegister(PerformDuration)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(CheckoutDuration)
	prometheus.MustRegister(EditorOpenDuration)
	prometheus.MustRegister(SnapshotsWrittenTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
