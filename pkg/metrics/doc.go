/*
Package metrics provides Prometheus instrumentation and health checking
for the ROSS engine. It exposes counters, gauges, and histograms covering
the store's operational surface (repository/branch lifecycle, editor
cache behavior, perform/commit throughput and latency, conflict rates)
in Prometheus exposition format for scraping.

# Architecture

The package has three parts:

  - Metric definitions (metrics.go): package-level collectors registered
    with the default Prometheus registry at init. Counter- and
    histogram-shaped metrics are recorded at their call sites in
    pkg/editor and pkg/engine.

  - Collector (collector.go): a 15-second poller that samples
    gauge-shaped state (cached editor count, total subscriber count)
    from a Source, implemented by pkg/engine's Context.

  - Health checking (health.go): component-level health registration
    with /health, /ready, and /live HTTP handlers. The critical
    components for readiness are "storage" (the bbolt database is open)
    and "engine" (the context is serving editors).

# Store Metrics

ross_repositories_created_total:
  - Type: Counter
  - Description: Repositories created since process start

ross_branches_created_total, ross_branches_deleted_total:
  - Type: Counter
  - Description: Branch lifecycle events

# Editor Metrics

ross_editors_cached:
  - Type: Gauge
  - Description: Editors currently held in the context's DropMap cache,
    including those pending TTL eviction

ross_editor_opens_total:
  - Type: Counter
  - Description: Cache misses that loaded a branch from storage

ross_performs_total{outcome}:
  - Type: CounterVec
  - Description: Perform requests by outcome (applied, conflict, refused)
  - Example: ross_performs_total{outcome="conflict"} 12

ross_conflicts_total{kind}:
  - Type: CounterVec
  - Description: Patch conflicts by kind (IdCollision, WriteDelete,
    DeleteWrite, CAS)

ross_commits_total:
  - Type: Counter
  - Description: Commits landed across all branches

ross_live_changes_appended_total:
  - Type: Counter
  - Description: Batch patches appended to live-changes logs

ross_broadcast_subscribers:
  - Type: Gauge
  - Description: Sessions currently subscribed across all editors

ross_snapshots_written_total{form}:
  - Type: CounterVec
  - Description: Snapshot entries written, by form ("snapshot" for a
    full image, "delta" for a base+delta pair)

# Latency Metrics

ross_perform_duration_seconds, ross_commit_duration_seconds,
ross_checkout_duration_seconds, ross_editor_open_duration_seconds:
  - Type: Histogram
  - Buckets: Prometheus defaults (5ms to 10s)

# Usage

Serving the endpoints:

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

Recording an operation at a call site:

	timer := metrics.NewTimer()
	// ... perform work ...
	timer.ObserveDuration(metrics.PerformDuration)
	metrics.PerformsTotal.WithLabelValues("applied").Inc()

Running the gauge collector against an engine context:

	collector := metrics.NewCollector(ctx)
	collector.Start()
	defer collector.Stop()
*/
package metrics
