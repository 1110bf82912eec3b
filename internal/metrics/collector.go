// Package metrics provides Prometheus metrics for forge runs and cluster
// enumeration.
//
// One-shot commands write the registry to a node-exporter textfile on exit;
// the long-running watch command serves it over HTTP.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-forge-runner/internal/stats"
)

// Collector owns the forge metrics and the latency summaries behind the exit
// summary. All methods are safe on a nil *Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	// --- Run ---
	info                *prometheus.GaugeVec
	runsTotal           *prometheus.CounterVec
	runDurationSeconds  *prometheus.HistogramVec
	lastRunTimestamp    prometheus.Gauge
	invariantViolations prometheus.Counter

	// --- Poll loop ---
	pollIterationsTotal  *prometheus.CounterVec
	pollIterationSeconds prometheus.Histogram

	// --- Enumeration ---
	clusterJobs         *prometheus.GaugeVec
	clusterQuerySeconds *prometheus.HistogramVec
	clusterErrorsTotal  *prometheus.CounterVec
	credentialFiles     prometheus.Gauge

	mu             sync.Mutex
	pollLatency    *stats.LatencySummary
	clusterLatency map[string]*stats.LatencySummary
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a collector registering into registry.
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry:       registry,
		pollLatency:    stats.NewLatencySummary(),
		clusterLatency: make(map[string]*stats.LatencySummary),

		// =====================================================================
		// Run
		// =====================================================================
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forge_runner_info",
				Help: "Information about the forge runner (value always 1)",
			},
			[]string{"version", "invocation_id"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_runs_total",
				Help: "Forge attempts by runner mode and verdict",
			},
			[]string{"mode", "state"},
		),
		runDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_run_duration_seconds",
				Help:    "Wall time of a forge attempt",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"mode"},
		),
		lastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "forge_last_run_timestamp_seconds",
				Help: "Unix time the last forge attempt finished",
			},
		),
		invariantViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "forge_invariant_violations_total",
				Help: "Attempts that finished without a terminal state or output",
			},
		),

		// =====================================================================
		// Poll loop
		// =====================================================================
		pollIterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_poll_iterations_total",
				Help: "Runner pod poll iterations by observed phase",
			},
			[]string{"phase"},
		),
		pollIterationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forge_poll_iteration_seconds",
				Help:    "Time spent in one log fetch plus phase query",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),

		// =====================================================================
		// Enumeration
		// =====================================================================
		clusterJobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forge_cluster_jobs",
				Help: "Forge jobs found on a cluster by phase",
			},
			[]string{"cluster", "phase"},
		),
		clusterQuerySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_cluster_query_seconds",
				Help:    "Credential write plus pod listing per cluster",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cluster"},
		),
		clusterErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_cluster_errors_total",
				Help: "Failed cluster queries",
			},
			[]string{"cluster"},
		),
		credentialFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "forge_credential_files",
				Help: "Temporary kubeconfig files awaiting cleanup",
			},
		),
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.runDurationSeconds,
		c.lastRunTimestamp,
		c.invariantViolations,
		c.pollIterationsTotal,
		c.pollIterationSeconds,
		c.clusterJobs,
		c.clusterQuerySeconds,
		c.clusterErrorsTotal,
		c.credentialFiles,
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// SetInfo publishes the build version and invocation id.
func (c *Collector) SetInfo(version, invocationID string) {
	if c == nil {
		return
	}
	c.info.WithLabelValues(version, invocationID).Set(1)
}

// RecordRun records a finished attempt.
func (c *Collector) RecordRun(mode, state string, d time.Duration, finished time.Time) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(mode, state).Inc()
	c.runDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
	c.lastRunTimestamp.Set(float64(finished.Unix()))
}

// RecordInvariantViolation counts an attempt that sealed inconsistently.
func (c *Collector) RecordInvariantViolation() {
	if c == nil {
		return
	}
	c.invariantViolations.Inc()
}

// RecordPoll records one poll iteration.
func (c *Collector) RecordPoll(phase string, d time.Duration) {
	if c == nil {
		return
	}
	if phase == "" {
		phase = "unknown"
	}
	c.pollIterationsTotal.WithLabelValues(phase).Inc()
	c.pollIterationSeconds.Observe(d.Seconds())
	c.pollLatency.Observe(d)
}

// RecordClusterQuery records one cluster's enumeration. jobs counts the
// forge jobs found by phase; it is ignored when err is set.
func (c *Collector) RecordClusterQuery(cluster string, d time.Duration, jobs map[string]int, err error) {
	if c == nil {
		return
	}
	c.clusterQuerySeconds.WithLabelValues(cluster).Observe(d.Seconds())
	if err != nil {
		c.clusterErrorsTotal.WithLabelValues(cluster).Inc()
	} else {
		c.clusterJobs.DeletePartialMatch(prometheus.Labels{"cluster": cluster})
		for phase, n := range jobs {
			c.clusterJobs.WithLabelValues(cluster, phase).Set(float64(n))
		}
	}

	c.mu.Lock()
	s, ok := c.clusterLatency[cluster]
	if !ok {
		s = stats.NewLatencySummary()
		c.clusterLatency[cluster] = s
	}
	c.mu.Unlock()
	s.Observe(d)
}

// AddCredentialFiles adjusts the pending credential file gauge.
func (c *Collector) AddCredentialFiles(delta int) {
	if c == nil {
		return
	}
	c.credentialFiles.Add(float64(delta))
}

// PollLatency returns the poll iteration latency summary.
func (c *Collector) PollLatency() stats.Snapshot {
	if c == nil {
		return stats.Snapshot{}
	}
	return c.pollLatency.Snapshot()
}

// ClusterLatency returns per-cluster query latency summaries.
func (c *Collector) ClusterLatency() map[string]stats.Snapshot {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]stats.Snapshot, len(c.clusterLatency))
	for name, s := range c.clusterLatency {
		out[name] = s.Snapshot()
	}
	return out
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
