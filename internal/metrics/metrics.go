package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recap"

// Recorder collects per-run counters. A nil Recorder discards everything.
type Recorder struct {
	registry    *prometheus.Registry
	chunks      *prometheus.CounterVec
	retries     *prometheus.CounterVec
	findings    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	chunkTime   prometheus.Histogram
	runDuration prometheus.Gauge
	lastRun     prometheus.Gauge
}

// New registers the recap collectors on a private registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Transcription units processed, by backend and outcome.",
		}, []string{"backend", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Transcription attempts retried after a transient failure.",
		}, []string{"backend"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_findings_total",
			Help:      "Hallucination audit findings by severity.",
		}, []string{"severity"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
		chunkTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_transcription_seconds",
			Help:      "Wall time spent transcribing one unit.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
	r.registry.MustRegister(r.chunks, r.retries, r.findings, r.runs, r.chunkTime, r.runDuration, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Chunk records one unit outcome: "transcribed", "reused" or "failed".
func (r *Recorder) Chunk(backend, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.chunks.WithLabelValues(backend, outcome).Inc()
	if outcome == "transcribed" && elapsed > 0 {
		r.chunkTime.Observe(elapsed.Seconds())
	}
}

// Retry counts one retried transcription attempt.
func (r *Recorder) Retry(backend string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(backend).Inc()
}

// Findings adds audit counts keyed by severity name.
func (r *Recorder) Findings(counts map[string]int) {
	if r == nil {
		return
	}
	for severity, n := range counts {
		if n > 0 {
			r.findings.WithLabelValues(severity).Add(float64(n))
		}
	}
}

// RunFinished records a terminal run status and its duration.
func (r *Recorder) RunFinished(status string, elapsed time.Duration, at time.Time) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Set(elapsed.Seconds())
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
