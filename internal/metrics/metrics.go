// Package metrics exports pipeline activity as Prometheus metrics by
// subscribing to the event bus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/verifact/internal/events"
)

const namespace = "verifact"

// Collector turns events into metrics. Each collector owns its registry so
// several can coexist in one process.
//
// Thread Safety: Handle is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	// events counts every event by type.
	// Labels: type
	events *prometheus.CounterVec

	// issues counts warnings and errors.
	// Labels: severity (warning, error), stage
	issues *prometheus.CounterVec

	// retries counts failed stage attempts that were followed by another.
	// Labels: stage
	retries *prometheus.CounterVec

	// verdicts counts verdicts by label.
	// Labels: label
	verdicts *prometheus.CounterVec

	confidence *prometheus.HistogramVec
	evidence   prometheus.Histogram

	// runs counts finished runs.
	// Labels: outcome (completed, timed_out, failed)
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	claims      prometheus.Counter

	mu      sync.Mutex
	started map[string]time.Time // run ID -> start, until the run ends
}

// NewCollector creates a collector with a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		started:  make(map[string]time.Time),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Pipeline events published, by type",
		}, []string{"type"}),
		issues: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Warnings and errors reported by the pipeline",
		}, []string{"severity", "stage"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Failed stage attempts that were retried",
		}, []string{"stage"}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts generated, by label",
		}, []string{"label"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verdict_confidence",
			Help:      "Distribution of verdict confidence",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"label"}),
		evidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evidence_items",
			Help:      "Evidence items gathered per claim",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs, by outcome",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs, failed ones included",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		claims: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_detected_total",
			Help:      "Claims handed to evidence gathering",
		}),
	}
}

// Handle records one event. It is an events.Handler.
func (c *Collector) Handle(e events.Event) error {
	c.events.WithLabelValues(string(e.Type)).Inc()

	switch d := e.Data.(type) {
	case events.StartedData:
		if e.RunID != "" {
			c.mu.Lock()
			c.started[e.RunID] = e.Time
			c.mu.Unlock()
		}
	case events.ClaimData:
		c.claims.Inc()
	case events.EvidenceData:
		c.evidence.Observe(float64(len(d.Evidence)))
	case events.VerdictData:
		label := string(d.Verdict.Label)
		c.verdicts.WithLabelValues(label).Inc()
		c.confidence.WithLabelValues(label).Observe(d.Verdict.Confidence)
	case events.CompletedData:
		outcome := "completed"
		if d.TimedOut {
			outcome = "timed_out"
		}
		c.runs.WithLabelValues(outcome).Inc()
		c.runDuration.Observe(d.Duration.Seconds())
		c.forget(e.RunID)
	case events.IssueData:
		severity := "warning"
		if e.Type == events.TypeError {
			severity = "error"
		}
		c.issues.WithLabelValues(severity, string(d.Stage)).Inc()
		if e.Type == events.TypeWarning && d.Attempt > 0 && d.Retryable {
			c.retries.WithLabelValues(string(d.Stage)).Inc()
		}
		// A run-level error is the last event of a failed run
		if e.Type == events.TypeError && d.Stage == events.StageRun {
			c.runs.WithLabelValues("failed").Inc()
			if start, ok := c.forget(e.RunID); ok && !e.Time.IsZero() {
				c.runDuration.Observe(e.Time.Sub(start).Seconds())
			}
		}
	}
	return nil
}

// forget drops the start time of a finished run and returns it
func (c *Collector) forget(runID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start, ok := c.started[runID]
	delete(c.started, runID)
	return start, ok
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
