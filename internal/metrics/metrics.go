// Package metrics exposes the engine's Prometheus instrumentation
// (SPEC_FULL.md §2.2, §4.5): counters for tchash/rhash hits and misses, a
// histogram of task execution duration, and a gauge of in-flight permits.
// Grounded verbatim on mattcburns-shoal's
// internal/provisioner/metrics/metrics.go — the package-level mutex-guarded
// *prometheus.Registry, resetLocked/sanitizeLabel helpers, and MustRegister
// wiring are the same shape, retargeted from Redfish operations to
// memoized-task lookup outcomes.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcome labels, matching the state machine transitions of §4.5.
const (
	OutcomeDepsHit    = "deps_hit"
	OutcomeDepsMiss   = "deps_miss"
	OutcomeResultHit  = "result_hit"
	OutcomeResultMiss = "result_miss"
	OutcomeRestored   = "restored"
	OutcomeStored     = "stored"
	OutcomeFailed     = "failed"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	lookups        *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	inFlightGauge  prometheus.Gauge
	failureLatched prometheus.Counter
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all collectors. Primarily used by tests to
// ensure clean state across independent Engine instances.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler exposing metrics in Prometheus text
// format, mounted by internal/server at /metrics.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveLookup increments the counter for a single memoizer state
// transition (§4.5's state machine), labeled by task name and outcome.
func ObserveLookup(taskName, outcome string) {
	labelTask := sanitizeLabel(taskName, "unknown")
	labelOutcome := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if lookups != nil {
		lookups.WithLabelValues(labelTask, labelOutcome).Inc()
	}
}

// ObserveExecution records the wall-clock duration of a task body that ran
// to completion (the EXEC -> STORED transition of §4.5).
func ObserveExecution(taskName string, d time.Duration) {
	labelTask := sanitizeLabel(taskName, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if taskDuration != nil {
		taskDuration.WithLabelValues(labelTask).Observe(durationSeconds(d))
	}
}

// SetInFlight reports the governor's current permit count (§4.6).
func SetInFlight(n int64) {
	mu.RLock()
	defer mu.RUnlock()
	if inFlightGauge != nil {
		inFlightGauge.Set(float64(n))
	}
}

// IncFailureLatch increments the counter tracking how many times a failure
// latch has tripped. Engine.Fail calls it once per Engine, on the call that
// trips that Engine's latch; it is a counter rather than a flag so that
// several Engines constructed within one process (as in tests) each count.
func IncFailureLatch() {
	mu.RLock()
	defer mu.RUnlock()
	if failureLatched != nil {
		failureLatched.Inc()
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	lookupsVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memo",
		Subsystem: "engine",
		Name:      "lookups_total",
		Help:      "Total memoizer lookup state transitions, by task and outcome.",
	}, []string{"task", "outcome"})

	durationHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memo",
		Subsystem: "engine",
		Name:      "task_duration_seconds",
		Help:      "Duration of task bodies that executed (cache miss path).",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
	}, []string{"task"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "memo",
		Subsystem: "engine",
		Name:      "inflight_permits",
		Help:      "Number of concurrency-governor permits currently held.",
	})

	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "memo",
		Subsystem: "engine",
		Name:      "failure_latch_trips_total",
		Help:      "Number of times the process-global failure latch has tripped.",
	})

	registry.MustRegister(lookupsVec, durationHist, inFlight, failures)

	reg = registry
	lookups = lookupsVec
	taskDuration = durationHist
	inFlightGauge = inFlight
	failureLatched = failures
}

func sanitizeLabel(v string, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func durationSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}
