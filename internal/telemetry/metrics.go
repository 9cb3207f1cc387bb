// Package telemetry exposes a lowering run's progress and results to the
// outside world: a Prometheus metrics page, a small HTTP control surface,
// a live event stream over a websocket, and an optional one-record-per-run
// publication to Kafka for fleet-wide build observability.
package telemetry

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics holds the counters and histograms for one compiler run. A fresh
// Set (rather than the global default registry) keeps concurrent test runs
// and concurrent CLI invocations in one process from clobbering each
// other's series.
type Metrics struct {
	set *metrics.Set

	passDuration map[string]*metrics.Histogram
	gateCount    *metrics.Histogram
	stageCount   *metrics.Histogram
	diagnostics  *metrics.Counter
	runs         *metrics.Counter
}

// New returns a Metrics ready to record one or more compiler runs.
func New() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:          set,
		passDuration: make(map[string]*metrics.Histogram),
		gateCount:    set.NewHistogram("autopiper_stage_gate_count"),
		stageCount:   set.NewHistogram("autopiper_pipe_stage_count"),
		diagnostics:  set.NewCounter(`autopiper_diagnostics_total`),
		runs:         set.NewCounter(`autopiper_runs_total`),
	}
}

// ObservePass records how long one named pass took, in seconds.
func (m *Metrics) ObservePass(name string, seconds float64) {
	h, ok := m.passDuration[name]
	if !ok {
		h = m.set.NewHistogram(fmt.Sprintf(`autopiper_pass_duration_seconds{pass=%q}`, name))
		m.passDuration[name] = h
	}
	h.Update(seconds)
}

// ObserveGates records one scheduled statement's per-stage gate delay.
func (m *Metrics) ObserveGates(n int) { m.gateCount.Update(float64(n)) }

// ObserveStages records one pipe's final stage count.
func (m *Metrics) ObserveStages(n int) { m.stageCount.Update(float64(n)) }

// IncDiagnostic counts one reported diagnostic.
func (m *Metrics) IncDiagnostic() { m.diagnostics.Inc() }

// IncRun counts one completed compiler run.
func (m *Metrics) IncRun() { m.runs.Inc() }

// WritePrometheus renders the current metrics page.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
