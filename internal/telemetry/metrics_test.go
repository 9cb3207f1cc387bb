package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_WritePrometheus(t *testing.T) {
	m := New()
	m.ObservePass("crosslink", 0.01)
	m.ObserveGates(12)
	m.ObserveStages(4)
	m.IncDiagnostic()
	m.IncRun()

	var buf strings.Builder
	m.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, "autopiper_pass_duration_seconds")
	assert.Contains(t, out, "autopiper_stage_gate_count")
	assert.Contains(t, out, "autopiper_pipe_stage_count")
	assert.Contains(t, out, "autopiper_diagnostics_total 1")
	assert.Contains(t, out, "autopiper_runs_total 1")
}

func TestMetrics_IndependentSets(t *testing.T) {
	a, b := New(), New()
	a.IncRun()

	var bufA, bufB strings.Builder
	a.WritePrometheus(&bufA)
	b.WritePrometheus(&bufB)

	assert.Contains(t, bufA.String(), "autopiper_runs_total 1")
	assert.Contains(t, bufB.String(), "autopiper_runs_total 0")
}
