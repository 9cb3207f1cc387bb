// Package diag implements the collector pattern of spec.md §7: passes
// report zero or more diagnostics with severity and location rather than
// raising exceptions, and the driver aborts at the first pass whose
// collector holds an ERROR-severity item.
package diag

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/google/autopiper/internal/ir"
)

// Severity of one diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Info"
	}
}

// Kind tags a diagnostic with the taxonomy category from spec.md §7, for
// callers that want to filter or count by kind (eg. the rate limiter).
type Kind string

const (
	KindParse     Kind = "parse"
	KindCrosslink Kind = "crosslink"
	KindType      Kind = "type"
	KindStructure Kind = "structure"
	KindSchedule  Kind = "schedule"
	KindLowering  Kind = "lowering"
	KindIO        Kind = "io"
)

// Diagnostic is one reported item.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Pos      ir.Position
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Pos, d.Message)
}

// Collector accumulates diagnostics across a compile. A single Collector is
// shared by every pass so the driver can ask "did anything go wrong?" once,
// matching core.Bgpipe.Run's Configure/AttachStages/Run short-circuit chain.
//
// Duplicate diagnostics of the same (Kind, Pos.File, Pos.Line) are
// rate-limited: a single malformed statement can fail a width check in
// every downstream consumer, and without a cap the error stream drowns the
// first, actionable diagnostic in repeats of the same root cause.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic

	limiters map[string]*rate.Limiter
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{limiters: make(map[string]*rate.Limiter)}
}

// Report records a diagnostic, subject to per-(kind,file,line) rate
// limiting for Warning/Info severities. Errors are never dropped: losing an
// ERROR would let a bad compile silently pass.
func (c *Collector) Report(sev Severity, kind Kind, pos ir.Position, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	if sev != Error {
		key := fmt.Sprintf("%s:%s:%d", kind, pos.File, pos.Line)
		c.mu.Lock()
		lim, ok := c.limiters[key]
		if !ok {
			lim = rate.NewLimiter(0, 3) // burst of 3, no refill: rate.Every(0) would mean Inf, not 0
			c.limiters[key] = lim
		}
		c.mu.Unlock()
		if !lim.Allow() {
			return
		}
	}

	c.mu.Lock()
	c.items = append(c.items, Diagnostic{Severity: sev, Kind: kind, Pos: pos, Message: msg})
	c.mu.Unlock()
}

// Errorf is shorthand for Report(Error, kind, pos, format, args...).
func (c *Collector) Errorf(kind Kind, pos ir.Position, format string, args ...any) {
	c.Report(Error, kind, pos, format, args...)
}

// Warnf is shorthand for Report(Warning, kind, pos, format, args...).
func (c *Collector) Warnf(kind Kind, pos ir.Position, format string, args ...any) {
	c.Report(Warning, kind, pos, format, args...)
}

// HasErrors reports whether any ERROR-severity diagnostic was collected.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Items returns a snapshot of all collected diagnostics, in report order.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// WriteTo prints every diagnostic to w, one per line, in the
// "Error: file:line:col: message" form of spec.md §6.
func (c *Collector) WriteTo(w io.Writer) {
	for _, d := range c.Items() {
		fmt.Fprintln(w, d.String())
	}
}
