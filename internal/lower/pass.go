// Package lower drives the fixed lowering pipeline of spec.md §2 against
// one ir.Program: Configure() parses CLI flags and config into one
// koanf.Koanf tree (mirroring core.Bgpipe's F/K), and Run() executes the
// pipeline in order, short-circuiting at the first pass that fails or
// whose collector holds an error, mirroring Bgpipe.Run's
// Configure/AttachStages/Run chain.
package lower

import (
	"fmt"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

// Pass is one stage of the lowering pipeline, mirroring core.Stage's
// Attach/Run shape collapsed into a single call since passes here have no
// independent I/O lifecycle to prepare.
type Pass interface {
	Name() string
	Run(p *ir.Program, d *diag.Collector) error
}

// funcPass adapts the internal/* packages' `func Run(*ir.Program,
// *diag.Collector) bool` convention to the Pass interface.
type funcPass struct {
	name string
	fn   func(*ir.Program, *diag.Collector) bool
}

func (f funcPass) Name() string { return f.name }

func (f funcPass) Run(p *ir.Program, d *diag.Collector) error {
	if !f.fn(p, d) || d.HasErrors() {
		return fmt.Errorf("%s: failed", f.name)
	}
	return nil
}

// errFuncPass adapts a `func Run(*ir.Program, *diag.Collector) error`
// pass (only internal/crosslink, whose idempotent Run can fail outright
// before a collector item is even possible).
type errFuncPass struct {
	name string
	fn   func(*ir.Program, *diag.Collector) error
}

func (f errFuncPass) Name() string { return f.name }

func (f errFuncPass) Run(p *ir.Program, d *diag.Collector) error {
	if err := f.fn(p, d); err != nil {
		return fmt.Errorf("%s: %w", f.name, err)
	}
	if d.HasErrors() {
		return fmt.Errorf("%s: failed", f.name)
	}
	return nil
}
