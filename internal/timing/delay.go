// Package timing builds the per-statement timing DAG, schedules it into
// pipeline stages with a two-phase ASAP/ALAP solver, and groups the result
// into ir.PipeStage objects (spec.md §4.8).
package timing

import "github.com/google/autopiper/internal/ir"

// Model computes a statement's combinational gate delay and the gate
// budget available per pipeline stage.
type Model interface {
	GatesPerStage() int
	Delay(s *ir.Stmt) int
}

// StandardModel implements spec.md §4.8's per-op delay formulas.
type StandardModel struct {
	Budget int
}

// NewStandardModel returns the standard model with its default 32-gate
// per-stage budget.
func NewStandardModel() StandardModel {
	return StandardModel{Budget: 32}
}

func (m StandardModel) GatesPerStage() int {
	if m.Budget == 0 {
		return 32
	}
	return m.Budget
}

func (m StandardModel) Delay(s *ir.Stmt) int {
	if s.Kind != ir.KindExpr {
		return 0
	}
	w := s.Width
	switch s.Op {
	case ir.OpNone, ir.OpConst:
		return 0
	case ir.OpAdd, ir.OpSub:
		return 4*log2(w) + 2
	case ir.OpMul:
		return 3*log2(w) + 1 + adderDelay(w)
	case ir.OpDiv, ir.OpRem:
		return w * 2 * adderDelay(w)
	case ir.OpAnd, ir.OpOr, ir.OpNot:
		return 1
	case ir.OpXor:
		return 2
	case ir.OpShl, ir.OpShr:
		if isConstShiftAmount(s) {
			return 0
		}
		return 2 * shiftAmountWidth(s)
	case ir.OpBitslice, ir.OpConcat:
		return 0
	case ir.OpSelect:
		return 2
	case ir.OpEq, ir.OpNe:
		return 2 + log2(w)
	case ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return adderDelay(w)
	default:
		return 0
	}
}

// NullModel gives every statement zero delay and a one-gate-per-stage
// budget, for schedules driven purely by dependency/timing-variable
// placement rather than gate packing (used by tests and by tools that
// only care about stage topology).
type NullModel struct{}

func (NullModel) GatesPerStage() int  { return 1 }
func (NullModel) Delay(*ir.Stmt) int { return 0 }

func isConstShiftAmount(s *ir.Stmt) bool {
	return len(s.Args) >= 2 && s.Args[1] != nil && s.Args[1].Op == ir.OpConst
}

func shiftAmountWidth(s *ir.Stmt) int {
	if len(s.Args) < 2 || s.Args[1] == nil {
		return 0
	}
	return s.Args[1].Width
}

// adderDelay is the carry-propagation delay of a w-bit adder in gate units.
func adderDelay(w int) int { return log2(w) + 1 }

func log2(w int) int {
	if w <= 1 {
		return 0
	}
	n, v := 0, 1
	for v < w {
		v <<= 1
		n++
	}
	return n
}
