// Package typecheck derives port/storage widths, checks per-opcode width
// rules, and enforces phi/SSA dominance and terminator well-formedness
// (spec.md §4.3). It runs after crosslink.Run.
package typecheck

import (
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/graph"
	"github.com/google/autopiper/internal/ir"
)

// Run typechecks p, reporting every violation to d, and returns true iff no
// ERROR-severity diagnostic was added.
func Run(p *ir.Program, d *diag.Collector) bool {
	before := len(d.Items())

	if len(p.Entries) == 0 {
		d.Errorf(diag.KindType, ir.Position{}, "no entry points")
		return false
	}

	checkPorts(p, d)
	checkStorage(p, d)
	checkControlFlow(p, d)
	checkWidths(p, d)
	checkDominance(p, d)

	return countErrorsSince(d, before) == 0
}

func countErrorsSince(d *diag.Collector, before int) int {
	items := d.Items()
	n := 0
	for _, it := range items[before:] {
		if it.Severity == diag.Error {
			n++
		}
	}
	return n
}

// checkPorts derives each port's width from its first writer (or first
// reader, if unwritten), verifies every reader agrees, that reader opcode
// kind matches the port's PORT/CHAN kind, and that only PORT ports export.
func checkPorts(p *ir.Program, d *diag.Collector) {
	for _, port := range p.Ports {
		var width int
		var from *ir.Stmt
		if len(port.Writers) > 0 {
			from = port.Writers[0]
			width = argWidth(from)
		} else if len(port.Readers) > 0 {
			from = port.Readers[0]
			width = from.Width
		} else {
			continue
		}
		port.Width = width

		for _, r := range port.Readers {
			wantChan := port.Kind == ir.PortKindChan
			isChan := r.Kind == ir.KindChanRead
			if isChan != wantChan {
				d.Errorf(diag.KindType, r.Pos, "port %q: reader kind does not match port kind", port.Name)
			}
			if r.Width != width {
				d.Errorf(diag.KindType, r.Pos, "port %q: reader width %d does not match port width %d", port.Name, r.Width, width)
			}
		}
		for _, w := range port.Writers {
			if argWidth(w) != width {
				d.Errorf(diag.KindType, w.Pos, "port %q: writer width %d does not match port width %d", port.Name, argWidth(w), width)
			}
		}
		if port.Exported && port.Kind != ir.PortKindPort {
			d.Errorf(diag.KindType, from.Pos, "chan %q cannot be exported", port.Name)
		}
	}
}

// checkStorage requires at least one writer, derives data/index widths
// from the writers (requiring agreement), forbids multiple writers on a
// register, and verifies readers' index/data widths match.
func checkStorage(p *ir.Program, d *diag.Collector) {
	for _, st := range p.Storage {
		if len(st.Writers) == 0 {
			d.Errorf(diag.KindType, ir.Position{}, "storage %q: no writer", st.Name)
			continue
		}
		first := st.Writers[0]
		st.DataWidth = argWidth(first)
		st.IndexWidth = indexWidth(first)

		for _, w := range st.Writers[1:] {
			if argWidth(w) != st.DataWidth || indexWidth(w) != st.IndexWidth {
				d.Errorf(diag.KindType, w.Pos, "storage %q: writers disagree on width", st.Name)
			}
		}
		if st.IsRegister() && len(st.Writers) > 1 {
			d.Errorf(diag.KindType, first.Pos, "register %q: multiple writers", st.Name)
		}
		for _, r := range st.Readers {
			if r.Width != st.DataWidth || indexWidth(r) != st.IndexWidth {
				d.Errorf(diag.KindType, r.Pos, "storage %q: reader width mismatch", st.Name)
			}
		}
	}
}

// argWidth returns the width of a write's data argument (last arg by
// convention: index then data for arrays, data only for registers/ports).
func argWidth(s *ir.Stmt) int {
	if len(s.Args) == 0 {
		return s.Width
	}
	return s.Args[len(s.Args)-1].Width
}

// indexWidth returns the width of a write/read's index argument, or 0 for
// registers (no index argument).
func indexWidth(s *ir.Stmt) int {
	if s.Kind == ir.KindArrRead && len(s.Args) >= 1 {
		return s.Args[0].Width
	}
	if s.Kind == ir.KindArrWrite && len(s.Args) >= 2 {
		return s.Args[0].Width
	}
	return 0
}

func checkControlFlow(p *ir.Program, d *diag.Collector) {
	for _, bb := range p.BBs {
		term := bb.Terminator()
		if term == nil || !term.Kind.IsTerminator() {
			d.Errorf(diag.KindType, bb.Stmts[safeLast(bb)].Pos, "BB %q: missing valid terminator", bb.Label)
			continue
		}
		if term.Kind == ir.KindIf {
			if len(term.Succs) != 2 || term.Succs[0] == term.Succs[1] {
				d.Errorf(diag.KindType, term.Pos, "BB %q: if must have two distinct successors", bb.Label)
			}
		}
		for _, s := range bb.Stmts {
			if s.Kind == ir.KindPhi {
				if len(s.PhiArgs) != len(bb.Preds) {
					d.Errorf(diag.KindType, s.Pos, "phi %%%d: %d args but %d predecessors", s.Val, len(s.PhiArgs), len(bb.Preds))
				}
			}
		}
	}
}

func safeLast(bb *ir.BasicBlock) int {
	if len(bb.Stmts) == 0 {
		return 0
	}
	return len(bb.Stmts) - 1
}

// checkWidths applies the per-opcode width rules of spec.md §4.3.
// Div/rem do not use a "w1 - w2" subtraction rule: rem yields w2 (the
// divisor width), div yields w1 (the dividend width), matching ordinary
// integer division/remainder semantics.
func checkWidths(p *ir.Program, d *diag.Collector) {
	for _, s := range p.AllStmts() {
		if s.Kind != ir.KindExpr {
			continue
		}
		for _, a := range s.Args {
			if a != nil && a.Width == ir.TxnWidth {
				d.Errorf(diag.KindType, s.Pos, "%%%d: txn-ID value used in expression context", a.Val)
			}
		}

		switch s.Op {
		case ir.OpConst:
			// width is declared, nothing to derive
		case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpNot:
			checkArgsWidth(d, s, s.Width)
		case ir.OpMul:
			if len(s.Args) == 2 {
				want := s.Args[0].Width + s.Args[1].Width
				if s.Width != want {
					d.Errorf(diag.KindType, s.Pos, "%%%d: mul width %d, want sum of args %d", s.Val, s.Width, want)
				}
			}
		case ir.OpDiv:
			if len(s.Args) == 2 && s.Width != s.Args[0].Width {
				d.Errorf(diag.KindType, s.Pos, "%%%d: div width %d, want dividend width %d", s.Val, s.Width, s.Args[0].Width)
			}
		case ir.OpRem:
			if len(s.Args) == 2 && s.Width != s.Args[1].Width {
				d.Errorf(diag.KindType, s.Pos, "%%%d: rem width %d, want divisor width %d", s.Val, s.Width, s.Args[1].Width)
			}
		case ir.OpShl, ir.OpShr:
			if len(s.Args) >= 1 && s.Width != s.Args[0].Width {
				d.Errorf(diag.KindType, s.Pos, "%%%d: shift width must match first arg", s.Val)
			}
		case ir.OpBitslice:
			if len(s.Args) != 3 || s.Args[1].Op != ir.OpConst || s.Args[2].Op != ir.OpConst {
				d.Errorf(diag.KindType, s.Pos, "%%%d: bitslice bounds must be constant", s.Val)
				continue
			}
			hi, lo := s.Args[1].Const.Int64(), s.Args[2].Const.Int64()
			want := int(abs64(hi - lo))
			if s.Width != want {
				d.Errorf(diag.KindType, s.Pos, "%%%d: bitslice width %d, want |hi-lo| %d", s.Val, s.Width, want)
			}
		case ir.OpConcat:
			sum := 0
			for _, a := range s.Args {
				sum += a.Width
			}
			if s.Width != sum {
				d.Errorf(diag.KindType, s.Pos, "%%%d: concat width %d, want sum of args %d", s.Val, s.Width, sum)
			}
		case ir.OpSelect:
			if len(s.Args) != 3 {
				d.Errorf(diag.KindType, s.Pos, "%%%d: select takes (cond, a, b)", s.Val)
				continue
			}
			if s.Args[0].Width != 1 {
				d.Errorf(diag.KindType, s.Pos, "%%%d: select condition must be 1 bit", s.Val)
			}
			if s.Args[1].Width != s.Args[2].Width {
				d.Errorf(diag.KindType, s.Pos, "%%%d: select arms must have equal width", s.Val)
			}
			if s.Width != s.Args[1].Width {
				d.Errorf(diag.KindType, s.Pos, "%%%d: select width must match arms", s.Val)
			}
		default:
			if s.Op.IsCompare() {
				if len(s.Args) == 2 && s.Args[0].Width != s.Args[1].Width {
					d.Errorf(diag.KindType, s.Pos, "%%%d: comparison args must have equal width", s.Val)
				}
				if s.Width != 1 {
					d.Errorf(diag.KindType, s.Pos, "%%%d: comparison result must be 1 bit", s.Val)
				}
			}
		}
	}
}

func checkArgsWidth(d *diag.Collector, s *ir.Stmt, want int) {
	for _, a := range s.Args {
		if a.Width != want {
			d.Errorf(diag.KindType, s.Pos, "%%%d: arg %%%d width %d does not match op width %d", s.Val, a.Val, a.Width, want)
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// checkDominance enforces invariant 5 (every non-phi use is dominated by
// its def) and invariant 4 (each phi input's defining BB dominates the
// corresponding predecessor edge), one dominator tree per pipe-free CFG
// rooted at p.Entries (typecheck runs before pipe extraction, so all
// entries share one CFG here).
func checkDominance(p *ir.Program, d *diag.Collector) {
	roots := append([]*ir.BasicBlock{}, p.Entries...)
	if len(roots) == 0 {
		return
	}
	rpo := graph.RPO[*ir.BasicBlock](roots)
	if len(rpo.Order) == 0 {
		return
	}
	dt := graph.BuildDomTree[*ir.BasicBlock](rpo.Order[0], rpo)

	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			if s.Kind == ir.KindPhi {
				for i, arg := range s.PhiArgs {
					if arg == nil || i >= len(bb.Preds) {
						continue
					}
					pred := bb.Preds[i]
					if !dt.Dom(arg.BB, pred) {
						d.Errorf(diag.KindType, s.Pos, "phi %%%d: input %%%d does not dominate predecessor %q", s.Val, arg.Val, pred.Label)
					}
				}
				continue
			}
			for _, a := range s.Args {
				if a == nil {
					continue
				}
				if a.BB == bb {
					if !definedBefore(bb, a, s) {
						d.Errorf(diag.KindType, s.Pos, "%%%d: use of %%%d not dominated by its def", s.Val, a.Val)
					}
					continue
				}
				if !dt.Dom(a.BB, bb) {
					d.Errorf(diag.KindType, s.Pos, "%%%d: use of %%%d not dominated by its def", s.Val, a.Val)
				}
			}
		}
	}
}

// definedBefore reports whether def appears earlier than use within the
// same BB (same-block SSA ordering, the in-block special case of
// dominance).
func definedBefore(bb *ir.BasicBlock, def, use *ir.Stmt) bool {
	for _, s := range bb.Stmts {
		if s == def {
			return true
		}
		if s == use {
			return false
		}
	}
	return false
}
