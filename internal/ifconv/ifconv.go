// Package ifconv builds per-statement DNF valid predicates along all CFG
// paths, materializes them as boolean-expression statement trees with
// memoization, and replaces phi nodes with multiplexer trees (spec.md
// §4.6).
package ifconv

import (
	"math/big"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/graph"
	"github.com/google/autopiper/internal/ir"
	"github.com/google/autopiper/internal/predicate"
)

// Run if-converts every pipe of every PipeSys in p.
func Run(p *ir.Program, d *diag.Collector) bool {
	for _, sys := range p.PipeSyses {
		RunSys(p, d, sys)
	}
	return true
}

// RunSys if-converts every pipe of one PipeSys, independently of every
// other PipeSys in p.
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	for _, pipe := range sys.Pipes {
		convertPipe(p, d, pipe)
	}
	return true
}

func convertPipe(p *ir.Program, d *diag.Collector, pipe *ir.Pipe) {
	order := rpo(pipe)

	inPred := make(map[*ir.BasicBlock]predicate.Predicate)
	outPred := make(map[*ir.BasicBlock]map[*ir.BasicBlock]predicate.Predicate)

	validStarts := validStartsOf(pipe)

	for _, bb := range order {
		var in predicate.Predicate
		if len(bb.Preds) == 0 {
			in = predicate.True()
		} else {
			in = predicate.False()
			for _, pred := range bb.Preds {
				if outs, ok := outPred[pred]; ok {
					in = in.OrWith(outs[bb])
				}
			}
		}
		if vs, ok := validStarts[bb]; ok {
			in = predicate.True().AndWith(vs, true)
		}
		inPred[bb] = in

		cur := in
		for _, s := range bb.Stmts {
			switch s.Kind {
			case ir.KindKill:
				cur = predicate.False()
			case ir.KindKillIf:
				cur = cur.AndWith(s, false)
			}
			out := cur
			stmtOut := out
			_ = stmtOut
			setValidPred(s, in, out)
			in = out
		}

		term := bb.Terminator()
		outs := make(map[*ir.BasicBlock]predicate.Predicate)
		if term != nil {
			switch term.Kind {
			case ir.KindJmp:
				if len(term.Succs) == 1 && term.Succs[0] != nil {
					outs[term.Succs[0]] = cur
				}
			case ir.KindIf:
				if len(term.Succs) == 2 {
					outs[term.Succs[0]] = cur.AndWith(term.Args[0], true)
					outs[term.Succs[1]] = cur.AndWith(term.Args[0], false)
				}
			}
		}
		outPred[bb] = outs
	}

	mat := newMaterializer(p)
	for _, bb := range order {
		materializeBB(mat, bb)
	}
	propagateValidSpine(pipe)
	eliminatePhis(p, mat, pipe, order)
}

// validStartsOf returns, for each BB that begins a fresh transaction
// (restart headers' restart values, and the entry-point valid inserted at
// each non-restart root), the factor used to seed that BB's predicate.
func validStartsOf(pipe *ir.Pipe) map[*ir.BasicBlock]*ir.Stmt {
	out := make(map[*ir.BasicBlock]*ir.Stmt)
	for _, root := range pipe.Roots {
		if root.IsRestart {
			for _, s := range root.Stmts {
				if s.Kind == ir.KindRestartValue {
					out[root] = s
					break
				}
			}
		} else {
			// synthesize a standing valid-start marker for the entry
			var entryValid *ir.Stmt
			if len(root.Stmts) > 0 {
				entryValid = root.Stmts[0]
			}
			out[root] = entryValid
		}
	}
	return out
}

func setValidPred(s *ir.Stmt, in, out predicate.Predicate) {
	s.ValidIn = &in
	s.ValidOut = &out
}

// materializer turns DNF predicates into concrete boolean-expression
// statement trees, memoized by canonical DNF key so equal predicates share
// one expression (spec.md §4.6).
type materializer struct {
	p       *ir.Program
	byKey   map[string]*ir.Stmt
	factors map[string]*ir.Stmt // DNF factor key -> the *ir.Stmt it stands for
}

func newMaterializer(p *ir.Program) *materializer {
	return &materializer{p: p, byKey: make(map[string]*ir.Stmt), factors: make(map[string]*ir.Stmt)}
}

func (m *materializer) materialize(pred predicate.Predicate) *ir.Stmt {
	if pred.IsTrue() {
		return constBit(m.p, 1)
	}
	if pred.IsFalse() {
		return constBit(m.p, 0)
	}
	key := pred.Key()
	if s, ok := m.byKey[key]; ok {
		return s
	}

	var orArgs []*ir.Stmt
	for _, t := range pred.Terms {
		orArgs = append(orArgs, m.materializeTerm(t))
	}
	var node *ir.Stmt
	if len(orArgs) == 1 {
		node = orArgs[0]
	} else {
		node = orArgs[0]
		for _, next := range orArgs[1:] {
			node = m.binOp(ir.OpOr, node, next)
		}
	}
	m.byKey[key] = node
	return node
}

func (m *materializer) materializeTerm(t predicate.Term) *ir.Stmt {
	// predicate.TermFactors exposes the term's literals; every factor seen
	// here is an *ir.Stmt, so the AND-chain is rebuilt from those.
	factors := predicate.TermFactors(t)
	if len(factors) == 0 {
		return constBit(m.p, 1)
	}
	var node *ir.Stmt
	for i, lit := range factors {
		f, _ := lit.Factor.(*ir.Stmt)
		var cur *ir.Stmt
		if lit.Pos {
			cur = f
		} else {
			cur = m.unary(ir.OpNot, f)
		}
		if i == 0 {
			node = cur
		} else {
			node = m.binOp(ir.OpAnd, node, cur)
		}
	}
	return node
}

func (m *materializer) binOp(op ir.Op, a, b *ir.Stmt) *ir.Stmt {
	s := &ir.Stmt{Val: m.p.AllocVal(), Kind: ir.KindExpr, Op: op, Width: 1, Args: []*ir.Stmt{a, b}}
	m.p.BindStmt(s)
	return s
}

func (m *materializer) unary(op ir.Op, a *ir.Stmt) *ir.Stmt {
	s := &ir.Stmt{Val: m.p.AllocVal(), Kind: ir.KindExpr, Op: op, Width: 1, Args: []*ir.Stmt{a}}
	m.p.BindStmt(s)
	return s
}

func constBit(p *ir.Program, v int64) *ir.Stmt {
	c := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpConst, Width: 1, Const: big.NewInt(v)}
	p.BindStmt(c)
	return c
}

func materializeBB(m *materializer, bb *ir.BasicBlock) {
	for _, s := range bb.Stmts {
		if s.ValidIn != nil {
			s.ValidInStmt = m.materialize(*s.ValidIn)
		}
		if s.ValidOut != nil {
			s.ValidOutStmt = m.materialize(*s.ValidOut)
		}
		if s.Kind == ir.KindRestartValueSrc {
			// fed by the backedge BB's valid_in, per spec.md §4.6.
			if s.BB != nil && s.BB.ValidIn == nil && s.ValidIn != nil {
				s.BB.ValidIn = s.ValidIn
			}
		}
	}
}

// propagateValidSpine marks every statement transitively derived from a
// valid-start statement through argument edges, to a fix-point, so later
// passes never re-gate "valid infrastructure" statements.
func propagateValidSpine(pipe *ir.Pipe) {
	var all []*ir.Stmt
	for _, bb := range pipe.BBs {
		all = append(all, bb.Stmts...)
	}

	seeds := validStartsOf(pipe)
	marked := make(map[*ir.Stmt]bool)
	for _, s := range seeds {
		if s != nil {
			marked[s] = true
		}
	}

	changed := true
	for changed {
		changed = false
		for _, s := range all {
			if marked[s] {
				continue
			}
			for _, a := range s.Args {
				if a != nil && marked[a] {
					marked[s] = true
					changed = true
					break
				}
			}
		}
	}
	for s, v := range marked {
		if v {
			s.ValidSpine = true
		}
	}
}

func rpo(pipe *ir.Pipe) []*ir.BasicBlock {
	return graph.RPO(pipe.Roots).Order
}
