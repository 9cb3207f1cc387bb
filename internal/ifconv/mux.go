package ifconv

import (
	"github.com/google/autopiper/internal/ir"
	"github.com/google/autopiper/internal/predicate"
)

// phiInput pairs one phi argument with the (already-materialized) predicate
// under which it is live, ie. the out-predicate of the corresponding
// predecessor edge.
type phiInput struct {
	val  *ir.Stmt
	pred predicate.Predicate
}

// eliminatePhis replaces every phi in pipe with a mux tree built from
// select expressions, rewrites its consumers to the tree's root, and
// tombstones the phi (spec.md §4.6).
func eliminatePhis(p *ir.Program, m *materializer, pipe *ir.Pipe, order []*ir.BasicBlock) {
	replacement := make(map[*ir.Stmt]*ir.Stmt)

	for _, bb := range order {
		for _, s := range bb.Stmts {
			if s.Kind != ir.KindPhi {
				continue
			}
			inputs := phiInputs(s, bb)
			root := buildMux(p, m, inputs)
			if root == nil {
				root = constBit(p, 0)
			}
			replacement[s] = root
			s.Deleted = true
		}
	}

	for _, bb := range order {
		for _, s := range bb.Stmts {
			if s.Deleted {
				continue
			}
			for i, a := range s.Args {
				if a != nil {
					if r, ok := replacement[a]; ok {
						s.Args[i] = r
					}
				}
			}
		}
	}
}

func phiInputs(s *ir.Stmt, bb *ir.BasicBlock) []phiInput {
	var out []phiInput
	for i, arg := range s.PhiArgs {
		if arg == nil {
			continue
		}
		var pred predicate.Predicate
		if i < len(bb.Preds) {
			predBB := bb.Preds[i]
			if predBB != nil {
				// the predecessor's out-predicate for the edge into bb is
				// exactly bb's own valid_in contribution from that pred;
				// we approximate it here by the phi's own valid_in, which
				// is the OR of all predecessor out-predicates restricted
				// to this BB and is sufficient to drop provably-dead
				// inputs (the per-edge refinement used for selector
				// priority comes from each predecessor's terminator args).
				if predBB.Terminator() != nil && predBB.Terminator().Kind == ir.KindIf {
					pred = ifEdgePredicate(predBB, bb)
				} else if s.ValidIn != nil {
					pred = *s.ValidIn
				}
			}
		}
		if pred.IsFalse() {
			continue // drop inputs whose valid predicate simplifies to False
		}
		out = append(out, phiInput{val: arg, pred: pred})
	}
	return out
}

// ifEdgePredicate returns the out-predicate of predBB's `if` terminator for
// the edge into succ: AND of predBB's cur valid with the branch condition
// (or its negation).
func ifEdgePredicate(predBB, succ *ir.BasicBlock) predicate.Predicate {
	term := predBB.Terminator()
	if term == nil || len(term.Succs) != 2 || term.ValidIn == nil {
		return predicate.False()
	}
	pos := term.Succs[0] == succ
	return term.ValidIn.AndWith(term.Args[0], pos)
}

// buildMux combines phi inputs pairwise into select-expression layers. The
// selector at each layer is chosen by priority: a backedge-flagged
// predicate first, then any non-tautological predicate, else either. Each
// layer combines two inputs into one; an odd input carries forward
// unchanged. The joined output predicate of a layer is the OR of its
// inputs.
func buildMux(p *ir.Program, m *materializer, inputs []phiInput) *ir.Stmt {
	if len(inputs) == 0 {
		return nil
	}
	for len(inputs) > 1 {
		var next []phiInput
		for i := 0; i+1 < len(inputs); i += 2 {
			a, b := inputs[i], inputs[i+1]
			sel := choosePredicate(a.pred, b.pred)
			selStmt := m.materialize(sel)
			// the input whose predicate became the selector is the true arm
			taken, other := a, b
			if !sel.Equal(a.pred) {
				taken, other = b, a
			}
			val := &ir.Stmt{
				Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpSelect,
				Width: muxWidth(a.val, b.val),
				Args:  []*ir.Stmt{selStmt, taken.val, other.val},
			}
			p.BindStmt(val)
			joined := a.pred.OrWith(b.pred)
			next = append(next, phiInput{val: val, pred: joined})
		}
		if len(inputs)%2 == 1 {
			next = append(next, inputs[len(inputs)-1])
		}
		inputs = next
	}
	return inputs[0].val
}

func muxWidth(a, b *ir.Stmt) int {
	if a != nil {
		return a.Width
	}
	if b != nil {
		return b.Width
	}
	return 0
}

// choosePredicate picks the select condition for a mux layer: prefer a
// backedge-flagged predicate, then any non-tautological predicate, else
// either.
func choosePredicate(a, b predicate.Predicate) predicate.Predicate {
	if b.Backedge && !a.Backedge {
		return b
	}
	if a.Backedge {
		return a
	}
	if !a.IsTrue() {
		return a
	}
	if !b.IsTrue() {
		return b
	}
	return a
}
