package ir

import "github.com/google/autopiper/internal/predicate"

// BasicBlock is an ordered sequence of statements ending in exactly one
// terminator (if/jmp/kill/done), per invariant 3. A backedge BB made by
// internal/backedge instead ends in its backedge statement.
type BasicBlock struct {
	Label    string
	Stmts    []*Stmt
	IsEntry  bool
	IsRestart bool

	Preds []*BasicBlock // materialized by graph.RPO alongside the DFS

	Pipe *Pipe // owning pipeline, set by the pipe extractor

	ValidIn   *predicate.Predicate
	ValidOut  map[*BasicBlock]*predicate.Predicate // per-successor out predicate

	// Restart-header-only fields.
	RestartCond   *Stmt // the restart-condition statement in this header
	RestartSrcBB  *BasicBlock
}

// Terminator returns the BB's final statement, or nil for an empty BB.
func (b *BasicBlock) Terminator() *Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return b.Stmts[len(b.Stmts)-1]
}

// Successors returns the BB's CFG successors in declared order, satisfying
// graph.Node for RPO/dominator computation. Backedge BBs expose their
// restart header only through Stmt.BackedgeHdr, a non-CFG pointer, so it is
// intentionally excluded here.
func (b *BasicBlock) Successors() []*BasicBlock {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	return term.Succs
}

func (b *BasicBlock) String() string { return b.Label }
