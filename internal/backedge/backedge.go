// Package backedge detects loop backedges within a pipe and rewrites them
// into a restart-header/backedge-BB pair so that later passes see a DAG
// (spec.md §4.5).
package backedge

import (
	"fmt"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/graph"
	"github.com/google/autopiper/internal/ir"
)

// Run rewrites every backedge in every pipe of every PipeSys in p.
func Run(p *ir.Program, d *diag.Collector) bool {
	ok := true
	for _, sys := range p.PipeSyses {
		if !RunSys(p, d, sys) {
			ok = false
		}
	}
	return ok
}

// RunSys rewrites every backedge within one PipeSys, independently of
// every other PipeSys in p — the granularity internal/lower's worker pool
// fans out across, since distinct PipeSyses never share a pipe.
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	ok := true
	for _, pipe := range sys.Pipes {
		if !convertPipe(p, d, pipe) {
			ok = false
		}
	}
	return ok
}

func convertPipe(p *ir.Program, d *diag.Collector, pipe *ir.Pipe) bool {
	res := graph.RPO([]*ir.BasicBlock{pipe.Entry})
	order := res.Order
	populatePreds(order, res.Preds)

	kyOut := killyoungerDominance(order, res.Preds)

	visited := make(map[*ir.BasicBlock]bool)
	var newRoots []*ir.BasicBlock

	for _, bb := range order {
		visited[bb] = true
		term := bb.Terminator()
		if term == nil {
			continue
		}
		for i, succ := range term.Succs {
			if succ == nil || !visited[succ] {
				continue
			}
			// Backedge: succ was already visited in this RPO walk.
			header := convertBackedge(p, pipe, bb, term, i, succ, kyOut[bb])
			newRoots = append(newRoots, header)
		}
	}

	pipe.Roots = append(newRoots, pipe.Entry)
	return true
}

// populatePreds fills bb.Preds for every BB in order from preds, the map
// graph.RPO materialized during its own DFS, so phi-rewriting sees a
// pipe-scoped predecessor list without a second graph walk.
func populatePreds(order []*ir.BasicBlock, preds map[*ir.BasicBlock][]*ir.BasicBlock) {
	for _, bb := range order {
		bb.Preds = preds[bb]
	}
}

// killyoungerDominance computes, for each BB in order, the latest
// killyounger statement seen on every path reaching the end of that BB: a
// join over predecessors taking the common value, or nil if predecessors
// disagree or none exist.
func killyoungerDominance(order []*ir.BasicBlock, preds map[*ir.BasicBlock][]*ir.BasicBlock) map[*ir.BasicBlock]*ir.Stmt {
	outKY := make(map[*ir.BasicBlock]*ir.Stmt)

	for _, bb := range order {
		cur, ok := joinKY(preds[bb], outKY)
		_ = ok
		for _, s := range bb.Stmts {
			if s.Kind == ir.KindKillYounger {
				cur = s
			}
		}
		outKY[bb] = cur
	}
	return outKY
}

func joinKY(ps []*ir.BasicBlock, outKY map[*ir.BasicBlock]*ir.Stmt) (*ir.Stmt, bool) {
	if len(ps) == 0 {
		return nil, false
	}
	first := outKY[ps[0]]
	for _, p := range ps[1:] {
		if outKY[p] != first {
			return nil, false
		}
	}
	return first, true
}

var headerCounter int

// convertBackedge rewrites one backedge edge bb->succ (successor index i of
// bb's terminator) into a backedge BB plus a restart header BB.
func convertBackedge(p *ir.Program, pipe *ir.Pipe, bb *ir.BasicBlock, term *ir.Stmt, i int, succ *ir.BasicBlock, ky *ir.Stmt) *ir.BasicBlock {
	headerCounter++
	tag := fmt.Sprintf("%s.restart.%d", succ.Label, headerCounter)

	backedgeBB := &ir.BasicBlock{Label: fmt.Sprintf("%s.backedge.%d", bb.Label, headerCounter), Pipe: pipe}
	header := &ir.BasicBlock{Label: tag, IsRestart: true, Pipe: pipe}

	backedgeStmt := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindBackedge, Pos: term.Pos, BackedgeHdr: header}
	p.BindStmt(backedgeStmt)
	backedgeBB.Stmts = append(backedgeBB.Stmts, backedgeStmt)
	header.RestartCond = backedgeStmt

	// timing barrier, placed before the dominating killyounger if any,
	// else at the start of the original target.
	barrier := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindTimingBarrier, Pos: term.Pos}
	p.BindStmt(barrier)
	placeBarrier(succ, ky, barrier)

	// shared timing variable at offset 0 forces backedge+barrier into the
	// same stage.
	tv := &ir.TimingVar{Name: fmt.Sprintf("tv.restart.%d", headerCounter), Stage: -1}
	p.TimingVars[tv.Name] = tv
	backedgeStmt.TimingVar, backedgeStmt.TimingOffset = tv, 0
	barrier.TimingVar, barrier.TimingOffset = tv, 0

	// rewrite loop-carried phis: find succ's phi inputs sourced from bb,
	// replace with a restart-value statement fed by a restart-value-source
	// in the backedge BB.
	for _, s := range succ.Stmts {
		if s.Kind != ir.KindPhi {
			continue
		}
		for idx, predBB := range succ.Preds {
			if predBB != bb || idx >= len(s.PhiArgs) {
				continue
			}
			orig := s.PhiArgs[idx]

			rv := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindRestartValue, Width: s.Width, Pos: s.Pos}
			p.BindStmt(rv)
			header.Stmts = append(header.Stmts, rv)

			rvs := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindRestartValueSrc, Width: s.Width,
				Pos: s.Pos, Args: []*ir.Stmt{orig}, RestartArg: orig}
			p.BindStmt(rvs)
			rv.RestartTarget = rvs
			backedgeBB.Stmts = append([]*ir.Stmt{rvs}, backedgeBB.Stmts...)

			s.PhiArgs[idx] = rv
		}
	}

	jmpToSucc := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindJmp, Pos: term.Pos, Succs: []*ir.BasicBlock{succ}}
	p.BindStmt(jmpToSucc)
	header.Stmts = append(header.Stmts, jmpToSucc)
	header.RestartSrcBB = backedgeBB

	term.Succs[i] = backedgeBB

	p.AddBB(backedgeBB)
	p.AddBB(header)
	pipe.BBs = append(pipe.BBs, backedgeBB, header)

	return header
}

// placeBarrier inserts barrier immediately before the dominating
// killyounger statement ky if one is present on all paths reaching target
// (ky != nil means spec.md's "dominated by a killyounger" case). ky was
// computed at the backedge's source BB, which is generally not target
// itself (target is the loop header; the killyounger usually lives
// earlier in the loop body), so the search is over ky's own BB, not
// target's. Falls back to target's start only when there is no
// dominating killyounger at all.
func placeBarrier(target *ir.BasicBlock, ky *ir.Stmt, barrier *ir.Stmt) {
	if ky != nil {
		for i, s := range ky.BB.Stmts {
			if s == ky {
				ky.BB.Stmts = insertAt(ky.BB.Stmts, i, barrier)
				return
			}
		}
	}
	target.Stmts = insertAt(target.Stmts, 0, barrier)
}

func insertAt(stmts []*ir.Stmt, i int, s *ir.Stmt) []*ir.Stmt {
	out := make([]*ir.Stmt, 0, len(stmts)+1)
	out = append(out, stmts[:i]...)
	out = append(out, s)
	out = append(out, stmts[i:]...)
	return out
}
