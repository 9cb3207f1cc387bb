// Package spine synthesizes each pipeline stage's stall and kill signals
// and gates every valid crossing a stage boundary by the inverted kill, so
// a restart or a younger-kill anywhere downstream correctly invalidates
// in-flight work upstream (spec.md §4.11).
package spine

import (
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

// Run generates the stall/kill spine for every pipe of every PipeSys in p.
func Run(p *ir.Program, d *diag.Collector) bool {
	for _, sys := range p.PipeSyses {
		RunSys(p, d, sys)
	}
	return true
}

// RunSys generates the stall/kill spine for one PipeSys, independently of
// every other PipeSys in p (buildStall/buildKill only ever scan pipes of
// the same sys).
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	for _, pipe := range sys.Pipes {
		spinePipe(p, pipe)
	}
	return true
}

func spinePipe(p *ir.Program, pipe *ir.Pipe) {
	for _, st := range snapshotStages(pipe) {
		if st.Number == 0 {
			continue
		}
		stall := buildStall(p, pipe, st)
		kill := buildKill(p, pipe, st, stall)
		st.Stall = stall
		st.Kill = kill
		gateValidCut(p, st)
	}
}

// snapshotStages copies pipe.Stages before the loop mutates it (stageAt may
// insert the reserved stage 0), so iteration order is stable.
func snapshotStages(pipe *ir.Pipe) []*ir.PipeStage {
	out := make([]*ir.PipeStage, len(pipe.Stages))
	copy(out, pipe.Stages)
	return out
}

// buildStall ORs the valid_in of every backedge op (in any pipe of the
// same PipeSys) whose restart header's restart condition lives in a stage
// later than st, and stores the result living one stage earlier than st
// (stage 0, reserved by the scheduler, for st.Number == 1).
func buildStall(p *ir.Program, pipe *ir.Pipe, st *ir.PipeStage) *ir.Stmt {
	home := stageAt(pipe, st.Number-1)
	var acc *ir.Stmt
	for _, pp := range pipe.Sys.Pipes {
		for _, bb := range pp.BBs {
			for _, s := range bb.Stmts {
				if s.Deleted || s.Kind != ir.KindBackedge {
					continue
				}
				hdr := s.BackedgeHdr
				if hdr == nil || hdr.RestartCond == nil || hdr.RestartCond.Stage == nil {
					continue
				}
				if hdr.RestartCond.Stage.Number <= st.Number {
					continue
				}
				acc = orInto(p, acc, s.ValidInStmt, home)
			}
		}
	}
	return acc
}

// buildKill ORs the valid_in of every later killyounger op, the stage's
// own kill_if contributions (internal/killif), and the stall signal.
func buildKill(p *ir.Program, pipe *ir.Pipe, st *ir.PipeStage, stall *ir.Stmt) *ir.Stmt {
	var acc *ir.Stmt
	for _, pp := range pipe.Sys.Pipes {
		for _, bb := range pp.BBs {
			for _, s := range bb.Stmts {
				if s.Deleted || s.Kind != ir.KindKillYounger {
					continue
				}
				if s.Stage == nil || s.Stage.Number <= st.Number {
					continue
				}
				acc = orInto(p, acc, s.ValidInStmt, st)
			}
		}
	}
	for _, k := range st.Kills {
		acc = orInto(p, acc, k, st)
	}
	acc = orInto(p, acc, stall, st)
	return acc
}

func orInto(p *ir.Program, acc, next *ir.Stmt, home *ir.PipeStage) *ir.Stmt {
	if next == nil {
		return acc
	}
	if acc == nil {
		return next
	}
	s := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpOr, Width: 1, Args: []*ir.Stmt{acc, next}, Stage: home}
	p.BindStmt(s)
	if home != nil {
		home.Stmts = append(home.Stmts, s)
	}
	return s
}

// gateValidCut identifies every valid signal arriving into st from an
// earlier stage and replaces its uses within st with an AND against the
// inverted stage kill, so a kill at this boundary correctly invalidates
// everything latched into the stage.
func gateValidCut(p *ir.Program, st *ir.PipeStage) {
	if st.Kill == nil {
		return
	}
	notKill := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpNot, Width: 1, Args: []*ir.Stmt{st.Kill}, Stage: st}
	p.BindStmt(notKill)
	st.Stmts = append(st.Stmts, notKill)

	cut := validCut(st)
	if len(cut) == 0 {
		return
	}

	replacement := make(map[*ir.Stmt]*ir.Stmt, len(cut))
	for _, v := range cut {
		gated := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpAnd, Width: 1, Args: []*ir.Stmt{v, notKill}, Stage: st}
		p.BindStmt(gated)
		st.Stmts = append(st.Stmts, gated)
		replacement[v] = gated
	}

	for _, s := range st.Stmts {
		if _, isGate := replacement[s]; isGate {
			continue
		}
		for i, a := range s.Args {
			if g, ok := replacement[a]; ok {
				s.Args[i] = g
			}
		}
		if g, ok := replacement[s.ValidInStmt]; ok {
			s.ValidInStmt = g
		}
	}
}

// validCut collects, without duplicates, every value crossing into st from
// an earlier stage: a consumer's materialized valid_in produced earlier, a
// restart-carried valid-start statement resident in st, and any
// earlier-stage argument of a valid_spine statement in st.
func validCut(st *ir.PipeStage) []*ir.Stmt {
	seen := make(map[*ir.Stmt]bool)
	var out []*ir.Stmt
	add := func(s *ir.Stmt) {
		if s != nil && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, s := range st.Stmts {
		if s.ValidInStmt != nil && s.ValidInStmt.Stage != nil && s.ValidInStmt.Stage.Number < st.Number {
			add(s.ValidInStmt)
		}
		if s.Kind == ir.KindRestartValue {
			add(s)
		}
		if s.ValidSpine {
			for _, a := range s.Args {
				if a != nil && a.Stage != nil && a.Stage.Number < st.Number {
					add(a)
				}
			}
		}
	}
	return out
}

// stageAt returns pipe's PipeStage numbered n, creating and inserting an
// empty one (in ascending order) if none exists yet — in particular stage
// 0, which the scheduler leaves empty for this purpose.
func stageAt(pipe *ir.Pipe, n int) *ir.PipeStage {
	for _, st := range pipe.Stages {
		if st.Number == n {
			return st
		}
	}
	st := &ir.PipeStage{Number: n, Pipe: pipe}
	idx := len(pipe.Stages)
	for i, s := range pipe.Stages {
		if s.Number > n {
			idx = i
			break
		}
	}
	pipe.Stages = append(pipe.Stages, nil)
	copy(pipe.Stages[idx+1:], pipe.Stages[idx:])
	pipe.Stages[idx] = st
	return st
}
