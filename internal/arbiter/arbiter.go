// Package arbiter resolves multi-writer targets (ports, chans, registers,
// arrays) into a single priority-select chain, after verifying the writes
// obey the single-nominal-stage and disjoint-valid invariants (spec.md
// §4.10).
package arbiter

import (
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

// Run arbitrates every multi-writer port and storage object in p.
func Run(p *ir.Program, d *diag.Collector) bool {
	ok := true
	for _, port := range p.Ports {
		if !arbitrate(p, d, port.Writers, "port", port.Name) {
			ok = false
		}
	}
	for _, st := range p.Storage {
		if !arbitrate(p, d, st.Writers, "storage", st.Name) {
			ok = false
		}
	}
	return ok
}

// RunSys arbitrates only the ports and storage objects whose writes belong
// to sys, independently of every other PipeSys in p (arbitrate's own
// single-PipeSys invariant check means a target never spans two). Targets
// with no writes at all are skipped here; Run passes them to arbitrate,
// which is a no-op for them.
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	ok := true
	for _, port := range p.Ports {
		if len(port.Writers) == 0 || writeSys(port.Writers[0]) != sys {
			continue
		}
		if !arbitrate(p, d, port.Writers, "port", port.Name) {
			ok = false
		}
	}
	for _, st := range p.Storage {
		if len(st.Writers) == 0 || writeSys(st.Writers[0]) != sys {
			continue
		}
		if !arbitrate(p, d, st.Writers, "storage", st.Name) {
			ok = false
		}
	}
	return ok
}

func arbitrate(p *ir.Program, d *diag.Collector, writes []*ir.Stmt, kind, name string) bool {
	live := liveWrites(writes)
	if len(live) <= 1 {
		return true
	}

	ok := true
	sys := writeSys(live[0])
	nominalStage := -1

	for _, w := range live {
		if writeSys(w) != sys {
			d.Errorf(diag.KindStructure, w.Pos, "%s %q: writes span multiple PipeSys", kind, name)
			ok = false
		}
		if !isKillingWrite(w) {
			if nominalStage == -1 {
				nominalStage = stageNum(w)
			} else if stageNum(w) != nominalStage {
				d.Errorf(diag.KindStructure, w.Pos, "%s %q: nominal writes span multiple stages", kind, name)
				ok = false
			}
		}
	}
	for _, w := range live {
		if isKillingWrite(w) && nominalStage != -1 && stageNum(w) < nominalStage {
			d.Errorf(diag.KindStructure, w.Pos, "%s %q: killing write precedes the nominal-write stage", kind, name)
			ok = false
		}
	}
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			if sameStageKilling(a, b) {
				continue
			}
			if !disjoint(a, b) {
				d.Errorf(diag.KindStructure, a.Pos, "%s %q: writers %%%d and %%%d are not disjoint", kind, name, a.Val, b.Val)
				ok = false
			}
		}
	}
	if !ok {
		return false
	}

	buildChain(p, live)
	return true
}

func liveWrites(writes []*ir.Stmt) []*ir.Stmt {
	var out []*ir.Stmt
	for _, w := range writes {
		if !w.Deleted {
			out = append(out, w)
		}
	}
	return out
}

func writeSys(w *ir.Stmt) *ir.PipeSys {
	if w.BB == nil || w.BB.Pipe == nil {
		return nil
	}
	return w.BB.Pipe.Sys
}

func stageNum(s *ir.Stmt) int {
	if s.Stage == nil {
		return 0
	}
	return s.Stage.Number
}

// isKillingWrite reports whether w's dominating killyounger resides in the
// same stage as w itself, the condition spec.md §4.10 calls a "killing
// write" as opposed to a nominal write.
func isKillingWrite(w *ir.Stmt) bool {
	return w.DomKillYounger != nil && stageNum(w.DomKillYounger) == stageNum(w)
}

func sameStageKilling(a, b *ir.Stmt) bool {
	return (isKillingWrite(a) || isKillingWrite(b)) && stageNum(a) == stageNum(b)
}

// disjoint reports whether a and b's valid_in predicates can never both
// hold, using the pre-materialization DNF form so the check is exact
// rather than a syntactic comparison of the materialized expression trees.
func disjoint(a, b *ir.Stmt) bool {
	if a.ValidIn == nil || b.ValidIn == nil {
		return false
	}
	return a.ValidIn.And(*b.ValidIn).IsFalse()
}

// buildChain synthesizes the priority-select chain: the first write is
// retained with its data arg replaced by the final select and its valid_in
// (materialized form) replaced by the OR of every writer's valid, and
// every other write is tombstoned. Any input that lives in a different
// stage than the retained write is carried across the gap with a chain of
// restart-value/restart-value-source latches, one pair per stage crossed.
func buildChain(p *ir.Program, writes []*ir.Stmt) {
	retain := writes[0]
	home := retain.Stage

	prevSelect := bridgeTo(p, dataArg(retain), home)
	validOr := bridgeTo(p, retain.ValidInStmt, home)

	for _, w := range writes[1:] {
		data := bridgeTo(p, dataArg(w), home)
		valid := bridgeTo(p, w.ValidInStmt, home)

		sel := &ir.Stmt{
			Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpSelect, Width: width(data, prevSelect),
			Pos: w.Pos, Args: []*ir.Stmt{valid, data, prevSelect}, BB: retain.BB, Stage: home,
		}
		p.BindStmt(sel)
		appendStage(home, sel)
		prevSelect = sel

		validOr = orStmt(p, validOr, valid, home)
		w.Deleted = true
	}

	setDataArg(retain, prevSelect)
	retain.ValidInStmt = validOr
}

func dataArg(w *ir.Stmt) *ir.Stmt {
	if len(w.Args) == 0 {
		return nil
	}
	return w.Args[len(w.Args)-1]
}

func setDataArg(w *ir.Stmt, v *ir.Stmt) {
	if len(w.Args) == 0 {
		w.Args = []*ir.Stmt{v}
		return
	}
	w.Args[len(w.Args)-1] = v
}

func width(a, b *ir.Stmt) int {
	if a != nil {
		return a.Width
	}
	if b != nil {
		return b.Width
	}
	return 0
}

func orStmt(p *ir.Program, a, b *ir.Stmt, stage *ir.PipeStage) *ir.Stmt {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	s := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpOr, Width: 1, Args: []*ir.Stmt{a, b}, Stage: stage}
	p.BindStmt(s)
	appendStage(stage, s)
	return s
}

func appendStage(stage *ir.PipeStage, s *ir.Stmt) {
	if stage != nil {
		stage.Stmts = append(stage.Stmts, s)
	}
}

// bridgeTo carries s forward to target's stage with a chain of
// restart-value / restart-value-source pairs, one pair per intermediate
// stage crossed (spec.md §4.10), so each hop is a real pipeline register
// rather than a single latch spanning the whole gap.
func bridgeTo(p *ir.Program, s *ir.Stmt, target *ir.PipeStage) *ir.Stmt {
	if s == nil || target == nil || s.Stage == target {
		return s
	}

	pipe := target.Pipe
	cur := s
	curStage := s.Stage
	curNum := 0
	if curStage != nil {
		curNum = curStage.Number
	}

	for curNum < target.Number {
		curNum++
		next := stageByNumber(pipe, curNum)

		rvs := &ir.Stmt{
			Val: p.AllocVal(), Kind: ir.KindRestartValueSrc, Width: s.Width,
			Args: []*ir.Stmt{cur}, RestartArg: cur, Stage: curStage,
		}
		p.BindStmt(rvs)
		appendStage(curStage, rvs)

		rv := &ir.Stmt{Val: p.AllocVal(), Kind: ir.KindRestartValue, Width: s.Width, Stage: next}
		p.BindStmt(rv)
		rv.RestartTarget = rvs
		appendStage(next, rv)

		cur, curStage = rv, next
	}
	return cur
}

func stageByNumber(pipe *ir.Pipe, n int) *ir.PipeStage {
	if pipe == nil {
		return nil
	}
	for _, st := range pipe.Stages {
		if st.Number == n {
			return st
		}
	}
	return nil
}
