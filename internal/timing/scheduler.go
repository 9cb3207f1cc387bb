package timing

import (
	"fmt"
	"sort"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

const maxFixpointPasses = 64

// Run schedules every pipe of every PipeSys in p with the standard delay
// model, reporting failures to d.
func Run(p *ir.Program, d *diag.Collector) bool {
	return RunWithModel(p, d, NewStandardModel())
}

// RunWithModel schedules every pipe with an explicit delay model, letting
// callers (tests, tools that only care about stage topology) substitute
// NullModel.
func RunWithModel(p *ir.Program, d *diag.Collector, model Model) bool {
	ok := true
	for _, sys := range p.PipeSyses {
		if !RunSysWithModel(p, d, sys, model) {
			ok = false
		}
	}
	return ok
}

// RunSys schedules one PipeSys with the standard delay model, independently
// of every other PipeSys in p.
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	return RunSysWithModel(p, d, sys, NewStandardModel())
}

// RunSysWithModel schedules one PipeSys with an explicit delay model.
func RunSysWithModel(p *ir.Program, d *diag.Collector, sys *ir.PipeSys, model Model) bool {
	ok := true
	for _, pipe := range sys.Pipes {
		if !schedulePipe(p, d, pipe, model) {
			ok = false
		}
	}
	return ok
}

func schedulePipe(p *ir.Program, d *diag.Collector, pipe *ir.Pipe, model Model) bool {
	nodes := pipeNodes(pipe)

	if cyc, found := checkCycles(nodes); found {
		d.Errorf(diag.KindSchedule, cyc[0].Pos, "timing dependency cycle through %s", cycleDescr(cyc))
		return false
	}

	budget := model.GatesPerStage()
	for _, n := range nodes {
		if delay := model.Delay(n); delay > budget {
			d.Errorf(diag.KindSchedule, n.Pos, "statement %%%d delay %d exceeds stage budget %d", n.Val, delay, budget)
			return false
		}
	}

	order := topoOrder(nodes)
	asapStage, ok := solveASAP(order, model, d)
	if !ok {
		return false
	}

	lifted := liftedNodes(nodes)
	rev := reverseAdjacency(nodes)
	alapStage := solveALAP(order, asapStage, rev, lifted)

	groupStages(pipe, nodes, alapStage)
	return true
}

// pipeNodes returns the statements eligible for scheduling: everything but
// deleted tombstones, phis (eliminated by internal/ifconv), and CFG
// terminators (if/jmp carry no data meaning once valid-gating has
// replaced branching; kill/done are absorbed into valid-signal routing).
func pipeNodes(pipe *ir.Pipe) []*ir.Stmt {
	var out []*ir.Stmt
	for _, bb := range pipe.BBs {
		for _, s := range bb.Stmts {
			if s.Deleted || s.Kind == ir.KindPhi || s.Kind.IsTerminator() {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

// liftedNodes marks statements pinned to their earliest-possible stage:
// port reads are "outside time" (spec.md §4.7) and available every cycle,
// so there is no benefit to the ALAP pass sinking them later, and
// restart-value-source statements must stay at the backedge BB they
// originate in.
func liftedNodes(nodes []*ir.Stmt) map[*ir.Stmt]bool {
	out := make(map[*ir.Stmt]bool)
	for _, n := range nodes {
		if n.Kind == ir.KindPortRead || n.Kind == ir.KindRestartValueSrc {
			out[n] = true
		}
	}
	return out
}

// solveASAP is the forward phase of spec.md §4.8: a fixpoint over
// (stage, in-stage gate offset) pairs plus timing-variable snapping,
// iterated because a variable's stage can still move as later statements
// attached to it get scheduled.
func solveASAP(order []*ir.Stmt, model Model, d *diag.Collector) (map[*ir.Stmt]int, bool) {
	budget := model.GatesPerStage()
	stage := make(map[*ir.Stmt]int, len(order))
	offset := make(map[*ir.Stmt]int, len(order))
	ok := true

	changed := true
	for pass := 0; changed && pass < maxFixpointPasses; pass++ {
		changed = false
		for _, n := range order {
			delay := model.Delay(n)

			natStage, natOffset := 0, delay
			for _, pr := range deps(n) {
				ps, po := stage[pr], offset[pr]
				cs, co := ps, po+delay
				if co > budget {
					cs, co = ps+1, delay
				}
				if cs > natStage || (cs == natStage && co > natOffset) {
					natStage, natOffset = cs, co
				}
			}

			finalStage := natStage
			if tv := n.TimingVar; tv != nil {
				want := tv.Stage + n.TimingOffset
				if tv.Stage >= 0 && want > finalStage {
					finalStage = want
					natOffset = delay
				}
				if finalStage > tv.Stage {
					if !tv.Bump(finalStage - n.TimingOffset) {
						d.Errorf(diag.KindSchedule, n.Pos, "timing variable %q exceeded its update cap", tv.Name)
						ok = false
					}
					changed = true
				}
			}

			if stage[n] != finalStage || offset[n] != natOffset {
				stage[n] = finalStage
				offset[n] = natOffset
				changed = true
			}
		}
	}
	return stage, ok
}

// solveALAP is the backward phase: anchored nodes (lifted, or sinks with
// no successors) stay at their ASAP stage; every other node sinks to the
// latest stage no later than any successor (or its attached timing
// variable), minimizing live-value ranges.
func solveALAP(order []*ir.Stmt, asapStage map[*ir.Stmt]int, rev map[*ir.Stmt][]*ir.Stmt, lifted map[*ir.Stmt]bool) map[*ir.Stmt]int {
	alap := make(map[*ir.Stmt]int, len(order))

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		succs := rev[n]
		if lifted[n] || len(succs) == 0 {
			alap[n] = asapStage[n]
			continue
		}

		latest := -1
		for _, s := range succs {
			if ss, ok := alap[s]; ok && (latest == -1 || ss < latest) {
				latest = ss
			}
		}
		if latest == -1 {
			latest = asapStage[n]
		}
		if tv := n.TimingVar; tv != nil && tv.Stage >= 0 {
			if want := tv.Stage + n.TimingOffset; want < latest {
				latest = want
			}
		}
		if latest < asapStage[n] {
			latest = asapStage[n]
		}
		alap[n] = latest
	}
	return alap
}

// groupStages sets each statement's final Stage pointer and assembles
// pipe.Stages, skipping stage 0 (spec.md §4.8 reserves it for the
// stall/kill OR-trees the spine generator inserts later).
func groupStages(pipe *ir.Pipe, nodes []*ir.Stmt, stageNum map[*ir.Stmt]int) {
	byNum := make(map[int]*ir.PipeStage)
	for _, n := range nodes {
		num := stageNum[n] + 1
		ps, ok := byNum[num]
		if !ok {
			ps = &ir.PipeStage{Number: num, Pipe: pipe}
			byNum[num] = ps
		}
		ps.Stmts = append(ps.Stmts, n)
		n.Stage = ps
	}

	nums := make([]int, 0, len(byNum))
	for num := range byNum {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	pipe.Stages = pipe.Stages[:0]
	for _, num := range nums {
		pipe.Stages = append(pipe.Stages, byNum[num])
	}
}

func cycleDescr(cycle []*ir.Stmt) string {
	s := ""
	for i, n := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprintf("%%%d", n.Val)
	}
	return s
}
