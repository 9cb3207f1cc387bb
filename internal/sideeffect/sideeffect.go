// Package sideeffect builds the ordering edges that are independent of SSA
// dataflow: the total order among side-effecting statements, the pinning of
// pure ops to the nearest timing barrier, and chan read-after-write
// ordering (spec.md §4.7). These edges land in Stmt.PipeDeps, alongside
// Args, for the timing DAG (internal/timing) to schedule against.
package sideeffect

import (
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/graph"
	"github.com/google/autopiper/internal/ir"
)

// barrierSet is the per-BB-boundary state threaded through the RPO walk:
// the side-effect barriers and timing barriers visible at this point (one
// per distinct incoming path that hasn't reconverged), and the pure ops
// still unconstrained by any barrier.
type barrierSet struct {
	sideEffect []*ir.Stmt
	timing     []*ir.Stmt
	pure       []*ir.Stmt
}

// Run builds side-effect DAG edges for every pipe of every PipeSys in p,
// then links chan reads to their chan's writers program-wide.
func Run(p *ir.Program, d *diag.Collector) bool {
	for _, sys := range p.PipeSyses {
		RunSys(p, d, sys)
	}
	LinkChans(p, d)
	return true
}

// RunSys builds side-effect DAG edges for every pipe of one PipeSys,
// independently of every other PipeSys in p. Chan edges are not added
// here: LinkChans is a separate program-wide pass, since a chan is a Port
// (p.Ports is keyed by name program-wide) and nothing here rules out two
// PipeSyses sharing one by name.
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	for _, pipe := range sys.Pipes {
		convertPipe(p, pipe)
	}
	return true
}

// LinkChans adds every chan's writers as a PipeDeps edge of each of its
// readers, program-wide. It uses the Port reader/writer lists built by
// crosslink and must run before timing schedules any PipeSys.
func LinkChans(p *ir.Program, d *diag.Collector) { linkChans(p, d) }

func convertPipe(p *ir.Program, pipe *ir.Pipe) {
	order := rpo(pipe)
	out := make(map[*ir.BasicBlock]barrierSet)

	for _, bb := range order {
		in := joinPreds(bb, out)

		sideBarriers := in.sideEffect
		timingBarriers := in.timing
		pureSince := append([]*ir.Stmt(nil), in.pure...)

		var lastSideEffect *ir.Stmt
		var lastBarrier *ir.Stmt

		for _, s := range bb.Stmts {
			if s.Kind.IsTerminator() {
				continue
			}

			if !s.Kind.IsSideEffecting() {
				if pipe.Spawn != nil {
					s.PipeDeps = append(s.PipeDeps, pipe.Spawn)
				}
				if lastBarrier != nil {
					s.PipeDeps = append(s.PipeDeps, lastBarrier)
				} else {
					s.PipeDeps = append(s.PipeDeps, timingBarriers...)
				}
				pureSince = append(pureSince, s)
				continue
			}

			if lastSideEffect != nil {
				s.PipeDeps = append(s.PipeDeps, lastSideEffect)
			} else {
				s.PipeDeps = append(s.PipeDeps, sideBarriers...)
			}
			lastSideEffect = s

			if s.Kind == ir.KindTimingBarrier {
				for _, pureOp := range pureSince {
					pureOp.PipeDeps = append(pureOp.PipeDeps, s)
				}
				pureSince = nil
				lastBarrier = s
			}
		}

		res := barrierSet{pure: pureSince}
		if lastSideEffect != nil {
			res.sideEffect = []*ir.Stmt{lastSideEffect}
		} else {
			res.sideEffect = sideBarriers
		}
		if lastBarrier != nil {
			res.timing = []*ir.Stmt{lastBarrier}
		} else {
			res.timing = timingBarriers
		}
		out[bb] = res
	}
}

// joinPreds concatenates the outgoing barrier sets of bb's already-processed
// predecessors; a predecessor not yet visited (a backedge target processed
// out of order) contributes nothing, matching the DAG-only scope of this
// pass (backedges were already converted to restart headers by
// internal/backedge, so every remaining predecessor edge is forward).
func joinPreds(bb *ir.BasicBlock, out map[*ir.BasicBlock]barrierSet) barrierSet {
	var merged barrierSet
	for _, pred := range bb.Preds {
		if bs, ok := out[pred]; ok {
			merged.sideEffect = append(merged.sideEffect, bs.sideEffect...)
			merged.timing = append(merged.timing, bs.timing...)
			merged.pure = append(merged.pure, bs.pure...)
		}
	}
	return merged
}

// linkChans gives every chan read a dependency edge on every writer of the
// same chan (chan dataflow is ordered); ports are left unconstrained, they
// are "outside time" relative to the transaction.
func linkChans(p *ir.Program, d *diag.Collector) {
	for _, port := range p.Ports {
		if port.Kind != ir.PortKindChan {
			continue
		}
		for _, r := range port.Readers {
			if r.Kind != ir.KindChanRead {
				continue
			}
			r.PipeDeps = append(r.PipeDeps, port.Writers...)
		}
	}
}

func rpo(pipe *ir.Pipe) []*ir.BasicBlock {
	return graph.RPO(pipe.Roots).Order
}
