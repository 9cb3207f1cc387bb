// Package killif propagates each kill_if condition's backward slice into
// every downstream pipeline stage, so the condition is continuously
// re-evaluated (not just latched once) for as long as the transaction
// remains in flight (spec.md §4.9).
package killif

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

// ErrNonCombinational is reported when a kill_if condition's backward
// slice reaches anything other than a port read or a pure expression —
// chan reads and other side-effecting statements cannot be safely
// re-evaluated every cycle.
var ErrNonCombinational = errors.New("kill_if condition depends on a non-combinational statement")

var cloneCounter int

// Run propagates every kill_if in every pipe of every PipeSys in p.
func Run(p *ir.Program, d *diag.Collector) bool {
	ok := true
	for _, sys := range p.PipeSyses {
		if !RunSys(p, d, sys) {
			ok = false
		}
	}
	return ok
}

// RunSys propagates every kill_if within one PipeSys, independently of
// every other PipeSys in p (downstreamStages only ever walks pipes of the
// same sys).
func RunSys(p *ir.Program, d *diag.Collector, sys *ir.PipeSys) bool {
	ok := true
	for _, pipe := range sys.Pipes {
		for _, bb := range pipe.BBs {
			for _, s := range bb.Stmts {
				if s.Deleted || s.Kind != ir.KindKillIf {
					continue
				}
				if !propagate(p, d, pipe, s) {
					ok = false
				}
			}
		}
	}
	return ok
}

func propagate(p *ir.Program, d *diag.Collector, pipe *ir.Pipe, s *ir.Stmt) bool {
	if len(s.Args) == 0 || s.Args[0] == nil {
		return true
	}
	cond := s.Args[0]

	slice, err := backwardSlice(cond)
	if err != nil {
		d.Errorf(diag.KindLowering, s.Pos, "%v", err)
		return false
	}

	stages := downstreamStages(pipe, s.Stage)
	for _, st := range stages {
		clones := cloneSlice(p, slice)
		clonedCond := clones[len(clones)-1]

		cloneCounter++
		home := &ir.BasicBlock{Label: fmt.Sprintf("kill_if.%d", cloneCounter), Pipe: pipe}
		for _, c := range clones {
			c.BB = home
			c.Stage = st
		}
		home.Stmts = clones

		and := &ir.Stmt{
			Val: p.AllocVal(), Kind: ir.KindExpr, Op: ir.OpAnd, Width: 1,
			Pos: s.Pos, Args: []*ir.Stmt{clonedCond, s.ValidInStmt}, BB: home, Stage: st,
		}
		p.BindStmt(and)
		home.Stmts = append(home.Stmts, and)

		st.Stmts = append(st.Stmts, clones...)
		st.Stmts = append(st.Stmts, and)
		st.Kills = append(st.Kills, and)
	}
	return true
}

// backwardSlice returns cond and everything it transitively depends on via
// Args, in postorder (deps before uses), so cloning in that order never
// needs a forward reference. Every reached statement must be a port read
// or a pure expression.
func backwardSlice(cond *ir.Stmt) ([]*ir.Stmt, error) {
	visited := make(map[*ir.Stmt]bool)
	var post []*ir.Stmt
	var walk func(s *ir.Stmt) error
	walk = func(s *ir.Stmt) error {
		if s == nil || visited[s] {
			return nil
		}
		visited[s] = true
		if s.Kind != ir.KindPortRead && s.Kind != ir.KindExpr {
			return fmt.Errorf("%w: %%%d is %s", ErrNonCombinational, s.Val, s.Kind)
		}
		for _, a := range s.Args {
			if err := walk(a); err != nil {
				return err
			}
		}
		post = append(post, s)
		return nil
	}
	if err := walk(cond); err != nil {
		return nil, err
	}
	return post, nil
}

// cloneSlice copies slice (postorder) into fresh statements with fresh
// value numbers, rewriting Args to point at the corresponding clones.
func cloneSlice(p *ir.Program, slice []*ir.Stmt) []*ir.Stmt {
	orig2clone := make(map[*ir.Stmt]*ir.Stmt, len(slice))
	out := make([]*ir.Stmt, len(slice))
	for i, s := range slice {
		c := &ir.Stmt{
			Val: p.AllocVal(), Kind: s.Kind, Op: s.Op, Width: s.Width,
			Pos: s.Pos, RefName: s.RefName, Port: s.Port,
		}
		if s.Const != nil {
			c.Const = new(big.Int).Set(s.Const)
		}
		c.Args = make([]*ir.Stmt, len(s.Args))
		for j, a := range s.Args {
			if a != nil {
				c.Args[j] = orig2clone[a]
			}
		}
		p.BindStmt(c)
		orig2clone[s] = c
		out[i] = c
	}
	return out
}

// downstreamStages returns every PipeStage with a higher Number than from
// (the kill_if's own stage) within pipe, plus every stage of every pipe
// transitively spawned from pipe (their entire execution is downstream of
// the spawn point).
func downstreamStages(pipe *ir.Pipe, from *ir.PipeStage) []*ir.PipeStage {
	var out []*ir.PipeStage
	threshold := 0
	if from != nil {
		threshold = from.Number
	}
	for _, st := range pipe.Stages {
		if st.Number > threshold {
			out = append(out, st)
		}
	}
	for _, child := range descendants(pipe) {
		out = append(out, child.Stages...)
	}
	return out
}

// descendants returns every pipe in pipe.Sys whose Parent chain passes
// through pipe.
func descendants(pipe *ir.Pipe) []*ir.Pipe {
	var out []*ir.Pipe
	for _, candidate := range pipe.Sys.Pipes {
		for a := candidate.Parent; a != nil; a = a.Parent {
			if a == pipe {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}
