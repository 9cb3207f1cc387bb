// Package pipeextract partitions a crosslinked, typechecked program's basic
// blocks into PipeSys/Pipe trees rooted at entry points and spawn targets
// (spec.md §4.4), by a work-queue BFS.
package pipeextract

import (
	"errors"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

var (
	ErrSharedBB   = errors.New("BB reachable from multiple pipes")
	ErrChanCross  = errors.New("chan used outside its spawn tree")
	ErrSpawnTwice = errors.New("spawn target already in another pipe")
)

// Run partitions p.BBs into p.PipeSyses, one PipeSys per top-level entry.
func Run(p *ir.Program, d *diag.Collector) bool {
	before := len(d.Items())

	for _, entry := range p.Entries {
		sys := &ir.PipeSys{Name: entry.Label}
		root := &ir.Pipe{Sys: sys, Entry: entry}
		sys.Pipes = append(sys.Pipes, root)
		p.PipeSyses = append(p.PipeSyses, sys)

		queue := []*ir.Pipe{root}
		for len(queue) > 0 {
			pipe := queue[0]
			queue = queue[1:]
			spawned := extractPipe(p, d, pipe)
			queue = append(queue, spawned...)
		}
	}

	checkChanScope(p, d)

	return countErrors(d, before) == 0
}

func countErrors(d *diag.Collector, before int) int {
	items := d.Items()
	n := 0
	for _, it := range items[before:] {
		if it.Severity == diag.Error {
			n++
		}
	}
	return n
}

// extractPipe BFS's pipe's CFG starting at pipe.Entry, claiming BBs via
// their owning-pipe pointer and enqueuing a new child Pipe for every spawn
// encountered. It returns the newly created child pipes.
func extractPipe(p *ir.Program, d *diag.Collector, pipe *ir.Pipe) []*ir.Pipe {
	var spawned []*ir.Pipe

	queue := []*ir.BasicBlock{pipe.Entry}
	visited := make(map[*ir.BasicBlock]bool)

	for len(queue) > 0 {
		bb := queue[0]
		queue = queue[1:]
		if visited[bb] {
			continue
		}
		visited[bb] = true

		if bb.Pipe != nil && bb.Pipe != pipe {
			d.Errorf(diag.KindStructure, bb.Stmts[0].Pos, "%v: %s", ErrSharedBB, bb.Label)
			continue
		}
		bb.Pipe = pipe
		pipe.BBs = append(pipe.BBs, bb)

		for _, s := range bb.Stmts {
			if s.Kind == ir.KindSpawn {
				target := firstSucc(s)
				if target == nil {
					continue
				}
				if target.Pipe != nil {
					d.Errorf(diag.KindStructure, s.Pos, "%v: %s", ErrSpawnTwice, target.Label)
					continue
				}
				child := &ir.Pipe{Sys: pipe.Sys, Entry: target, Parent: pipe, Spawn: s}
				pipe.Sys.Pipes = append(pipe.Sys.Pipes, child)
				spawned = append(spawned, child)
				continue // spawn targets are claimed by their own pipe, not BFS'd here
			}
		}

		for _, succ := range bb.Successors() {
			if !visited[succ] {
				queue = append(queue, succ)
			}
		}
	}

	pipe.Roots = []*ir.BasicBlock{pipe.Entry}
	return spawned
}

func firstSucc(s *ir.Stmt) *ir.BasicBlock {
	if len(s.Succs) == 0 {
		return nil
	}
	return s.Succs[0]
}

// checkChanScope errors if a chan has any writer or reader in a different
// PipeSys from its other users.
func checkChanScope(p *ir.Program, d *diag.Collector) {
	for _, port := range p.Ports {
		if port.Kind != ir.PortKindChan {
			continue
		}
		var sys *ir.PipeSys
		check := func(s *ir.Stmt) {
			if s.BB == nil || s.BB.Pipe == nil {
				return
			}
			if sys == nil {
				sys = s.BB.Pipe.Sys
				return
			}
			if s.BB.Pipe.Sys != sys {
				d.Errorf(diag.KindStructure, s.Pos, "%v: %s", ErrChanCross, port.Name)
			}
		}
		for _, s := range port.Writers {
			check(s)
		}
		for _, s := range port.Readers {
			check(s)
		}
	}
}
