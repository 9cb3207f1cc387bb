package timing

import "github.com/google/autopiper/internal/ir"

// deps returns n's timing-DAG predecessors: dataflow args, side-effect DAG
// edges, and the materialized valid_in expression (spec.md §4.8).
func deps(n *ir.Stmt) []*ir.Stmt {
	var out []*ir.Stmt
	for _, a := range n.Args {
		if a != nil {
			out = append(out, a)
		}
	}
	out = append(out, n.PipeDeps...)
	if n.ValidInStmt != nil {
		out = append(out, n.ValidInStmt)
	}
	return out
}

type color int

const (
	white color = iota
	gray
	black
)

// checkCycles performs the iterative-in-spirit (here recursive, since Go
// has no goroutine stack limit problem at this graph size) tri-color DFS
// of spec.md §4.8: any edge into a gray node is a back edge, reported as a
// cycle with its membership.
func checkCycles(nodes []*ir.Stmt) (cycle []*ir.Stmt, found bool) {
	colors := make(map[*ir.Stmt]color, len(nodes))

	var visit func(n *ir.Stmt) bool
	visit = func(n *ir.Stmt) bool {
		switch colors[n] {
		case black:
			return false
		case gray:
			cycle = append(cycle, n)
			return true
		}
		colors[n] = gray
		for _, d := range deps(n) {
			if visit(d) {
				cycle = append(cycle, n)
				return true
			}
		}
		colors[n] = black
		return false
	}

	for _, n := range nodes {
		if colors[n] == white {
			if visit(n) {
				return cycle, true
			}
		}
	}
	return nil, false
}

// topoOrder returns nodes in dependency-first order: every node appears
// after all of its deps. nodes must already be known acyclic.
func topoOrder(nodes []*ir.Stmt) []*ir.Stmt {
	visited := make(map[*ir.Stmt]bool, len(nodes))
	var post []*ir.Stmt
	var visit func(n *ir.Stmt)
	visit = func(n *ir.Stmt) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		for _, d := range deps(n) {
			visit(d)
		}
		post = append(post, n)
	}
	for _, n := range nodes {
		visit(n)
	}
	return post
}

// reverseAdjacency builds the successor map implied by deps, for the
// backward (ALAP) pass.
func reverseAdjacency(nodes []*ir.Stmt) map[*ir.Stmt][]*ir.Stmt {
	rev := make(map[*ir.Stmt][]*ir.Stmt, len(nodes))
	for _, n := range nodes {
		for _, d := range deps(n) {
			rev[d] = append(rev[d], n)
		}
	}
	return rev
}
