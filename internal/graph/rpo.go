// Package graph implements the DFS-based reverse postorder and
// Cooper-Harvey-Kennedy dominator-tree machinery shared by every pass that
// walks a BB or pipe-DAG graph (spec.md §4.1). It is parameterized over a
// Node interface rather than tied to *ir.BasicBlock so the same machinery
// serves both the CFG and the side-effect/timing DAGs.
package graph

// Node is anything with a stable identity and a successor function.
type Node[T any] interface {
	comparable
	Successors() []T
}

// RPOResult is the output of a reverse-postorder walk: the order itself, a
// node->index map, and the predecessor lists materialized during the same
// DFS (spec.md §4.1: "a map from node to its predecessor list, materialized
// during the same DFS").
type RPOResult[T Node[T]] struct {
	Order []T
	Index map[T]int
	Preds map[T][]T
}

// RPO computes reverse postorder from roots. Roots are visited in reverse
// order of the input slice so that the earlier roots appear first in the
// resulting RPO, matching spec.md §4.1.
func RPO[T Node[T]](roots []T) *RPOResult[T] {
	res := &RPOResult[T]{
		Index: make(map[T]int),
		Preds: make(map[T][]T),
	}

	visited := make(map[T]bool)
	var post []T

	var visit func(n T)
	visit = func(n T) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, s := range n.Successors() {
			res.Preds[s] = append(res.Preds[s], n)
			visit(s)
		}
		post = append(post, n)
	}

	for i := len(roots) - 1; i >= 0; i-- {
		visit(roots[i])
	}

	// reverse postorder = reverse of DFS postorder
	res.Order = make([]T, len(post))
	for i, n := range post {
		res.Order[len(post)-1-i] = n
	}
	for i, n := range res.Order {
		res.Index[n] = i
	}
	return res
}

// FindRoots returns every node reachable from all, minus any node that
// appears as someone else's successor — i.e. the nodes nobody points to.
func FindRoots[T Node[T]](all []T) []T {
	isSucc := make(map[T]bool)
	for _, n := range all {
		for _, s := range n.Successors() {
			isSucc[s] = true
		}
	}
	var roots []T
	for _, n := range all {
		if !isSucc[n] {
			roots = append(roots, n)
		}
	}
	return roots
}
