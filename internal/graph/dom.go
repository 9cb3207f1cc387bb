package graph

// DomTree implements the Cooper-Harvey-Kennedy iterative dominance
// algorithm (spec.md §4.1) over a precomputed RPO.
type DomTree[T Node[T]] struct {
	rpo   *RPOResult[T]
	idom  map[T]T
	start T // the single root the walk began from (idom[start] == start)
}

// BuildDomTree computes the dominator tree for the graph reachable from
// root, given root's RPO result (root must be rpo.Order[0]).
func BuildDomTree[T Node[T]](root T, rpo *RPOResult[T]) *DomTree[T] {
	dt := &DomTree[T]{rpo: rpo, idom: make(map[T]T), start: root}
	dt.idom[root] = root

	changed := true
	for changed {
		changed = false
		for _, n := range rpo.Order {
			if n == root {
				continue
			}
			var newIdom T
			haveIdom := false
			for _, p := range rpo.Preds[n] {
				if _, ok := dt.idom[p]; !ok {
					continue // predecessor not yet processed
				}
				if !haveIdom {
					newIdom = p
					haveIdom = true
					continue
				}
				newIdom = dt.intersect(newIdom, p)
			}
			if !haveIdom {
				continue
			}
			if old, ok := dt.idom[n]; !ok || old != newIdom {
				dt.idom[n] = newIdom
				changed = true
			}
		}
	}
	return dt
}

// intersect walks both candidates up the (partially built) dominator tree,
// the one with the higher RPO index walking up first, until they meet.
func (dt *DomTree[T]) intersect(a, b T) T {
	for a != b {
		for dt.rpo.Index[a] > dt.rpo.Index[b] {
			a = dt.idom[a]
		}
		for dt.rpo.Index[b] > dt.rpo.Index[a] {
			b = dt.idom[b]
		}
	}
	return a
}

// IDom returns n's immediate dominator, or (zero, false) if n is
// unreachable from the tree's root.
func (dt *DomTree[T]) IDom(n T) (T, bool) {
	d, ok := dt.idom[n]
	return d, ok
}

// IDomParent is IDom without the ok flag; it returns n itself at the root.
func (dt *DomTree[T]) IDomParent(n T) T {
	return dt.idom[n]
}

// Dom reports whether a dominates b (reflexively: a dominates a).
func (dt *DomTree[T]) Dom(a, b T) bool {
	for {
		if a == b {
			return true
		}
		if b == dt.start {
			return a == dt.start
		}
		parent, ok := dt.idom[b]
		if !ok || parent == b {
			return a == b
		}
		b = parent
	}
}
