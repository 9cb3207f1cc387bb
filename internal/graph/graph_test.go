package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node is a minimal, pointer-identity test graph: a diamond CFG
//
//	a -> b -> d
//	a -> c -> d
type node struct {
	name string
	succ []*node
}

func (n *node) Successors() []*node { return n.succ }

func diamond() (a, b, c, d *node) {
	d = &node{name: "d"}
	b = &node{name: "b", succ: []*node{d}}
	c = &node{name: "c", succ: []*node{d}}
	a = &node{name: "a", succ: []*node{b, c}}
	return a, b, c, d
}

func TestRPO_Order(t *testing.T) {
	a, b, c, d := diamond()
	res := RPO[*node]([]*node{a})

	require.Len(t, res.Order, 4)
	assert.Equal(t, a, res.Order[0], "root must come first")
	assert.Equal(t, d, res.Order[len(res.Order)-1], "join point must come last")
	assert.Contains(t, res.Order, b)
	assert.Contains(t, res.Order, c)
}

func TestRPO_Preds(t *testing.T) {
	a, b, c, d := diamond()
	res := RPO[*node]([]*node{a})

	assert.ElementsMatch(t, []*node{a}, res.Preds[b])
	assert.ElementsMatch(t, []*node{a}, res.Preds[c])
	assert.ElementsMatch(t, []*node{b, c}, res.Preds[d])
}

func TestFindRoots(t *testing.T) {
	a, b, c, d := diamond()
	roots := FindRoots([]*node{a, b, c, d})
	assert.Equal(t, []*node{a}, roots)
}

func TestBuildDomTree_Diamond(t *testing.T) {
	a, b, c, d := diamond()
	res := RPO[*node]([]*node{a})
	dt := BuildDomTree(a, res)

	assert.True(t, dt.Dom(a, d))
	assert.True(t, dt.Dom(a, b))
	assert.True(t, dt.Dom(a, c))
	assert.False(t, dt.Dom(b, c))
	assert.False(t, dt.Dom(b, d), "d has two predecessors; b alone does not dominate it")

	idomD, ok := dt.IDom(d)
	require.True(t, ok)
	assert.Equal(t, a, idomD, "d's immediate dominator is the join point's common ancestor a")
}

func TestBuildDomTree_UnreachableNode(t *testing.T) {
	a, _, _, d := diamond()
	unreachable := &node{name: "u"}
	res := RPO[*node]([]*node{a})
	dt := BuildDomTree(a, res)

	_, ok := dt.IDom(unreachable)
	assert.False(t, ok)
	_ = d
}
