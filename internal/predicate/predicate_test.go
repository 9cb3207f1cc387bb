package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// sig is a toy Factor: predicate.go dispatches ordering/keying through a
// factor's String() method, which a bare string does not implement.
type sig string

func (s sig) String() string { return string(s) }

func TestTrueFalse(t *testing.T) {
	assert.True(t, True().IsTrue())
	assert.True(t, False().IsFalse())
	assert.False(t, True().IsFalse())
	assert.False(t, False().IsTrue())
}

func TestAndWith(t *testing.T) {
	p := True().AndWith(sig("a"), true)
	assert.False(t, p.IsTrue())
	assert.False(t, p.IsFalse())

	// a AND NOT a == False
	q := p.AndWith(sig("a"), false)
	assert.True(t, q.IsFalse())
}

func TestOrWith_ComplementaryTermsCollapseToTrue(t *testing.T) {
	a := True().AndWith(sig("a"), true)
	notA := True().AndWith(sig("a"), false)
	p := a.OrWith(notA)
	assert.True(t, p.IsTrue())
}

func TestAnd_Distributes(t *testing.T) {
	a := True().AndWith(sig("a"), true)
	b := True().AndWith(sig("b"), true)
	ab := a.And(b)
	assert.False(t, ab.IsTrue())
	assert.False(t, ab.IsFalse())

	// (a) AND (NOT a) == False regardless of grouping
	notA := True().AndWith(sig("a"), false)
	assert.True(t, a.And(notA).IsFalse())
}

func TestNot(t *testing.T) {
	assert.True(t, True().Not().IsFalse())
	assert.True(t, False().Not().IsTrue())

	a := True().AndWith(sig("a"), true)
	notA := a.Not()
	assert.True(t, a.And(notA).IsFalse())
	assert.True(t, a.OrWith(notA).IsTrue())
}

func TestEqual_IsOrderSensitiveCanonicalForm(t *testing.T) {
	a := True().AndWith(sig("a"), true)
	b := True().AndWith(sig("a"), true)
	assert.True(t, a.Equal(b))

	c := True().AndWith(sig("b"), true)
	assert.False(t, a.Equal(c))
}

func TestKey_StableAcrossEqualPredicates(t *testing.T) {
	a := True().AndWith(sig("a"), true).AndWith(sig("b"), false)
	b := True().AndWith(sig("a"), true).AndWith(sig("b"), false)
	assert.Equal(t, a.Key(), b.Key())
}

func TestSubsumptionDropsRedundantTerm(t *testing.T) {
	// (a) OR (a AND b) simplifies to (a): the stricter term is redundant.
	a := True().AndWith(sig("a"), true)
	ab := a.AndWith(sig("b"), true)
	p := a.OrWith(ab)
	assert.Equal(t, 1, len(p.Terms))
	assert.True(t, p.Equal(a))
}
