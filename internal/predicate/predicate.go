// Package predicate implements the DNF predicate algebra used to represent
// valid signals at compile time, before the if-converter materializes them
// into concrete boolean-expression statements.
//
// A Predicate is a disjunction of Terms; each Term is a conjunction of
// signed factors. Factors are opaque comparable tokens (in practice
// *ir.Stmt pointers) so this package has no dependency on the IR.
package predicate

import (
	"sort"
	"strings"
)

// Factor is any comparable token standing for a boolean signal.
type Factor any

// Term is one product (AND) clause: an ordered map from factor to polarity.
// A falsified Term is kept in place (pruned lazily) so map keys referring to
// it stay valid during construction; Simplify removes falsified terms.
type Term struct {
	lits      []literal
	falsified bool
}

type literal struct {
	f   Factor
	pos bool
}

func (t Term) clone() Term {
	lits := make([]literal, len(t.lits))
	copy(lits, t.lits)
	return Term{lits: lits, falsified: t.falsified}
}

// find returns the index of f in t.lits, or -1.
func (t Term) find(f Factor) int {
	for i, l := range t.lits {
		if l.f == f {
			return i
		}
	}
	return -1
}

// andWith returns t AND (f is pos), preserving t's existing falsified state.
func (t Term) andWith(f Factor, pos bool) Term {
	nt := t.clone()
	if i := nt.find(f); i >= 0 {
		if nt.lits[i].pos != pos {
			nt.falsified = true
		}
		return nt
	}
	nt.lits = append(nt.lits, literal{f: f, pos: pos})
	nt.sort()
	return nt
}

func (t *Term) sort() {
	sort.Slice(t.lits, func(i, j int) bool {
		return lessFactor(t.lits[i].f, t.lits[j].f)
	})
}

// lessFactor provides a stable (if arbitrary) total order over factors so
// Terms with the same literal set compare and hash identically regardless
// of insertion order. Factors are ordered by their String() form; a factor
// without a String method keys as "", so such factors share one key and
// keep no defined order among themselves.
func lessFactor(a, b Factor) bool {
	return factorKey(a) < factorKey(b)
}

func factorKey(f Factor) string {
	type stringer interface{ String() string }
	if s, ok := f.(stringer); ok {
		return s.String()
	}
	return ""
}

// subsumes reports whether u implies t, i.e. every literal of t (the
// receiver) also appears (with the same polarity) in u — so u is the
// stricter (or equal) term, t the weaker one, and u is redundant
// whenever both are present in a Predicate's disjunction since t already
// covers every case u does.
func (t Term) subsumes(u Term) bool {
	if len(t.lits) > len(u.lits) {
		return false
	}
	for _, l := range t.lits {
		if i := u.find(l.f); i < 0 || u.lits[i].pos != l.pos {
			return false
		}
	}
	return true
}

// complementOf reports whether t and u differ in the polarity of exactly
// one shared factor and agree (same factor set, same polarity) elsewhere;
// if so, the differing factor is returned along with ok=true. Terms that
// satisfy this are the A|~A pair that the simplifier cancels to True.
func (t Term) complementOf(u Term) (Factor, bool) {
	if len(t.lits) != len(u.lits) {
		return nil, false
	}
	var diff Factor
	ndiff := 0
	for _, l := range t.lits {
		i := u.find(l.f)
		if i < 0 {
			return nil, false
		}
		if u.lits[i].pos != l.pos {
			ndiff++
			diff = l.f
			if ndiff > 1 {
				return nil, false
			}
		}
	}
	if ndiff == 1 {
		return diff, true
	}
	return nil, false
}

func (t Term) isTautology() bool {
	return len(t.lits) == 0 && !t.falsified
}

func (t Term) equal(u Term) bool {
	if t.falsified != u.falsified || len(t.lits) != len(u.lits) {
		return false
	}
	for i := range t.lits {
		if t.lits[i] != u.lits[i] {
			return false
		}
	}
	return true
}

// Predicate is an ordered DNF expression: the OR of its Terms.
type Predicate struct {
	Terms    []Term
	Backedge bool // priority hint used by mux-tree selection, not logic
}

// True returns the tautological predicate (a single empty term).
func True() Predicate {
	return Predicate{Terms: []Term{{}}}
}

// False returns the unsatisfiable predicate (no terms).
func False() Predicate {
	return Predicate{}
}

// IsTrue reports whether p is canonically True (a single tautological term).
func (p Predicate) IsTrue() bool {
	return len(p.Terms) == 1 && p.Terms[0].isTautology()
}

// IsFalse reports whether p has no satisfiable terms.
func (p Predicate) IsFalse() bool {
	return len(p.Terms) == 0
}

// AndWith returns p AND (factor is pos), one new term per existing term.
func (p Predicate) AndWith(f Factor, pos bool) Predicate {
	out := Predicate{Backedge: p.Backedge}
	for _, t := range p.Terms {
		nt := t.andWith(f, pos)
		if !nt.falsified {
			out.Terms = append(out.Terms, nt)
		}
	}
	return out.simplify()
}

// OrWith returns p OR q.
func (p Predicate) OrWith(q Predicate) Predicate {
	out := Predicate{Backedge: p.Backedge || q.Backedge}
	out.Terms = append(out.Terms, p.Terms...)
	out.Terms = append(out.Terms, q.Terms...)
	return out.simplify()
}

// And returns the conjunction of p and q (distributes over both DNFs).
func (p Predicate) And(q Predicate) Predicate {
	out := Predicate{Backedge: p.Backedge || q.Backedge}
	for _, t := range p.Terms {
		for _, u := range q.Terms {
			nt := t.clone()
			nt.falsified = nt.falsified || u.falsified
			merged := nt
			ok := true
			for _, l := range u.lits {
				merged = merged.andWith(l.f, l.pos)
				if merged.falsified {
					ok = false
					break
				}
			}
			if ok && !merged.falsified {
				out.Terms = append(out.Terms, merged)
			}
		}
	}
	return out.simplify()
}

// Not returns the negation of a single-term predicate's factor set applied
// as a fresh term set: NOT is only ever needed here on single conjunctive
// clauses coming out of an `if` condition, so this implements De Morgan
// over p's terms as a cross-product of negated literals.
func (p Predicate) Not() Predicate {
	out := True()
	for _, t := range p.Terms {
		// NOT(term) = OR over literals of the negated literal
		var alt Predicate
		for _, l := range t.lits {
			alt = alt.OrWith(Predicate{Terms: []Term{{lits: []literal{{f: l.f, pos: !l.pos}}}}})
		}
		if len(t.lits) == 0 {
			alt = False() // NOT(true) = false
		}
		out = out.And(alt)
	}
	return out.simplify()
}

// simplify applies the canonicalization rules from spec.md §4.1:
// falsify contradictory terms, cancel complementary term pairs, drop
// subsumed terms, prune duplicates, and collapse to True if any term is
// tautological.
func (p Predicate) simplify() Predicate {
	// drop falsified terms
	terms := make([]Term, 0, len(p.Terms))
	for _, t := range p.Terms {
		if !t.falsified {
			terms = append(terms, t)
		}
	}

	// tautology present? whole predicate is True
	for _, t := range terms {
		if t.isTautology() {
			return Predicate{Terms: []Term{{}}, Backedge: p.Backedge}
		}
	}

	// cancel complementary pairs: two terms that differ only in the
	// polarity of one factor merge into one term without that factor
	// ((A&B)|(A&~B) -> A; A|~A -> True). Like the rest of this simplifier
	// this is conservative, not a full minimization.
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(terms); i++ {
			for j := i + 1; j < len(terms); j++ {
				if f, ok := terms[i].complementOf(terms[j]); ok {
					merged := Term{}
					for _, l := range terms[i].lits {
						if l.f != f {
							merged.lits = append(merged.lits, l)
						}
					}
					terms = append(terms[:j], terms[j+1:]...)
					terms = append(terms[:i], terms[i+1:]...)
					terms = append(terms, merged)
					changed = true
					break
				}
			}
			if changed {
				break
			}
		}
	}
	for _, t := range terms {
		if t.isTautology() {
			return Predicate{Terms: []Term{{}}, Backedge: p.Backedge}
		}
	}

	// drop duplicates and subsumed terms
	var out []Term
	for i, t := range terms {
		dominated := false
		for j, u := range terms {
			if i == j {
				continue
			}
			if t.equal(u) && j < i {
				dominated = true
				break
			}
			if j != i && u.subsumes(t) && !t.subsumes(u) {
				dominated = true
				break
			}
			if j != i && u.subsumes(t) && t.subsumes(u) && j < i {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, t)
		}
	}

	return Predicate{Terms: out, Backedge: p.Backedge}
}

// Equal reports whether p and q are the same canonical DNF (same term set,
// same order), making Predicate usable as a memoization key after
// canonicalization by simplify.
func (p Predicate) Equal(q Predicate) bool {
	if len(p.Terms) != len(q.Terms) {
		return false
	}
	for i := range p.Terms {
		if !p.Terms[i].equal(q.Terms[i]) {
			return false
		}
	}
	return true
}

// Literal is one (factor, polarity) pair of a Term, exported for callers
// (the if-converter's materializer) that need to walk a term's factors to
// build a concrete expression tree.
type Literal struct {
	Factor Factor
	Pos    bool
}

// TermFactors returns t's literals in canonical (sorted) order.
func TermFactors(t Term) []Literal {
	out := make([]Literal, len(t.lits))
	for i, l := range t.lits {
		out[i] = Literal{Factor: l.f, Pos: l.pos}
	}
	return out
}

// Key returns a stable string usable as a map key for memoization, since
// Predicate itself (containing slices) is not comparable with ==.
func (p Predicate) Key() string {
	var sb strings.Builder
	for i, t := range p.Terms {
		if i > 0 {
			sb.WriteByte('|')
		}
		for j, l := range t.lits {
			if j > 0 {
				sb.WriteByte('&')
			}
			if !l.pos {
				sb.WriteByte('~')
			}
			sb.WriteString(factorKey(l.f))
		}
	}
	return sb.String()
}
