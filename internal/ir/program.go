package ir

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Program is the top-level owner of the IR graph: every BB, statement,
// port, storage, bypass and timing variable in the compile. Pipelines and
// pipe stages (see pipe.go) borrow but do not own these objects.
//
// ByVal/ByLabel are xsync.Map-backed rather than plain maps so that
// independent PipeSyses can be lowered concurrently by internal/lower's
// worker pool without a global mutex serializing every crosslink lookup;
// within one goroutine they behave exactly like a regular map. Ports,
// Storage, Bypasses and TimingVars are built once by the crosslinker
// before any concurrent lowering begins, so they stay plain maps.
type Program struct {
	BBs     []*BasicBlock
	Entries []*BasicBlock // top-level entry BBs (spec.md §3's "list of entry blocks")

	Ports     map[string]*Port
	Storage   map[string]*Storage
	Bypasses  map[string]*Bypass
	TimingVars map[string]*TimingVar

	PipeSyses []*PipeSys

	byVal   *xsync.Map[int, *Stmt]
	byLabel *xsync.Map[string, *BasicBlock]

	nextVal atomic.Int64

	Crosslinked bool // idempotence flag, see internal/crosslink
}

// NewProgram returns an empty program ready to receive parsed BBs.
func NewProgram() *Program {
	return &Program{
		Ports:      make(map[string]*Port),
		Storage:    make(map[string]*Storage),
		Bypasses:   make(map[string]*Bypass),
		TimingVars: make(map[string]*TimingVar),
		byVal:      xsync.NewMap[int, *Stmt](),
		byLabel:    xsync.NewMap[string, *BasicBlock](),
	}
}

// AllocVal returns a fresh, program-wide-unique positive value number, used
// by every lowering pass that synthesizes new statements (restart values,
// mux trees, kill OR-trees, valid-gating ANDs, pipeline-register links).
func (p *Program) AllocVal() int {
	return int(p.nextVal.Add(1))
}

// Reserve bumps the allocator so that subsequently synthesized values never
// collide with value numbers already present in parsed input; called once
// by the crosslinker after it has seen every statement.
func (p *Program) Reserve(maxSeen int) {
	for {
		cur := p.nextVal.Load()
		if int64(maxSeen) <= cur {
			return
		}
		if p.nextVal.CompareAndSwap(cur, int64(maxSeen)) {
			return
		}
	}
}

// AddBB registers bb both in the flat BBs list and the label index.
func (p *Program) AddBB(bb *BasicBlock) {
	p.BBs = append(p.BBs, bb)
	p.byLabel.Store(bb.Label, bb)
}

// BBByLabel looks up a BB by label, or returns (nil, false).
func (p *Program) BBByLabel(label string) (*BasicBlock, bool) {
	return p.byLabel.Load(label)
}

// BindStmt records s under its value number for later argument resolution.
func (p *Program) BindStmt(s *Stmt) {
	p.byVal.Store(s.Val, s)
}

// StmtByVal looks up a statement by value number, or returns (nil, false).
func (p *Program) StmtByVal(val int) (*Stmt, bool) {
	return p.byVal.Load(val)
}

// AllStmts returns every non-deleted statement across all BBs, in BB then
// in-BB order. Lowering passes that need a full-program walk (typecheck,
// crosslink verification) use this rather than re-deriving it.
func (p *Program) AllStmts() []*Stmt {
	var out []*Stmt
	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			if !s.Deleted {
				out = append(out, s)
			}
		}
	}
	return out
}
