// Package ir defines the SSA-form intermediate representation the lowering
// pipeline consumes and mutates in place: programs, basic blocks,
// statements, ports, storage, bypass networks and the pipe/stage
// scheduling metadata attached by later passes.
package ir

import (
	"fmt"
	"math/big"

	"github.com/google/autopiper/internal/predicate"
)

// Kind identifies the statement's role in the graph.
type Kind int

const (
	KindExpr Kind = iota
	KindPhi
	KindIf
	KindJmp
	KindPortRead
	KindPortWrite
	KindPortExport
	KindChanRead
	KindChanWrite
	KindRegRead
	KindRegWrite
	KindArrRead
	KindArrWrite
	KindSpawn
	KindKill
	KindKillYounger
	KindKillIf
	KindDone
	KindTimingBarrier
	KindBackedge
	KindRestartValue
	KindRestartValueSrc
)

func (k Kind) String() string {
	switch k {
	case KindExpr:
		return "expr"
	case KindPhi:
		return "phi"
	case KindIf:
		return "if"
	case KindJmp:
		return "jmp"
	case KindPortRead:
		return "portread"
	case KindPortWrite:
		return "portwrite"
	case KindPortExport:
		return "portexport"
	case KindChanRead:
		return "chanread"
	case KindChanWrite:
		return "chanwrite"
	case KindRegRead:
		return "regread"
	case KindRegWrite:
		return "regwrite"
	case KindArrRead:
		return "arrread"
	case KindArrWrite:
		return "arrwrite"
	case KindSpawn:
		return "spawn"
	case KindKill:
		return "kill"
	case KindKillYounger:
		return "killyounger"
	case KindKillIf:
		return "kill_if"
	case KindDone:
		return "done"
	case KindTimingBarrier:
		return "timing_barrier"
	case KindBackedge:
		return "backedge"
	case KindRestartValue:
		return "restart_value"
	case KindRestartValueSrc:
		return "restart_value_src"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsSideEffecting reports whether a statement of this kind is ordered
// relative to other side-effecting statements by the side-effect DAG
// builder (see internal/sideeffect), as opposed to being a pure op that
// only needs timing-barrier/spawn ordering.
func (k Kind) IsSideEffecting() bool {
	switch k {
	case KindPortRead, KindPortWrite, KindPortExport,
		KindChanRead, KindChanWrite,
		KindRegRead, KindRegWrite, KindArrRead, KindArrWrite,
		KindSpawn, KindKill, KindKillYounger, KindKillIf, KindDone,
		KindTimingBarrier, KindBackedge:
		return true
	default:
		return false
	}
}

// IsTerminator reports whether this kind must be the last statement of a BB.
func (k Kind) IsTerminator() bool {
	switch k {
	case KindIf, KindJmp, KindKill, KindDone:
		return true
	default:
		return false
	}
}

// Op enumerates the expression opcode for KindExpr statements.
type Op int

const (
	OpNone Op = iota
	OpConst
	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr
	OpMul
	OpDiv
	OpRem
	OpBitslice
	OpConcat
	OpSelect
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o Op) String() string {
	names := [...]string{
		"none", "const", "add", "sub", "and", "or", "xor", "not",
		"shl", "shr", "mul", "div", "rem", "bitslice", "concat",
		"select", "eq", "ne", "lt", "le", "gt", "ge",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsCompare reports whether this op yields a single-bit comparison result.
func (o Op) IsCompare() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	default:
		return false
	}
}

// TxnWidth is the sentinel bit-width meaning "width of the txn-ID type",
// used where statements carry a transaction ID instead of a data value.
const TxnWidth = -1

// Stmt is the fundamental SSA value: every node in the IR graph, from a
// constant to a terminator to a scheduling artifact inserted by a
// lowering pass, is a *Stmt.
type Stmt struct {
	Val  int  // unique positive value number, program-wide
	Kind Kind
	Op   Op // meaningful only when Kind == KindExpr

	Width int // bit width, or TxnWidth
	Const *big.Int // non-nil for OpConst

	ArgNums []int   // pre-crosslink argument value numbers
	Args    []*Stmt // post-crosslink argument pointers

	// Terminator successors.
	SuccLabels []string
	Succs      []*BasicBlock

	// Named-object references (resolved to aggregates by the crosslinker).
	RefName string // port/storage/bypass name, if any
	Port    *Port
	Storage *Storage
	Bypass  *Bypass

	Pos Position

	BB *BasicBlock // owning basic block, set by the crosslinker

	// --- populated during lowering ---

	ValidIn  *predicate.Predicate // DNF predicate, valid before materialization
	ValidOut *predicate.Predicate

	ValidInStmt  *Stmt // materialized boolean-expression statement
	ValidOutStmt *Stmt

	ValidSpine bool // transitively derived from a valid-start statement

	PipeDeps []*Stmt // extra pipe-DAG dependency edges (side-effect DAG)

	Stage *PipeStage // assigned pipeline stage

	DomKillYounger *Stmt // nearest dominating killyounger, for arbitration

	RestartArg    *Stmt  // restart_value_src: the phi input being carried
	RestartTarget *Stmt  // restart_value: paired restart_value_src statement
	BackedgeHdr   *BasicBlock // backedge op's non-CFG pointer to its restart header

	TimingVar    *TimingVar
	TimingOffset int

	Deleted bool // tombstone; never physically removed

	// phi-specific: one input value per predecessor BB, same order as BB.Preds
	PhiLabels []string
	PhiArgs   []*Stmt
}

// Position is a source location used purely for diagnostics.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// IsConstTrue reports whether s is the literal 1-bit constant 1.
func (s *Stmt) IsConstTrue() bool {
	return s != nil && s.Op == OpConst && s.Width == 1 && s.Const != nil && s.Const.Sign() != 0
}

// IsConstFalse reports whether s is the literal 1-bit constant 0.
func (s *Stmt) IsConstFalse() bool {
	return s != nil && s.Op == OpConst && s.Width == 1 && s.Const != nil && s.Const.Sign() == 0
}

func (s *Stmt) String() string {
	return fmt.Sprintf("%%%d", s.Val)
}
