package irtext

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/autopiper/internal/ir"
)

// opcode describes one textual mnemonic's IR shape.
type opcode struct {
	kind ir.Kind
	op   ir.Op
}

var opcodes = map[string]opcode{
	"phi":            {kind: ir.KindPhi},
	"if":             {kind: ir.KindIf},
	"jmp":            {kind: ir.KindJmp},
	"portread":       {kind: ir.KindPortRead},
	"portwrite":      {kind: ir.KindPortWrite},
	"portexport":     {kind: ir.KindPortExport},
	"chanread":       {kind: ir.KindChanRead},
	"chanwrite":      {kind: ir.KindChanWrite},
	"regread":        {kind: ir.KindRegRead},
	"regwrite":       {kind: ir.KindRegWrite},
	"arrread":        {kind: ir.KindArrRead},
	"arrwrite":       {kind: ir.KindArrWrite},
	"spawn":          {kind: ir.KindSpawn},
	"kill":           {kind: ir.KindKill},
	"killyounger":    {kind: ir.KindKillYounger},
	"kill_if":        {kind: ir.KindKillIf},
	"done":           {kind: ir.KindDone},
	"timing_barrier": {kind: ir.KindTimingBarrier},
	"const":          {kind: ir.KindExpr, op: ir.OpConst},
	"add":            {kind: ir.KindExpr, op: ir.OpAdd},
	"sub":            {kind: ir.KindExpr, op: ir.OpSub},
	"and":            {kind: ir.KindExpr, op: ir.OpAnd},
	"or":             {kind: ir.KindExpr, op: ir.OpOr},
	"xor":            {kind: ir.KindExpr, op: ir.OpXor},
	"not":            {kind: ir.KindExpr, op: ir.OpNot},
	"shl":            {kind: ir.KindExpr, op: ir.OpShl},
	"shr":            {kind: ir.KindExpr, op: ir.OpShr},
	"mul":            {kind: ir.KindExpr, op: ir.OpMul},
	"div":            {kind: ir.KindExpr, op: ir.OpDiv},
	"rem":            {kind: ir.KindExpr, op: ir.OpRem},
	"bitslice":       {kind: ir.KindExpr, op: ir.OpBitslice},
	"concat":         {kind: ir.KindExpr, op: ir.OpConcat},
	"select":         {kind: ir.KindExpr, op: ir.OpSelect},
	"eq":             {kind: ir.KindExpr, op: ir.OpEq},
	"ne":             {kind: ir.KindExpr, op: ir.OpNe},
	"lt":             {kind: ir.KindExpr, op: ir.OpLt},
	"le":             {kind: ir.KindExpr, op: ir.OpLe},
	"gt":             {kind: ir.KindExpr, op: ir.OpGt},
	"ge":             {kind: ir.KindExpr, op: ir.OpGe},
}

// ParseError reports a malformed line, in the file:line:col form every
// other diagnostic in the compiler uses.
type ParseError struct {
	Pos ir.Position
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Parse reads the textual IR format of spec.md §6 from r, returning a
// program ready for internal/crosslink.Run. file is used only to stamp
// Position.File on synthesized statements and parse errors.
func Parse(file string, r io.Reader) (*ir.Program, error) {
	p := ir.NewProgram()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// Read every line first and reserve the highest declared value number,
	// so a bare literal hoisted by operand never reuses one of them.
	var lines []string
	maxVal := 0
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if toks := tokenize(sc.Text()); len(toks) > 1 {
			if v, _, err := parseHead(toks[0], ir.Position{}); err == nil && v > maxVal {
				maxVal = v
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	p.Reserve(maxVal)

	var cur *ir.BasicBlock
	for i, raw := range lines {
		line := i + 1
		toks := tokenize(raw)
		if len(toks) == 0 {
			continue
		}
		pos := ir.Position{File: file, Line: line}

		if strings.HasSuffix(toks[len(toks)-1], ":") && !strings.HasPrefix(toks[0], "%") {
			bb, err := parseBBHeader(toks, pos)
			if err != nil {
				return nil, err
			}
			cur = bb
			// bb is appended directly, not through p.AddBB: crosslink.Run's
			// linkBBs is the pass that registers labels and rejects
			// duplicates, so the parser only builds the raw BB list.
			p.BBs = append(p.BBs, cur)
			continue
		}

		if cur == nil {
			return nil, &ParseError{Pos: pos, Msg: "statement outside any basic block"}
		}
		s, err := parseStmt(p, toks, pos)
		if err != nil {
			return nil, err
		}
		cur.Stmts = append(cur.Stmts, s)
	}
	return p, nil
}

func parseBBHeader(toks []string, pos ir.Position) (*ir.BasicBlock, error) {
	isEntry := false
	if toks[0] == "entry" {
		isEntry = true
		toks = toks[1:]
	}
	if len(toks) != 1 {
		return nil, &ParseError{Pos: pos, Msg: "malformed basic block header"}
	}
	label := strings.TrimSuffix(toks[0], ":")
	if label == "" {
		return nil, &ParseError{Pos: pos, Msg: "empty basic block label"}
	}
	return &ir.BasicBlock{Label: label, IsEntry: isEntry}, nil
}

func parseStmt(p *ir.Program, toks []string, pos ir.Position) (*ir.Stmt, error) {
	if len(toks) < 3 || toks[1] != "=" {
		return nil, &ParseError{Pos: pos, Msg: "malformed statement, want '%N[width] = opcode args...'"}
	}
	val, width, err := parseHead(toks[0], pos)
	if err != nil {
		return nil, err
	}

	mnemonic := toks[2]
	oc, ok := opcodes[mnemonic]
	if !ok {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unknown opcode %q", mnemonic)}
	}

	rest := toks[3:]
	var timing string
	if n := len(rest); n > 0 && strings.HasPrefix(rest[n-1], "@") {
		timing = rest[n-1]
		rest = rest[:n-1]
	}

	s := &ir.Stmt{Val: val, Kind: oc.kind, Op: oc.op, Width: width, Pos: pos}
	if timing != "" {
		name, offset := parseTiming(timing)
		if name != "" {
			tv, ok := p.TimingVars[name]
			if !ok {
				tv = &ir.TimingVar{Name: name, Stage: -1}
				p.TimingVars[name] = tv
			}
			s.TimingVar, s.TimingOffset = tv, offset
		}
	}

	if err := fillArgs(p, s, mnemonic, rest, pos); err != nil {
		return nil, err
	}
	return s, nil
}

func parseHead(tok string, pos ir.Position) (val, width int, err error) {
	if !strings.HasPrefix(tok, "%") {
		return 0, 0, &ParseError{Pos: pos, Msg: "expected '%valnum', got " + tok}
	}
	tok = tok[1:]
	body := tok
	if i := strings.IndexByte(tok, '['); i >= 0 {
		if !strings.HasSuffix(tok, "]") {
			return 0, 0, &ParseError{Pos: pos, Msg: "malformed width annotation"}
		}
		body = tok[:i]
		wspec := tok[i+1 : len(tok)-1]
		if wspec == "txn" {
			width = ir.TxnWidth
		} else {
			w, werr := strconv.Atoi(wspec)
			if werr != nil {
				return 0, 0, &ParseError{Pos: pos, Msg: "malformed width: " + wspec}
			}
			width = w
		}
	}
	v, err2 := strconv.Atoi(body)
	if err2 != nil {
		return 0, 0, &ParseError{Pos: pos, Msg: "malformed value number: " + body}
	}
	return v, width, nil
}

func parseTiming(tok string) (name string, offset int) {
	tok = strings.TrimPrefix(tok, "@")
	if tok == "" {
		return "", 0
	}
	if i := strings.IndexByte(tok, '+'); i >= 0 {
		name = tok[:i]
		offset, _ = strconv.Atoi(tok[i+1:])
		return name, offset
	}
	return tok, 0
}

// fillArgs dispatches to the per-mnemonic argument shape.
func fillArgs(p *ir.Program, s *ir.Stmt, mnemonic string, args []string, pos ir.Position) error {
	switch mnemonic {
	case "phi":
		for _, a := range args {
			i := strings.IndexByte(a, ':')
			if i < 0 {
				return &ParseError{Pos: pos, Msg: "malformed phi input, want 'label:%val'"}
			}
			label, valTok := a[:i], a[i+1:]
			v, err := operand(p, valTok, pos)
			if err != nil {
				return err
			}
			s.PhiLabels = append(s.PhiLabels, label)
			s.ArgNums = append(s.ArgNums, v)
		}
	case "if":
		if len(args) != 3 {
			return &ParseError{Pos: pos, Msg: "if takes %cond then_label else_label"}
		}
		v, err := operand(p, args[0], pos)
		if err != nil {
			return err
		}
		s.ArgNums = []int{v}
		s.SuccLabels = []string{args[1], args[2]}
	case "jmp", "spawn":
		if len(args) != 1 {
			return &ParseError{Pos: pos, Msg: mnemonic + " takes one label"}
		}
		s.SuccLabels = []string{args[0]}
	case "kill", "killyounger", "done", "timing_barrier":
		// no arguments
	case "kill_if":
		if len(args) != 1 {
			return &ParseError{Pos: pos, Msg: "kill_if takes one %cond"}
		}
		v, err := operand(p, args[0], pos)
		if err != nil {
			return err
		}
		s.ArgNums = []int{v}
	case "portread", "chanread", "regread":
		if len(args) != 1 {
			return &ParseError{Pos: pos, Msg: mnemonic + " takes one \"name\""}
		}
		s.RefName = unquote(args[0])
	case "portwrite", "chanwrite", "regwrite", "portexport":
		if len(args) != 2 {
			return &ParseError{Pos: pos, Msg: mnemonic + " takes \"name\" %val"}
		}
		s.RefName = unquote(args[0])
		v, err := operand(p, args[1], pos)
		if err != nil {
			return err
		}
		s.ArgNums = []int{v}
	case "arrread":
		if len(args) != 2 {
			return &ParseError{Pos: pos, Msg: "arrread takes \"name\" %index"}
		}
		s.RefName = unquote(args[0])
		v, err := operand(p, args[1], pos)
		if err != nil {
			return err
		}
		s.ArgNums = []int{v}
	case "arrwrite":
		if len(args) != 3 {
			return &ParseError{Pos: pos, Msg: "arrwrite takes \"name\" %index %val"}
		}
		s.RefName = unquote(args[0])
		idx, err := operand(p, args[1], pos)
		if err != nil {
			return err
		}
		val, err := operand(p, args[2], pos)
		if err != nil {
			return err
		}
		s.ArgNums = []int{idx, val}
	case "const":
		if len(args) != 1 {
			return &ParseError{Pos: pos, Msg: "const takes one integer literal"}
		}
		n, ok := parseInt(args[0])
		if !ok {
			return &ParseError{Pos: pos, Msg: "malformed integer literal: " + args[0]}
		}
		s.Const = n
	default:
		// every remaining mnemonic is an n-ary expression op. A trailing
		// quoted token names the bypass network this statement belongs to
		// (groupBypass classifies it as start/end/write by the ".start"/
		// ".end" suffix convention on RefName); everything else is an
		// ordinary value operand.
		if n := len(args); n > 0 && strings.HasPrefix(args[n-1], "\"") {
			s.RefName = unquote(args[n-1])
			args = args[:n-1]
		}
		for _, a := range args {
			v, err := operand(p, a, pos)
			if err != nil {
				return err
			}
			s.ArgNums = append(s.ArgNums, v)
		}
	}
	return nil
}

// operand resolves an argument token to a value number: a direct %N
// reference, or a bare integer literal that gets hoisted into a fresh,
// unscheduled const statement bound (but not placed in any BB) so later
// value lookups find it like any other operand.
func operand(p *ir.Program, tok string, pos ir.Position) (int, error) {
	if strings.HasPrefix(tok, "%") {
		v, err := strconv.Atoi(tok[1:])
		if err != nil {
			return 0, &ParseError{Pos: pos, Msg: "malformed value reference: " + tok}
		}
		return v, nil
	}
	n, ok := parseInt(tok)
	if !ok {
		return 0, &ParseError{Pos: pos, Msg: "expected %value or integer literal, got " + tok}
	}
	val := p.AllocVal()
	c := &ir.Stmt{Val: val, Kind: ir.KindExpr, Op: ir.OpConst, Width: ir.TxnWidth, Const: n, Pos: pos}
	p.BindStmt(c)
	return val, nil
}

func parseInt(tok string) (*big.Int, bool) {
	base := 10
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		base = 16
		tok = tok[2:]
	}
	n, ok := new(big.Int).SetString(tok, base)
	return n, ok
}
