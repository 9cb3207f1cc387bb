// Package verilog walks a scheduled pipe's per-stage statement lists and
// emits synchronous Verilog: one module per pipe, combinational assigns for
// pure values, pipereg chains for values crossing stage boundaries, and
// clocked always blocks for register/array writes (spec.md §4.12).
package verilog

import (
	"fmt"
	"io"
	"math/big"
	"sort"

	"github.com/valyala/bytebufferpool"

	"github.com/google/autopiper/internal/ir"
)

// EmitProgram writes one module per pipe of every PipeSys in p to w.
func EmitProgram(p *ir.Program, w io.Writer) error {
	for _, sys := range p.PipeSyses {
		for _, pipe := range sys.Pipes {
			if err := EmitPipe(pipe, w); err != nil {
				return fmt.Errorf("pipe %s: %w", pipe.Sys.Name, err)
			}
		}
	}
	return nil
}

// EmitPipe renders one pipe as a single Verilog module.
func EmitPipe(pipe *ir.Pipe, w io.Writer) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	e := &emitter{buf: buf, regStage: make(map[*ir.Stmt]map[int]string)}
	if err := e.emitPipe(pipe); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

type emitter struct {
	buf          *bytebufferpool.ByteBuffer
	regStage     map[*ir.Stmt]map[int]string // stmt -> stage -> pipereg output wire
	piperegCount int
}

func (e *emitter) emitPipe(pipe *ir.Pipe) error {
	name := sanitize(fmt.Sprintf("%s_%s", pipe.Sys.Name, entryLabel(pipe)))

	fmt.Fprintf(e.buf, "module %s (\n", name)
	fmt.Fprintf(e.buf, "    input wire clock,\n    input wire reset")
	for _, port := range exportedPorts(pipe) {
		fmt.Fprintf(e.buf, ",\n    output wire [%d:0] %s", maxw(port.Width), sanitize(port.Name))
	}
	fmt.Fprintf(e.buf, "\n);\n\n")

	for _, st := range storageIn(pipe) {
		if st.IsRegister() {
			fmt.Fprintf(e.buf, "  reg [%d:0] %s;\n", maxw(st.DataWidth), sanitize(st.Name))
		} else {
			fmt.Fprintf(e.buf, "  reg [%d:0] %s [%d:0];\n", maxw(st.DataWidth), sanitize(st.Name), st.ArraySize-1)
		}
	}
	fmt.Fprintln(e.buf)

	for _, st := range pipe.Stages {
		if err := e.emitStage(pipe, st); err != nil {
			return err
		}
	}

	for _, port := range exportedPorts(pipe) {
		for _, exp := range port.Exports {
			if len(exp.Args) == 0 || exp.Args[0] == nil {
				continue
			}
			fmt.Fprintf(e.buf, "  assign %s = %s;\n", sanitize(port.Name), e.ref(exp.Args[0], stageOf(exp)))
		}
	}

	fmt.Fprintf(e.buf, "\nendmodule\n\n")
	return nil
}

func (e *emitter) emitStage(pipe *ir.Pipe, st *ir.PipeStage) error {
	fmt.Fprintf(e.buf, "  // stage %d\n", st.Number)

	if st.Kill != nil {
		fmt.Fprintf(e.buf, "  wire stage%d_kill = %s;\n", st.Number, e.ref(st.Kill, st.Number))
	}
	if st.Stall != nil {
		fmt.Fprintf(e.buf, "  wire stage%d_stall = %s;\n", st.Number, e.ref(st.Stall, st.Number))
	}

	for _, s := range st.Stmts {
		if s.Deleted {
			continue
		}
		switch s.Kind {
		case ir.KindPhi, ir.KindIf, ir.KindJmp:
			return fmt.Errorf("stage %d: %s statement %%%d survived to emission", st.Number, s.Kind, s.Val)
		case ir.KindExpr:
			fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s;\n", maxw(s.Width), valName(s), e.exprOf(s, st.Number))
		case ir.KindPortRead:
			fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s;\n", maxw(s.Width), valName(s), sanitize(portName(s)))
		case ir.KindRegRead:
			fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s;\n", maxw(s.Width), valName(s), sanitize(storageName(s)))
		case ir.KindArrRead:
			idx := e.ref(arg(s, 0), st.Number)
			fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s[%s];\n", maxw(s.Width), valName(s), sanitize(storageName(s)), idx)
		case ir.KindRegWrite:
			e.emitWrite(st, sanitize(storageName(s)), arg(s, len(s.Args)-1), s)
		case ir.KindArrWrite:
			e.emitArrWrite(st, sanitize(storageName(s)), s)
		case ir.KindRestartValueSrc:
			fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s;\n", maxw(s.Width), valName(s), e.ref(arg(s, 0), st.Number))
		case ir.KindRestartValue:
			if s.RestartTarget != nil {
				src := e.ref(s.RestartTarget, stageOf(s.RestartTarget)+1)
				fmt.Fprintf(e.buf, "  wire [%d:0] %s = %s;\n", maxw(s.Width), valName(s), src)
			} else {
				fmt.Fprintf(e.buf, "  wire [%d:0] %s = %d'h%s;\n", maxw(s.Width), valName(s), maxw(s.Width)+1, allOnesHex(s.Width))
			}
		default:
			// side-effect-only ops (spawn, kill, killyounger, kill_if,
			// timing_barrier, backedge, port writes to unexported ports)
			// contribute nothing directly; their effect was absorbed into
			// valid-signal routing by earlier passes.
		}
	}
	fmt.Fprintln(e.buf)
	return nil
}

func (e *emitter) emitWrite(st *ir.PipeStage, target string, data *ir.Stmt, s *ir.Stmt) {
	if data == nil {
		return
	}
	fmt.Fprintf(e.buf, "  always @(negedge clock) begin\n")
	fmt.Fprintf(e.buf, "    if (%s) %s <= %s;\n", e.validOf(s, st.Number), target, e.ref(data, st.Number))
	fmt.Fprintf(e.buf, "  end\n")
}

func (e *emitter) emitArrWrite(st *ir.PipeStage, target string, s *ir.Stmt) {
	if len(s.Args) < 2 {
		return
	}
	idx := e.ref(arg(s, 0), st.Number)
	data := e.ref(arg(s, 1), st.Number)
	fmt.Fprintf(e.buf, "  always @(negedge clock) begin\n")
	fmt.Fprintf(e.buf, "    if (%s) %s[%s] <= %s;\n", e.validOf(s, st.Number), target, idx, data)
	fmt.Fprintf(e.buf, "  end\n")
}

func (e *emitter) validOf(s *ir.Stmt, atStage int) string {
	if s.ValidInStmt == nil {
		return "1'b1"
	}
	return e.ref(s.ValidInStmt, atStage)
}

func (e *emitter) exprOf(s *ir.Stmt, atStage int) string {
	a := func(i int) string { return e.ref(arg(s, i), atStage) }
	switch s.Op {
	case ir.OpConst:
		if s.Const == nil {
			return "'0"
		}
		return fmt.Sprintf("%d'd%s", maxw(s.Width)+1, s.Const.String())
	case ir.OpAdd:
		return a(0) + " + " + a(1)
	case ir.OpSub:
		return a(0) + " - " + a(1)
	case ir.OpAnd:
		return a(0) + " & " + a(1)
	case ir.OpOr:
		return a(0) + " | " + a(1)
	case ir.OpXor:
		return a(0) + " ^ " + a(1)
	case ir.OpNot:
		return "~" + a(0)
	case ir.OpShl:
		return a(0) + " << " + a(1)
	case ir.OpShr:
		return a(0) + " >> " + a(1)
	case ir.OpMul:
		return a(0) + " * " + a(1)
	case ir.OpDiv:
		return a(0) + " / " + a(1)
	case ir.OpRem:
		return a(0) + " % " + a(1)
	case ir.OpConcat:
		return "{" + a(0) + ", " + a(1) + "}"
	case ir.OpBitslice:
		return fmt.Sprintf("%s[%d:%d]", a(0), bitsliceHi(s), bitsliceLo(s))
	case ir.OpSelect:
		return a(0) + " ? " + a(1) + " : " + a(2)
	case ir.OpEq:
		return a(0) + " == " + a(1)
	case ir.OpNe:
		return a(0) + " != " + a(1)
	case ir.OpLt:
		return a(0) + " < " + a(1)
	case ir.OpLe:
		return a(0) + " <= " + a(1)
	case ir.OpGt:
		return a(0) + " > " + a(1)
	case ir.OpGe:
		return a(0) + " >= " + a(1)
	default:
		return "1'bx"
	}
}

func bitsliceHi(s *ir.Stmt) int64 {
	if len(s.Args) < 3 || s.Args[1] == nil || s.Args[1].Const == nil {
		return 0
	}
	return s.Args[1].Const.Int64()
}

func bitsliceLo(s *ir.Stmt) int64 {
	if len(s.Args) < 3 || s.Args[2] == nil || s.Args[2].Const == nil {
		return 0
	}
	return s.Args[2].Const.Int64()
}

// ref resolves s's value as seen from atStage: its own wire name if atStage
// is its producing stage or earlier, otherwise the output of a pipereg
// chain carrying it forward.
func (e *emitter) ref(s *ir.Stmt, atStage int) string {
	if s == nil {
		return "1'b0"
	}
	prod := stageOf(s)
	if atStage <= prod {
		return valName(s)
	}

	if names, ok := e.regStage[s]; ok {
		if n, ok2 := names[atStage]; ok2 {
			return n
		}
	}

	cur := valName(s)
	curStage := prod
	if e.regStage[s] == nil {
		e.regStage[s] = make(map[int]string)
	}
	for curStage < atStage {
		next := curStage + 1
		e.piperegCount++
		dst := fmt.Sprintf("val%d_preg%d", s.Val, e.piperegCount)
		fmt.Fprintf(e.buf, "  wire [%d:0] %s;\n", maxw(s.Width), dst)
		fmt.Fprintf(e.buf, "  pipereg #(.WIDTH(%d)) preg_%d (.clock(clock), .reset(reset), .hold(stage%d_stall), .valid(~stage%d_kill), .src(%s), .dst(%s));\n",
			maxw(s.Width)+1, e.piperegCount, curStage, curStage, cur, dst)
		cur = dst
		curStage = next
		e.regStage[s][curStage] = cur
	}
	return cur
}

// allOnesHex returns the all-ones bit pattern for width as a hex literal,
// the reset value for a restart_value with no paired restart_value_src
// (spec.md's "no restart source" edge case: a loop-carried phi that is
// never actually overwritten around the back edge).
func allOnesHex(width int) string {
	w := width
	if w <= 0 {
		w = 1
	}
	n := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(w)), big.NewInt(1))
	return n.Text(16)
}

func stageOf(s *ir.Stmt) int {
	if s.Stage == nil {
		return 0
	}
	return s.Stage.Number
}

func valName(s *ir.Stmt) string {
	return fmt.Sprintf("val%d_%d", s.Val, stageOf(s))
}

func arg(s *ir.Stmt, i int) *ir.Stmt {
	if i < 0 || i >= len(s.Args) {
		return nil
	}
	return s.Args[i]
}

func maxw(w int) int {
	if w <= 0 {
		return 0
	}
	return w - 1
}

func portName(s *ir.Stmt) string {
	if s.Port != nil {
		return s.Port.Name
	}
	return s.RefName
}

func storageName(s *ir.Stmt) string {
	if s.Storage != nil {
		return s.Storage.Name
	}
	return s.RefName
}

func entryLabel(pipe *ir.Pipe) string {
	if pipe.Entry != nil {
		return pipe.Entry.Label
	}
	return "pipe"
}

func exportedPorts(pipe *ir.Pipe) []*ir.Port {
	seen := make(map[*ir.Port]bool)
	var out []*ir.Port
	for _, bb := range pipe.BBs {
		if bb.Pipe != pipe {
			continue
		}
		for _, s := range bb.Stmts {
			if s.Kind == ir.KindPortExport && s.Port != nil && !seen[s.Port] {
				seen[s.Port] = true
				out = append(out, s.Port)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func storageIn(pipe *ir.Pipe) []*ir.Storage {
	seen := make(map[*ir.Storage]bool)
	var out []*ir.Storage
	for _, bb := range pipe.BBs {
		for _, s := range bb.Stmts {
			if s.Storage != nil && !seen[s.Storage] {
				seen[s.Storage] = true
				out = append(out, s.Storage)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
