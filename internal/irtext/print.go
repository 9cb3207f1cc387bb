package irtext

import (
	"bufio"
	"fmt"
	"io"

	"github.com/google/autopiper/internal/ir"
)

var mnemonicByKind = map[ir.Kind]string{
	ir.KindPhi:             "phi",
	ir.KindIf:              "if",
	ir.KindJmp:             "jmp",
	ir.KindPortRead:        "portread",
	ir.KindPortWrite:       "portwrite",
	ir.KindPortExport:      "portexport",
	ir.KindChanRead:        "chanread",
	ir.KindChanWrite:       "chanwrite",
	ir.KindRegRead:         "regread",
	ir.KindRegWrite:        "regwrite",
	ir.KindArrRead:         "arrread",
	ir.KindArrWrite:        "arrwrite",
	ir.KindSpawn:           "spawn",
	ir.KindKill:            "kill",
	ir.KindKillYounger:     "killyounger",
	ir.KindKillIf:          "kill_if",
	ir.KindDone:            "done",
	ir.KindTimingBarrier:   "timing_barrier",
	ir.KindBackedge:        "backedge",
	ir.KindRestartValue:    "restart_value",
	ir.KindRestartValueSrc: "restart_value_src",
}

// Print writes p back out in the textual IR surface syntax, in BB order
// with statements in each BB's own order. It is used by the --print-ir
// and --print-lowered CLI flags, so it must round-trip through Parse for
// any program Parse itself could have produced; statements synthesized by
// lowering passes (backedge, timing, killif, arbiter, spine) that have no
// named mnemonic are rendered under an internal-only name for inspection.
func Print(p *ir.Program, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, bb := range p.BBs {
		if err := printBB(bw, bb); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func printBB(w *bufio.Writer, bb *ir.BasicBlock) error {
	if bb.IsEntry {
		fmt.Fprintf(w, "entry %s:\n", bb.Label)
	} else {
		fmt.Fprintf(w, "%s:\n", bb.Label)
	}
	for _, s := range bb.Stmts {
		if s.Deleted {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s\n", printStmt(s)); err != nil {
			return err
		}
	}
	return nil
}

func printStmt(s *ir.Stmt) string {
	mnemonic, ok := mnemonicByKind[s.Kind]
	if !ok {
		mnemonic = s.Op.String()
	}

	head := fmt.Sprintf("%%%d%s = %s", s.Val, widthAnnotation(s.Width), mnemonic)
	args := printArgs(s)
	if args != "" {
		head += " " + args
	}
	if s.TimingVar != nil {
		head += " @" + s.TimingVar.Name
		if s.TimingOffset != 0 {
			head += fmt.Sprintf("+%d", s.TimingOffset)
		}
	}
	return head
}

func widthAnnotation(w int) string {
	if w == ir.TxnWidth {
		return "[txn]"
	}
	if w == 0 {
		return ""
	}
	return fmt.Sprintf("[%d]", w)
}

func printArgs(s *ir.Stmt) string {
	switch s.Kind {
	case ir.KindPhi:
		out := ""
		for i, label := range s.PhiLabels {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprintf("%s:%s", label, valRef(phiArg(s, i)))
		}
		return out
	case ir.KindIf:
		if len(s.Args) != 1 || len(s.Succs) != 2 {
			return ""
		}
		return fmt.Sprintf("%s %s %s", valRef(s.Args[0]), label(s.Succs[0]), label(s.Succs[1]))
	case ir.KindJmp, ir.KindSpawn:
		if len(s.Succs) != 1 {
			return ""
		}
		return label(s.Succs[0])
	case ir.KindKill, ir.KindKillYounger, ir.KindDone, ir.KindTimingBarrier, ir.KindBackedge,
		ir.KindRestartValue:
		return ""
	case ir.KindKillIf:
		if len(s.Args) != 1 {
			return ""
		}
		return valRef(s.Args[0])
	case ir.KindPortRead, ir.KindChanRead, ir.KindRegRead:
		return quote(s.RefName)
	case ir.KindPortWrite, ir.KindChanWrite, ir.KindRegWrite, ir.KindPortExport:
		if len(s.Args) != 1 {
			return quote(s.RefName)
		}
		return fmt.Sprintf("%s %s", quote(s.RefName), valRef(s.Args[0]))
	case ir.KindArrRead:
		if len(s.Args) != 1 {
			return quote(s.RefName)
		}
		return fmt.Sprintf("%s %s", quote(s.RefName), valRef(s.Args[0]))
	case ir.KindArrWrite:
		if len(s.Args) != 2 {
			return quote(s.RefName)
		}
		return fmt.Sprintf("%s %s %s", quote(s.RefName), valRef(s.Args[0]), valRef(s.Args[1]))
	case ir.KindRestartValueSrc:
		if len(s.Args) != 1 {
			return ""
		}
		return valRef(s.Args[0])
	default: // KindExpr
		out := ""
		if s.Op == ir.OpConst {
			if s.Const != nil {
				out = s.Const.String()
			}
		} else {
			for i, a := range s.Args {
				if i > 0 {
					out += " "
				}
				out += valRef(a)
			}
		}
		if s.RefName != "" {
			if out != "" {
				out += " "
			}
			out += quote(s.RefName)
		}
		return out
	}
}

func phiArg(s *ir.Stmt, i int) *ir.Stmt {
	if i < len(s.PhiArgs) {
		return s.PhiArgs[i]
	}
	if i < len(s.Args) {
		return s.Args[i]
	}
	return nil
}

func valRef(s *ir.Stmt) string {
	if s == nil {
		return "%?"
	}
	return fmt.Sprintf("%%%d", s.Val)
}

func label(bb *ir.BasicBlock) string {
	if bb == nil {
		return "?"
	}
	return bb.Label
}

func quote(name string) string {
	return fmt.Sprintf("%q", name)
}
