// Package crosslink resolves the textual-reference form of a parsed IR
// program (argument value numbers, successor labels, named port/storage/
// bypass references) into direct pointers, and groups same-name statements
// into the aggregate IRPort/IRStorage/IRBypass objects (spec.md §4.2).
package crosslink

import (
	"errors"
	"fmt"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

var (
	ErrDuplicateLabel = errors.New("duplicate BB label")
	ErrDuplicateVal   = errors.New("duplicate value number")
	ErrUnknownVal     = errors.New("unknown value reference")
	ErrUnknownLabel   = errors.New("unknown BB target")
	ErrEmptyName      = errors.New("empty port/storage/bypass name")
	ErrMultiStartEnd  = errors.New("multiple start/end on one bypass")
)

// Run crosslinks p in place. If p.Crosslinked is already true, it is a
// no-op (spec.md §4.2's idempotence requirement, exercised when the
// frontend hands the backend an already-crosslinked IR).
func Run(p *ir.Program, d *diag.Collector) error {
	if p.Crosslinked {
		return nil
	}

	if err := linkBBs(p, d); err != nil {
		return err
	}
	if err := linkValues(p, d); err != nil {
		return err
	}
	resolveArgsAndSuccs(p, d)
	groupNamed(p, d)

	p.Crosslinked = true
	return nil
}

func linkBBs(p *ir.Program, d *diag.Collector) error {
	seen := make(map[string]bool, len(p.BBs))
	bbs := p.BBs
	p.BBs = make([]*ir.BasicBlock, 0, len(bbs))
	for _, bb := range bbs {
		if seen[bb.Label] {
			d.Errorf(diag.KindCrosslink, ir.Position{}, "%v: %s", ErrDuplicateLabel, bb.Label)
			return fmt.Errorf("%w: %s", ErrDuplicateLabel, bb.Label)
		}
		seen[bb.Label] = true
		p.AddBB(bb)
		if bb.IsEntry {
			p.Entries = append(p.Entries, bb)
		}
		for _, s := range bb.Stmts {
			s.BB = bb
		}
	}
	return nil
}

func linkValues(p *ir.Program, d *diag.Collector) error {
	maxVal := 0
	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			if _, exists := p.StmtByVal(s.Val); exists {
				d.Errorf(diag.KindCrosslink, s.Pos, "%v: %%%d", ErrDuplicateVal, s.Val)
				return fmt.Errorf("%w: %%%d", ErrDuplicateVal, s.Val)
			}
			p.BindStmt(s)
			if s.Val > maxVal {
				maxVal = s.Val
			}
		}
	}
	p.Reserve(maxVal + 1)
	return nil
}

func resolveArgsAndSuccs(p *ir.Program, d *diag.Collector) {
	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			s.Args = make([]*ir.Stmt, len(s.ArgNums))
			for i, num := range s.ArgNums {
				arg, ok := p.StmtByVal(num)
				if !ok {
					d.Errorf(diag.KindCrosslink, s.Pos, "%v: %%%d", ErrUnknownVal, num)
					continue
				}
				s.Args[i] = arg
			}

			s.Succs = make([]*ir.BasicBlock, len(s.SuccLabels))
			for i, label := range s.SuccLabels {
				target, ok := p.BBByLabel(label)
				if !ok {
					d.Errorf(diag.KindCrosslink, s.Pos, "%v: %s", ErrUnknownLabel, label)
					continue
				}
				s.Succs[i] = target
			}

			if s.Kind == ir.KindPhi {
				s.PhiArgs = make([]*ir.Stmt, len(s.PhiLabels))
				for i := range s.PhiLabels {
					if i < len(s.Args) {
						s.PhiArgs[i] = s.Args[i]
					}
				}
			}
		}
	}
}

// groupNamed builds IRPort/IRStorage/IRBypass aggregates from every
// statement carrying a RefName, classifying writer/reader/exporter roles
// and inferring PORT vs CHAN from opcode.
func groupNamed(p *ir.Program, d *diag.Collector) {
	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			if s.RefName == "" {
				continue
			}
			switch s.Kind {
			case ir.KindPortRead, ir.KindPortWrite, ir.KindPortExport:
				groupPort(p, d, s)
			case ir.KindChanRead, ir.KindChanWrite:
				groupPort(p, d, s)
			case ir.KindRegRead, ir.KindRegWrite, ir.KindArrRead, ir.KindArrWrite:
				groupStorage(p, d, s)
			default:
				groupBypass(p, d, s)
			}
		}
	}
}

func groupPort(p *ir.Program, d *diag.Collector, s *ir.Stmt) {
	if s.RefName == "" {
		d.Errorf(diag.KindCrosslink, s.Pos, "%v", ErrEmptyName)
		return
	}
	port, ok := p.Ports[s.RefName]
	if !ok {
		kind := ir.PortKindPort
		if s.Kind == ir.KindChanRead || s.Kind == ir.KindChanWrite {
			kind = ir.PortKindChan
		}
		port = &ir.Port{Name: s.RefName, Kind: kind}
		p.Ports[s.RefName] = port
	}
	s.Port = port
	switch s.Kind {
	case ir.KindPortWrite, ir.KindChanWrite:
		port.Writers = append(port.Writers, s)
	case ir.KindPortRead, ir.KindChanRead:
		port.Readers = append(port.Readers, s)
	case ir.KindPortExport:
		port.Exported = true
		port.Exports = append(port.Exports, s)
	}
}

func groupStorage(p *ir.Program, d *diag.Collector, s *ir.Stmt) {
	if s.RefName == "" {
		d.Errorf(diag.KindCrosslink, s.Pos, "%v", ErrEmptyName)
		return
	}
	st, ok := p.Storage[s.RefName]
	if !ok {
		st = &ir.Storage{Name: s.RefName}
		p.Storage[s.RefName] = st
	}
	s.Storage = st
	switch s.Kind {
	case ir.KindRegWrite, ir.KindArrWrite:
		st.Writers = append(st.Writers, s)
	case ir.KindRegRead, ir.KindArrRead:
		st.Readers = append(st.Readers, s)
	}
}

func groupBypass(p *ir.Program, d *diag.Collector, s *ir.Stmt) {
	if s.RefName == "" {
		d.Errorf(diag.KindCrosslink, s.Pos, "%v", ErrEmptyName)
		return
	}
	bp, ok := p.Bypasses[s.RefName]
	if !ok {
		bp = &ir.Bypass{Name: s.RefName}
		p.Bypasses[s.RefName] = bp
	}
	s.Bypass = bp

	switch {
	case s.RefName != "" && isBypassStart(s):
		if bp.Start != nil {
			d.Errorf(diag.KindCrosslink, s.Pos, "%v: %s", ErrMultiStartEnd, s.RefName)
			return
		}
		bp.Start = s
	case isBypassEnd(s):
		if bp.End != nil {
			d.Errorf(diag.KindCrosslink, s.Pos, "%v: %s", ErrMultiStartEnd, s.RefName)
			return
		}
		bp.End = s
	default:
		bp.Writes = append(bp.Writes, s)
	}
}

// isBypassStart/isBypassEnd classify by the RefName suffix convention used
// by the textual IR grammar's bypass statements ("name.start"/"name.end"),
// resolved here rather than in the parser so the crosslinker is the single
// place that understands bypass grouping.
func isBypassStart(s *ir.Stmt) bool { return hasSuffix(s.RefName, ".start") }
func isBypassEnd(s *ir.Stmt) bool   { return hasSuffix(s.RefName, ".end") }

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}
