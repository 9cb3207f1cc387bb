package timing

import (
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/google/autopiper/internal/ir"
)

// Profile overrides a handful of StandardModel's per-opcode gate delays and
// its stage budget, loaded from the "timing" section of a --config JSON
// file. Unlisted opcodes keep StandardModel's formula.
type Profile struct {
	Budget    int
	Overrides map[string]int
}

// ParseProfile scans data with jsonparser rather than unmarshaling into a
// struct: a timing-profile file is a flat, potentially large table of
// opcode->delay overrides, and a full struct decode would force every key
// through reflection just to read a handful of ints.
func ParseProfile(data []byte) (*Profile, error) {
	prof := &Profile{Overrides: make(map[string]int)}

	if budget, err := jsonparser.GetInt(data, "timing", "budget"); err == nil {
		prof.Budget = int(budget)
	} else if err != jsonparser.KeyPathNotFoundError {
		return nil, fmt.Errorf("timing.budget: %w", err)
	}

	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, offset int) error {
		if dataType != jsonparser.Number {
			return fmt.Errorf("timing.gates.%s: expected a number", key)
		}
		n, perr := jsonparser.ParseInt(value)
		if perr != nil {
			return fmt.Errorf("timing.gates.%s: %w", key, perr)
		}
		prof.Overrides[string(key)] = int(n)
		return nil
	}, "timing", "gates")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, err
	}

	return prof, nil
}

// Model wraps base, applying prof's per-opcode overrides and budget.
func (prof *Profile) Model(base Model) Model {
	return &profiledModel{base: base, prof: prof}
}

type profiledModel struct {
	base Model
	prof *Profile
}

func (m *profiledModel) GatesPerStage() int {
	if m.prof.Budget > 0 {
		return m.prof.Budget
	}
	return m.base.GatesPerStage()
}

func (m *profiledModel) Delay(s *ir.Stmt) int {
	if s != nil && s.Kind == ir.KindExpr {
		if n, ok := m.prof.Overrides[s.Op.String()]; ok {
			return n
		}
	}
	return m.base.Delay(s)
}
