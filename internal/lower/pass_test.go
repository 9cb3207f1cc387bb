package lower

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

func TestFuncPass_Success(t *testing.T) {
	p := funcPass{name: "ok", fn: func(*ir.Program, *diag.Collector) bool { return true }}
	assert.Equal(t, "ok", p.Name())
	assert.NoError(t, p.Run(ir.NewProgram(), diag.NewCollector()))
}

func TestFuncPass_FailsOnFalseReturn(t *testing.T) {
	p := funcPass{name: "bad", fn: func(*ir.Program, *diag.Collector) bool { return false }}
	assert.Error(t, p.Run(ir.NewProgram(), diag.NewCollector()))
}

func TestFuncPass_FailsWhenCollectorHasErrors(t *testing.T) {
	p := funcPass{name: "quiet-fail", fn: func(prog *ir.Program, d *diag.Collector) bool {
		d.Errorf(diag.KindType, ir.Position{}, "bad width")
		return true
	}}
	assert.Error(t, p.Run(ir.NewProgram(), diag.NewCollector()))
}

func TestErrFuncPass_WrapsUnderlyingError(t *testing.T) {
	sentinel := errors.New("duplicate label")
	p := errFuncPass{name: "crosslink", fn: func(*ir.Program, *diag.Collector) error { return sentinel }}
	err := p.Run(ir.NewProgram(), diag.NewCollector())
	assert.ErrorIs(t, err, sentinel)
}

func TestErrFuncPass_Success(t *testing.T) {
	p := errFuncPass{name: "crosslink", fn: func(*ir.Program, *diag.Collector) error { return nil }}
	assert.NoError(t, p.Run(ir.NewProgram(), diag.NewCollector()))
}
