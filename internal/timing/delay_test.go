package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/autopiper/internal/ir"
)

func expr(op ir.Op, width int, args ...*ir.Stmt) *ir.Stmt {
	return &ir.Stmt{Kind: ir.KindExpr, Op: op, Width: width, Args: args}
}

func TestStandardModel_Delay(t *testing.T) {
	m := NewStandardModel()

	assert.Equal(t, 0, m.Delay(expr(ir.OpConst, 8)))
	assert.Equal(t, 1, m.Delay(expr(ir.OpAnd, 8)))
	assert.Equal(t, 2, m.Delay(expr(ir.OpXor, 8)))
	assert.Equal(t, 4*3+2, m.Delay(expr(ir.OpAdd, 8))) // log2(8) == 3
	assert.Equal(t, adderDelay(8), m.Delay(expr(ir.OpLt, 8)))

	nonExpr := &ir.Stmt{Kind: ir.KindIf, Op: ir.OpAdd, Width: 8}
	assert.Equal(t, 0, m.Delay(nonExpr))
}

func TestStandardModel_ShiftByConstIsFree(t *testing.T) {
	m := NewStandardModel()
	amount := &ir.Stmt{Kind: ir.KindExpr, Op: ir.OpConst, Width: 4}
	shl := expr(ir.OpShl, 8, nil, amount)
	assert.Equal(t, 0, m.Delay(shl))

	variable := &ir.Stmt{Kind: ir.KindExpr, Op: ir.OpAdd, Width: 4}
	shlVar := expr(ir.OpShl, 8, nil, variable)
	assert.Equal(t, 2*variable.Width, m.Delay(shlVar))
}

func TestStandardModel_GatesPerStage(t *testing.T) {
	assert.Equal(t, 32, NewStandardModel().GatesPerStage())
	assert.Equal(t, 32, StandardModel{}.GatesPerStage())
	assert.Equal(t, 16, StandardModel{Budget: 16}.GatesPerStage())
}

func TestNullModel(t *testing.T) {
	var m Model = NullModel{}
	assert.Equal(t, 1, m.GatesPerStage())
	assert.Equal(t, 0, m.Delay(expr(ir.OpMul, 32)))
}

func TestLog2(t *testing.T) {
	cases := map[int]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 8: 3, 9: 4, 16: 4}
	for w, want := range cases {
		assert.Equal(t, want, log2(w), "log2(%d)", w)
	}
}
