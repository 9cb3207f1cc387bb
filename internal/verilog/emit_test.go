package verilog

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/autopiper/internal/ir"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "foo_bar", sanitize("foo.bar"))
	assert.Equal(t, "rx_data", sanitize("rx-data"))
	assert.Equal(t, "_", sanitize(""))
	assert.Equal(t, "already_ok_1", sanitize("already_ok_1"))
}

func TestMaxw(t *testing.T) {
	assert.Equal(t, 7, maxw(8))
	assert.Equal(t, 0, maxw(1))
	assert.Equal(t, 0, maxw(0))
	assert.Equal(t, 0, maxw(-1))
}

func TestValName(t *testing.T) {
	s := &ir.Stmt{Val: 3}
	assert.Equal(t, "val3_0", valName(s))

	s.Stage = &ir.PipeStage{Number: 2}
	assert.Equal(t, "val3_2", valName(s))
}

func TestBitsliceHiLo(t *testing.T) {
	hi := &ir.Stmt{Op: ir.OpConst, Const: big.NewInt(7)}
	lo := &ir.Stmt{Op: ir.OpConst, Const: big.NewInt(2)}
	s := &ir.Stmt{Op: ir.OpBitslice, Args: []*ir.Stmt{nil, hi, lo}}

	assert.Equal(t, int64(7), bitsliceHi(s))
	assert.Equal(t, int64(2), bitsliceLo(s))
}

func TestPortAndStorageName_FallsBackToRefName(t *testing.T) {
	s := &ir.Stmt{RefName: "rawname"}
	assert.Equal(t, "rawname", portName(s))
	assert.Equal(t, "rawname", storageName(s))
}
