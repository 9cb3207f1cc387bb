package irtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/autopiper/internal/crosslink"
	"github.com/google/autopiper/internal/diag"
	"github.com/google/autopiper/internal/ir"
)

const sampleProgram = `entry bb0:
  %1[8] = const 5
  %2[8] = add %1 3
  %3 = if %2 bb1 bb2
bb1:
  %4[8] = portread "in"
  %5 = jmp bb2
bb2:
  %6[8] = phi bb0:%1 bb1:%4
  %7 = portwrite "out" %6
  %8 = done
`

func mustCrosslink(t *testing.T, p *ir.Program) {
	t.Helper()
	err := crosslink.Run(p, diag.NewCollector())
	require.NoError(t, err)
}

func TestParse_BasicProgram(t *testing.T) {
	p, err := Parse("sample.ir", strings.NewReader(sampleProgram))
	require.NoError(t, err)
	require.Len(t, p.BBs, 3)
	mustCrosslink(t, p)

	bb0, ok := p.BBByLabel("bb0")
	require.True(t, ok)
	assert.True(t, bb0.IsEntry)
	require.Len(t, bb0.Stmts, 3)

	constStmt, ok := p.StmtByVal(1)
	require.True(t, ok)
	assert.Equal(t, ir.OpConst, constStmt.Op)
	assert.Equal(t, 1, constStmt.Const.Sign())
	assert.Equal(t, 5, int(constStmt.Const.Int64()))

	addStmt, ok := p.StmtByVal(2)
	require.True(t, ok)
	require.Len(t, addStmt.Args, 2)
	assert.Equal(t, constStmt, addStmt.Args[0])
	// the bare literal "3" is hoisted into its own unscheduled const stmt.
	assert.Equal(t, ir.OpConst, addStmt.Args[1].Op)
	assert.Equal(t, 3, int(addStmt.Args[1].Const.Int64()))
}

func TestParse_HoistedLiteralNotInAnyBB(t *testing.T) {
	p, err := Parse("sample.ir", strings.NewReader(sampleProgram))
	require.NoError(t, err)
	mustCrosslink(t, p)

	addStmt, _ := p.StmtByVal(2)
	hoisted := addStmt.Args[1]
	for _, bb := range p.BBs {
		for _, s := range bb.Stmts {
			assert.NotSame(t, hoisted, s, "hoisted literal must not be scheduled into a BB")
		}
	}
}

func TestParse_PortAndPhi(t *testing.T) {
	p, err := Parse("sample.ir", strings.NewReader(sampleProgram))
	require.NoError(t, err)
	mustCrosslink(t, p)

	port, ok := p.Ports["in"]
	require.True(t, ok)
	assert.Equal(t, "in", port.Name)

	phiStmt, ok := p.StmtByVal(6)
	require.True(t, ok)
	require.Len(t, phiStmt.PhiArgs, 2)
	require.Len(t, phiStmt.PhiLabels, 2)
}

func TestParse_RejectsUnknownMnemonic(t *testing.T) {
	_, err := Parse("bad.ir", strings.NewReader("bb0:\n  %1 = frobnicate %2\n"))
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestPrint_RoundTrips(t *testing.T) {
	p, err := Parse("sample.ir", strings.NewReader(sampleProgram))
	require.NoError(t, err)
	mustCrosslink(t, p)

	var buf strings.Builder
	require.NoError(t, Print(p, &buf))

	p2, err := Parse("roundtrip.ir", strings.NewReader(buf.String()))
	require.NoError(t, err)
	mustCrosslink(t, p2)

	assert.Equal(t, len(p.BBs), len(p2.BBs))
	for _, bb := range p.BBs {
		bb2, ok := p2.BBByLabel(bb.Label)
		require.True(t, ok)
		assert.Equal(t, len(bb.Stmts), len(bb2.Stmts))
	}
}
