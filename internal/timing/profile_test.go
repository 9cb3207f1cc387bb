package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/autopiper/internal/ir"
)

func TestParseProfile(t *testing.T) {
	data := []byte(`{"timing":{"budget":16,"gates":{"add":1,"mul":9}}}`)
	prof, err := ParseProfile(data)
	require.NoError(t, err)
	assert.Equal(t, 16, prof.Budget)
	assert.Equal(t, 1, prof.Overrides["add"])
	assert.Equal(t, 9, prof.Overrides["mul"])
}

func TestParseProfile_MissingSectionIsNotAnError(t *testing.T) {
	prof, err := ParseProfile([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, prof.Budget)
	assert.Empty(t, prof.Overrides)
}

func TestProfiledModel_OverridesTakePrecedence(t *testing.T) {
	prof := &Profile{Budget: 8, Overrides: map[string]int{"add": 1}}
	m := prof.Model(NewStandardModel())

	assert.Equal(t, 8, m.GatesPerStage())
	assert.Equal(t, 1, m.Delay(expr(ir.OpAdd, 8)))
	// unlisted opcode falls through to the base model's formula.
	assert.Equal(t, NewStandardModel().Delay(expr(ir.OpMul, 8)), m.Delay(expr(ir.OpMul, 8)))
}

func TestProfiledModel_ZeroBudgetFallsBackToBase(t *testing.T) {
	prof := &Profile{Overrides: map[string]int{}}
	m := prof.Model(NewStandardModel())
	assert.Equal(t, NewStandardModel().GatesPerStage(), m.GatesPerStage())
}
