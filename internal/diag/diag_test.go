package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/autopiper/internal/ir"
)

func TestCollector_HasErrors(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.HasErrors())

	c.Warnf(KindType, ir.Position{File: "a.ir", Line: 1}, "width mismatch")
	assert.False(t, c.HasErrors())

	c.Errorf(KindSchedule, ir.Position{File: "a.ir", Line: 2}, "cycle budget exceeded")
	assert.True(t, c.HasErrors())
}

func TestCollector_RateLimitsRepeatedWarnings(t *testing.T) {
	c := NewCollector()
	pos := ir.Position{File: "a.ir", Line: 7}
	for i := 0; i < 10; i++ {
		c.Warnf(KindLowering, pos, "repeated warning %d", i)
	}
	require.Len(t, c.Items(), 3, "burst of 3 with no refill")
}

func TestCollector_NeverRateLimitsErrors(t *testing.T) {
	c := NewCollector()
	pos := ir.Position{File: "a.ir", Line: 7}
	for i := 0; i < 10; i++ {
		c.Errorf(KindLowering, pos, "error %d", i)
	}
	assert.Len(t, c.Items(), 10)
}

func TestCollector_WriteTo(t *testing.T) {
	c := NewCollector()
	c.Errorf(KindParse, ir.Position{File: "b.ir", Line: 3}, "unexpected token")

	var buf strings.Builder
	c.WriteTo(&buf)
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "unexpected token")
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "Info", Info.String())
	assert.Equal(t, "Warning", Warning.String())
	assert.Equal(t, "Error", Error.String())
}
