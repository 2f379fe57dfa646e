package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/analysis"
	"viper/internal/interp"
	"viper/internal/ir"
	"viper/internal/verify"
)

func runUnrollOn(t *testing.T, fn *ir.Function) bool {
	t.Helper()
	cfg := analysis.BuildCFG(fn)
	return NewLoopUnroll().Run(fn, cfg, loopInfoOfFn(fn))
}

const countTo4Src = `func @main() -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(0, 0)
loop(%i: i64, %acc: i64):
  %c = scmp_lt %i, 4
  cbr %c, ^body, ^done(%acc)
body:
  %acc2 = add i64 %acc, %i
  %i2 = add i64 %i, 1
  br ^loop(%i2, %acc2)
done(%r: i64):
  ret %r
}
`

func TestLoopUnrollFullyUnrollsCountedLoop(t *testing.T) {
	m, fn := parseFunction(t, countTo4Src, "main")
	before := interp.Run(m)
	require.False(t, before.Trapped)
	require.Equal(t, int64(0+1+2+3), before.Value)

	require.True(t, runUnrollOn(t, fn))
	require.NoError(t, verify.Module(m))

	assert.Nil(t, fn.FindBlock("loop"), "the original loop blocks are gone")
	assert.Nil(t, fn.FindBlock("body"))
	assert.NotNil(t, fn.FindBlock("loop.u0"))
	assert.NotNil(t, fn.FindBlock("loop.u4"), "four iterations plus the final check clone")
	assert.Nil(t, fn.FindBlock("body.u4"), "no body for the exiting check")

	// No back edges remain.
	li := loopInfoOfFn(fn)
	assert.Empty(t, li.Loops)

	after := interp.Run(m)
	require.False(t, after.Trapped)
	assert.Equal(t, before.Value, after.Value)
}

func TestLoopUnrollRespectsTripThreshold(t *testing.T) {
	src := `func @main() -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(0, 0)
loop(%i: i64, %acc: i64):
  %c = scmp_lt %i, 100
  cbr %c, ^body, ^done(%acc)
body:
  %acc2 = add i64 %acc, %i
  %i2 = add i64 %i, 1
  br ^loop(%i2, %acc2)
done(%r: i64):
  ret %r
}
`
	_, fn := parseFunction(t, src, "main")
	assert.False(t, runUnrollOn(t, fn), "trip count 100 exceeds the threshold")
	assert.NotNil(t, fn.FindBlock("loop"))
}

func TestLoopUnrollSkipsUnknownTripCount(t *testing.T) {
	src := `func @main(%n: i64) -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(0)
loop(%i: i64):
  %c = scmp_lt %i, %n
  cbr %c, ^body, ^done
body:
  %i2 = add i64 %i, 1
  br ^loop(%i2)
done:
  ret 0
}
`
	_, fn := parseFunction(t, src, "main")
	assert.False(t, runUnrollOn(t, fn), "the bound is not a literal")
}

func TestLoopUnrollZeroTripLoop(t *testing.T) {
	src := `func @main() -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(9, 0)
loop(%i: i64, %acc: i64):
  %c = scmp_lt %i, 4
  cbr %c, ^body, ^done(%acc)
body:
  %acc2 = add i64 %acc, %i
  %i2 = add i64 %i, 1
  br ^loop(%i2, %acc2)
done(%r: i64):
  ret %r
}
`
	m, fn := parseFunction(t, src, "main")
	require.True(t, runUnrollOn(t, fn))
	require.NoError(t, verify.Module(m))

	result := interp.Run(m)
	require.False(t, result.Trapped)
	assert.Equal(t, int64(0), result.Value, "the body never runs")
}
