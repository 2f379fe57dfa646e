package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/analysis"
	"viper/internal/ir"
	"viper/internal/verify"
)

func runGVNOn(t *testing.T, m *ir.Module, fn *ir.Function) bool {
	t.Helper()
	aa := analysis.NewBasicAA(fn, m, nil)
	return runGVN(fn, domOf(fn), aa)
}

// The redundant-load scenario: the second load of %p sees the value the first
// one produced.
func TestGVNRedundantLoadAcrossBlocks(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  %p = alloca 8
  store i64 %p, 7
  %v1 = load i64 %p
  br ^next(%v1)
next(%x: i64):
  %v2 = load i64 %p
  ret %v2
}
`, "main")

	require.True(t, runGVNOn(t, m, fn))
	require.NoError(t, verify.Module(m))

	assert.Equal(t, 1, countOp(fn, ir.Load), "the second load is eliminated")

	v1ID, _ := fn.FindBlock("entry").Instrs[2].ResultID()
	ret := fn.FindBlock("next").Terminator()
	assert.Equal(t, ir.Temp(v1ID), ret.Operands[0])
}

func TestGVNStoreInvalidatesMayAlias(t *testing.T) {
	m, fn := parseFunction(t, `func @main(%p: ptr, %q: ptr) -> i64 {
entry:
  %v1 = load i64 %p
  store i64 %q, 0
  %v2 = load i64 %p
  %s = add i64 %v1, %v2
  ret %s
}
`, "main")

	runGVNOn(t, m, fn)
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 2, countOp(fn, ir.Load), "%q may alias %p; the reload stays")
}

func TestGVNStoreKeepsNoAliasLoads(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  %a = alloca 8
  %b = alloca 8
  %v1 = load i64 %a
  store i64 %b, 0
  %v2 = load i64 %a
  %s = add i64 %v1, %v2
  ret %s
}
`, "main")

	require.True(t, runGVNOn(t, m, fn))
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 1, countOp(fn, ir.Load), "a NoAlias store does not clobber the table")
}

func TestGVNCallEffects(t *testing.T) {
	src := `func @reader() -> i64 readonly {
entry:
  ret 0
}

func @writer() -> i64 {
entry:
  ret 0
}

func @main(%p: ptr) -> i64 {
entry:
  %v1 = load i64 %p
  %r = call i64 @reader()
  %v2 = load i64 %p
  %w = call i64 @writer()
  %v3 = load i64 %p
  %s1 = add i64 %v1, %v2
  %s2 = add i64 %s1, %v3
  %s3 = add i64 %s2, %r
  %s4 = add i64 %s3, %w
  ret %s4
}
`
	m, fn := parseFunction(t, src, "main")
	require.True(t, runGVNOn(t, m, fn))
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 2, countOp(fn, ir.Load),
		"the Ref-only call preserves availability, the writer clears it")
}

func TestGVNJoinBlocksStartEmpty(t *testing.T) {
	m, fn := parseFunction(t, `func @main(%c: i1, %p: ptr) -> i64 {
entry:
  %v1 = load i64 %p
  cbr %c, ^clobber, ^quiet
clobber:
  store i64 %p, 9
  br ^join
quiet:
  br ^join
join:
  %v2 = load i64 %p
  %s = add i64 %v1, %v2
  ret %s
}
`, "main")

	runGVNOn(t, m, fn)
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 2, countOp(fn, ir.Load),
		"a join reached through a storing sibling cannot reuse the entry load")
}
