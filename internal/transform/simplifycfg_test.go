package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/ir"
	"viper/internal/verify"
)

func TestSimplifyCFGFoldsConstantBranch(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  cbr true, ^yes, ^no
yes:
  ret 1
no:
  ret 2
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	require.NoError(t, verify.Module(m))

	assert.Nil(t, fn.FindBlock("no"), "the untaken arm is unreachable and removed")
	assert.Equal(t, ir.ConstInt(1), fn.Entry().Terminator().Operands[0], "entry merges with the taken arm")
}

func TestSimplifyCFGFoldsConstantSwitch(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  switch.i32 1, ^def, 0 -> ^zero, 1 -> ^one
def:
  ret 9
zero:
  ret 0
one:
  ret 1
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	require.NoError(t, verify.Module(m))
	assert.Equal(t, ir.ConstInt(1), fn.Entry().Terminator().Operands[0])
	assert.Nil(t, fn.FindBlock("def"))
	assert.Nil(t, fn.FindBlock("zero"))
}

func TestSimplifyCFGCollapsesForwarder(t *testing.T) {
	m, fn := parseFunction(t, `func @main(%c: i1) -> i64 {
entry:
  cbr %c, ^fwd(1), ^fwd(2)
fwd(%x: i64):
  br ^sink(%x)
sink(%v: i64):
  ret %v
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	require.NoError(t, verify.Module(m))

	assert.Nil(t, fn.FindBlock("fwd"))
	term := fn.Entry().Terminator()
	require.Equal(t, ir.CBr, term.Op)
	assert.Equal(t, "sink", term.Labels[0])
	assert.Equal(t, "sink", term.Labels[1])
	assert.Equal(t, []ir.Value{ir.ConstInt(1)}, term.BrArgs[0], "forwarder params thread per edge")
	assert.Equal(t, []ir.Value{ir.ConstInt(2)}, term.BrArgs[1])
}

func TestSimplifyCFGMergesStraightLinePairs(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  %a = add i64 1, 2
  br ^mid(%a)
mid(%x: i64):
  %b = mul i64 %x, 3
  br ^tail
tail:
  ret %b
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	require.NoError(t, verify.Module(m))
	assert.Len(t, fn.Blocks, 1, "the whole chain folds into entry")
	assert.Equal(t, ir.Ret, fn.Entry().Terminator().Op)
}

func TestSimplifyCFGRemovesUnreachableBlocks(t *testing.T) {
	m, fn := parseFunction(t, `func @main() -> i64 {
entry:
  ret 0
island:
  br ^island2
island2:
  br ^island
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	require.NoError(t, verify.Module(m))
	assert.Len(t, fn.Blocks, 1)
}

func TestSimplifyCFGIsIdempotent(t *testing.T) {
	_, fn := parseFunction(t, `func @main(%c: i1) -> i64 {
entry:
  cbr %c, ^fwd(1), ^other
fwd(%x: i64):
  br ^sink(%x)
other:
  br ^sink(5)
sink(%v: i64):
  ret %v
}
`, "main")

	require.True(t, runSimplifyCFG(fn))
	snapshot := ir.PrintFunction(fn)
	assert.False(t, runSimplifyCFG(fn))
	assert.Equal(t, snapshot, ir.PrintFunction(fn))
}
