package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/analysis"
	"viper/internal/ir"
	"viper/internal/verify"
)

func domOf(fn *ir.Function) *analysis.DomTree {
	cfg := analysis.BuildCFG(fn)
	return analysis.ComputeDominatorTree(fn, cfg)
}

func countOp(fn *ir.Function, op ir.Opcode) int {
	n := 0
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if b.Instrs[i].Op == op {
				n++
			}
		}
	}
	return n
}

func TestEarlyCSECommutativeAcrossBlocks(t *testing.T) {
	m, fn := parseFunction(t, `func @f(%a: i64, %b: i64) -> i64 {
entry:
  %t2 = add i64 %a, %b
  br ^next
next:
  %t3 = add i64 %b, %a
  ret %t3
}
`, "f")

	require.True(t, runEarlyCSE(fn, domOf(fn)))
	require.NoError(t, verify.Module(m))

	assert.Equal(t, 1, countOp(fn, ir.Add), "the dominated swap of the add is gone")

	t2ID, _ := fn.FindBlock("entry").Instrs[0].ResultID()
	ret := fn.FindBlock("next").Terminator()
	require.Equal(t, ir.Ret, ret.Op)
	assert.Equal(t, ir.Temp(t2ID), ret.Operands[0], "the return uses the surviving temp")
}

func TestEarlyCSEDoesNotCrossSiblingScopes(t *testing.T) {
	m, fn := parseFunction(t, `func @f(%c: i1, %a: i64) -> i64 {
entry:
  cbr %c, ^left, ^right
left:
  %x = add i64 %a, 1
  br ^join(%x)
right:
  %y = add i64 %a, 1
  br ^join(%y)
join(%v: i64):
  ret %v
}
`, "f")

	runEarlyCSE(fn, domOf(fn))
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 2, countOp(fn, ir.Add), "siblings do not see each other's expressions")
}

func TestEarlyCSELeavesTrapsAndLoadsAlone(t *testing.T) {
	m, fn := parseFunction(t, `func @f(%a: i64, %p: ptr) -> i64 {
entry:
  %d1 = sdiv.chk0 i64 %a, 3
  %d2 = sdiv.chk0 i64 %a, 3
  %l1 = load i64 %p
  %l2 = load i64 %p
  %s = add i64 %d1, %d2
  %u = add i64 %l1, %l2
  %r = add i64 %s, %u
  ret %r
}
`, "f")

	runEarlyCSE(fn, domOf(fn))
	require.NoError(t, verify.Module(m))
	assert.Equal(t, 2, countOp(fn, ir.SDivChk0), "trapping checks are check-opt's business")
	assert.Equal(t, 2, countOp(fn, ir.Load), "loads are GVN's business")
}

func TestEarlyCSEIsIdempotent(t *testing.T) {
	_, fn := parseFunction(t, `func @f(%a: i64, %b: i64) -> i64 {
entry:
  %x = add i64 %a, %b
  %y = add i64 %b, %a
  %z = mul i64 %x, %y
  ret %z
}
`, "f")

	require.True(t, runEarlyCSE(fn, domOf(fn)))
	assert.False(t, runEarlyCSE(fn, domOf(fn)), "nothing left on the second run")
}

func TestValueKeyNormalization(t *testing.T) {
	a := ir.Instr{Op: ir.Add, Type: ir.I64, Operands: []ir.Value{ir.Temp(1), ir.Temp(2)}}
	a.SetResult(10)
	b := ir.Instr{Op: ir.Add, Type: ir.I64, Operands: []ir.Value{ir.Temp(2), ir.Temp(1)}}
	b.SetResult(11)
	ka, ok := MakeValueKey(&a)
	require.True(t, ok)
	kb, ok := MakeValueKey(&b)
	require.True(t, ok)
	assert.Equal(t, ka, kb, "commutative operands sort into one key")

	sub := ir.Instr{Op: ir.Sub, Type: ir.I64, Operands: []ir.Value{ir.Temp(1), ir.Temp(2)}}
	sub.SetResult(12)
	subSwap := ir.Instr{Op: ir.Sub, Type: ir.I64, Operands: []ir.Value{ir.Temp(2), ir.Temp(1)}}
	subSwap.SetResult(13)
	ks, _ := MakeValueKey(&sub)
	kss, _ := MakeValueKey(&subSwap)
	assert.NotEqual(t, ks, kss, "sub is not commutative")

	// Floats key by bit pattern; the two zeros differ.
	z1 := ir.Instr{Op: ir.FAdd, Type: ir.F64, Operands: []ir.Value{ir.ConstFloat(0), ir.Temp(1)}}
	z1.SetResult(14)
	z2 := ir.Instr{Op: ir.FAdd, Type: ir.F64, Operands: []ir.Value{ir.ConstFloat(negZero()), ir.Temp(1)}}
	z2.SetResult(15)
	k1, _ := MakeValueKey(&z1)
	k2, _ := MakeValueKey(&z2)
	assert.NotEqual(t, k1, k2)

	st := ir.Instr{Op: ir.Store, Type: ir.I64, Operands: []ir.Value{ir.Temp(1), ir.Temp(2)}}
	_, ok = MakeValueKey(&st)
	assert.False(t, ok, "memory ops never get keys")
}

func negZero() float64 {
	z := 0.0
	return -z
}
