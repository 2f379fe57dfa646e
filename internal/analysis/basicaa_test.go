package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/il"
	"viper/internal/ir"
	"viper/internal/rt"
)

func TestAliasRuleCascade(t *testing.T) {
	src := `func @f(%p: ptr noalias, %q: ptr noalias, %r: ptr) -> i64 {
entry:
  %a = alloca 8
  %b = alloca 8
  %v = load i64 %a
  ret %v
}
`
	fn := parseFn(t, src, "f")
	aa := NewBasicAA(fn, nil, nil)

	b := fn.Blocks[0]
	aID, _ := b.Instrs[0].ResultID()
	bID, _ := b.Instrs[1].ResultID()

	// Rule 1: payload equality.
	assert.Equal(t, MustAlias, aa.Alias(ir.Temp(aID), ir.Temp(aID)))
	// Rule 2: distinct allocas.
	assert.Equal(t, NoAlias, aa.Alias(ir.Temp(aID), ir.Temp(bID)))
	// Rule 3: distinct noalias parameters.
	assert.Equal(t, NoAlias, aa.Alias(ir.Temp(0), ir.Temp(1)))
	// A noalias param against a plain pointer stays unknown.
	assert.Equal(t, MayAlias, aa.Alias(ir.Temp(0), ir.Temp(2)))
	// Rule 4: alloca vs global address.
	assert.Equal(t, NoAlias, aa.Alias(ir.Temp(aID), ir.GlobalAddrOf("g")))
	// Fallback.
	assert.Equal(t, MayAlias, aa.Alias(ir.Temp(2), ir.Temp(aID)))
}

func TestAliasGEPRanges(t *testing.T) {
	src := `func @f() -> i64 {
entry:
  %a = alloca 16
  %b = alloca 16
  %p0 = gep %a, 0
  %p8 = gep %a, 8
  %p8b = gep %a, 8
  %q0 = gep %b, 0
  %v = load i64 %p0
  ret %v
}
`
	fn := parseFn(t, src, "f")
	aa := NewBasicAA(fn, nil, nil)
	b := fn.Blocks[0]
	id := func(i int) ir.Value {
		r, ok := b.Instrs[i].ResultID()
		require.True(t, ok)
		return ir.Temp(r)
	}
	p0, p8, p8b, q0 := id(2), id(3), id(4), id(5)

	// Disjoint 8-byte ranges off the same base.
	assert.Equal(t, NoAlias, aa.AliasSized(p0, p8, 8, 8))
	// Same offset, same size.
	assert.Equal(t, MustAlias, aa.AliasSized(p8, p8b, 8, 8))
	// Unknown sizes keep overlapping offsets fuzzy.
	assert.Equal(t, MayAlias, aa.AliasSized(p0, p8, 0, 0))
	// Distinct alloca roots.
	assert.Equal(t, NoAlias, aa.AliasSized(p0, q0, 8, 8))
}

func TestTypeSizeBytes(t *testing.T) {
	assert.Equal(t, uint32(1), TypeSizeBytes(ir.I1))
	assert.Equal(t, uint32(4), TypeSizeBytes(ir.I32))
	assert.Equal(t, uint32(8), TypeSizeBytes(ir.I64))
	assert.Equal(t, uint32(8), TypeSizeBytes(ir.F64))
	assert.Equal(t, uint32(8), TypeSizeBytes(ir.Ptr))
	assert.Equal(t, uint32(0), TypeSizeBytes(ir.Str), "opaque")
}

func TestModRefCascade(t *testing.T) {
	src := `extern @known_pure(i64) -> i64 pure

func @helper() -> i64 pure {
entry:
  ret 1
}

func @f() -> i64 {
entry:
  %a = call i64 @helper()
  %b = call i64 @mystery()
  %c = call i64 @rt_abs_i64(-5)
  %d = call i64 @rt_concat()
  %e = call i64 @attr_only() readonly
  ret %a
}
`
	m, err := il.Parse("test.vil", src)
	require.NoError(t, err)
	fn := m.FindFunction("f")

	sigs := rt.NewTable(
		rt.Signature{Name: "rt_abs_i64", Pure: true},
		rt.Signature{Name: "rt_concat", ReadOnly: true},
	)
	aa := NewBasicAA(fn, m, sigs)

	b := fn.Blocks[0]
	assert.Equal(t, NoModRef, aa.ModRef(&b.Instrs[0]), "module definition is authoritative")
	assert.Equal(t, ModRef, aa.ModRef(&b.Instrs[1]), "unknown callee is worst case")
	assert.Equal(t, NoModRef, aa.ModRef(&b.Instrs[2]), "runtime registry fallback")
	assert.Equal(t, Ref, aa.ModRef(&b.Instrs[3]))
	assert.Equal(t, Ref, aa.ModRef(&b.Instrs[4]), "call-site attribute")

	// Non-call instructions are conservative.
	assert.Equal(t, ModRef, aa.ModRef(&b.Instrs[5]))
}
