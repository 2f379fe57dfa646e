package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/analysis"
	"viper/internal/ir"
	"viper/internal/verify"
)

func runIndVarsOn(t *testing.T, fn *ir.Function) bool {
	t.Helper()
	cfg := analysis.BuildCFG(fn)
	return runIndVarSimplify(fn, cfg, loopInfoOfFn(fn))
}

// Scenario: addr = base + i*8 in the header becomes a loop-carried parameter
// initialized in the preheader and bumped by 8 in the latch; the mul/add pair
// disappears from the header.
func TestIndVarsStrengthReduction(t *testing.T) {
	src := `func @f(%base: i64, %n: i64) -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(0)
loop(%i: i64):
  %off = mul i64 %i, 8
  %addr = add i64 %base, %off
  %c = scmp_lt %i, %n
  cbr %c, ^body(%addr), ^done(%addr)
body(%a1: i64):
  %i2 = add i64 %i, 1
  br ^loop(%i2)
done(%a2: i64):
  ret %a2
}
`
	m, fn := parseFunction(t, src, "f")
	require.True(t, runIndVarsOn(t, fn))
	require.NoError(t, verify.Module(m))

	header := fn.FindBlock("loop")
	require.Len(t, header.Params, 2, "a new loop-carried address parameter")
	addrParam := header.Params[1]

	assert.Equal(t, 0, countOp(fn, ir.Mul)-countMulIn(fn, "loop.preheader"),
		"the header mul is gone; only the preheader init mul remains")
	for i := range header.Instrs {
		assert.NotEqual(t, ir.Mul, header.Instrs[i].Op)
	}

	// Preheader computes base + 0*8 and passes it in.
	pre := fn.FindBlock("loop.preheader")
	preTerm := pre.Terminator()
	require.Len(t, preTerm.BrArgs[0], 2)
	assert.Equal(t, ir.Mul, pre.Instrs[0].Op)
	assert.Equal(t, ir.Add, pre.Instrs[1].Op)

	// Latch bumps the address by stride*step = 8.
	body := fn.FindBlock("body")
	bodyTerm := body.Terminator()
	require.Len(t, bodyTerm.BrArgs[0], 2)
	var bump *ir.Instr
	for i := range body.Instrs {
		if body.Instrs[i].Op == ir.Add {
			if ops := body.Instrs[i].Operands; len(ops) == 2 && ops[0].Equal(ir.Temp(addrParam.ID)) {
				bump = &body.Instrs[i]
			}
		}
	}
	require.NotNil(t, bump, "latch increments the carried address")
	assert.Equal(t, ir.ConstInt(8), bump.Operands[1])

	// Uses of the old address now read the parameter.
	headerTerm := header.Terminator()
	assert.Equal(t, ir.Temp(addrParam.ID), headerTerm.BrArgs[0][0])
	assert.Equal(t, ir.Temp(addrParam.ID), headerTerm.BrArgs[1][0])
}

func countMulIn(fn *ir.Function, label string) int {
	b := fn.FindBlock(label)
	n := 0
	for i := range b.Instrs {
		if b.Instrs[i].Op == ir.Mul {
			n++
		}
	}
	return n
}

func TestIndVarsRequiresCanonicalLoop(t *testing.T) {
	// No preheader: the header has two external predecessors.
	src := `func @f(%g: i1, %base: i64, %n: i64) -> i64 {
entry:
  cbr %g, ^loop(0), ^loop(5)
loop(%i: i64):
  %off = mul i64 %i, 8
  %addr = add i64 %base, %off
  %c = scmp_lt %i, %n
  cbr %c, ^body, ^done
body:
  %i2 = add i64 %i, 1
  br ^loop(%i2)
done:
  ret %addr
}
`
	m, fn := parseFunction(t, src, "f")
	assert.False(t, runIndVarsOn(t, fn))
	require.NoError(t, verify.Module(m))
}

func TestIndVarsIgnoresNonConstantStride(t *testing.T) {
	src := `func @f(%base: i64, %k: i64, %n: i64) -> i64 {
entry:
  br ^loop.preheader
loop.preheader:
  br ^loop(0)
loop(%i: i64):
  %off = mul i64 %i, %k
  %addr = add i64 %base, %off
  %c = scmp_lt %i, %n
  cbr %c, ^body, ^done
body:
  %i2 = add i64 %i, 1
  br ^loop(%i2)
done:
  ret %addr
}
`
	m, fn := parseFunction(t, src, "f")
	assert.False(t, runIndVarsOn(t, fn))
	require.NoError(t, verify.Module(m))
}
