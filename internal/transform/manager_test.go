package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/il"
	"viper/internal/ir"
)

func parseModule(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := il.Parse("test.vil", src)
	require.NoError(t, err)
	return m
}

func parseFunction(t *testing.T, src, name string) (*ir.Module, *ir.Function) {
	t.Helper()
	m := parseModule(t, src)
	fn := m.FindFunction(name)
	require.NotNil(t, fn)
	return m, fn
}

const trivialSrc = `func @main() -> i64 {
entry:
  ret 0
}
`

func TestAnalysisManagerCachesResults(t *testing.T) {
	m, fn := parseFunction(t, trivialSrc, "main")

	reg := NewAnalysisRegistry()
	calls := 0
	reg.RegisterFunctionAnalysis("probe", func(_ *ir.Module, _ *ir.Function) any {
		calls++
		return calls
	})
	reg.RegisterModuleAnalysis("mprobe", func(_ *ir.Module) any { return "module" })

	am := NewAnalysisManager(m, reg)
	assert.Equal(t, 1, am.FunctionResult("probe", fn))
	assert.Equal(t, 1, am.FunctionResult("probe", fn), "second request hits the cache")
	assert.Equal(t, 1, calls)
	assert.Equal(t, "module", am.ModuleResult("mprobe"))

	counts := am.Counts()
	assert.Equal(t, 1, counts.FunctionComputations)
	assert.Equal(t, 1, counts.ModuleComputations)
}

func TestInvalidationRespectsPreservation(t *testing.T) {
	m, fn := parseFunction(t, trivialSrc, "main")

	reg := NewAnalysisRegistry()
	calls := map[string]int{}
	for _, id := range []string{"a", "b"} {
		id := id
		reg.RegisterFunctionAnalysis(id, func(_ *ir.Module, _ *ir.Function) any {
			calls[id]++
			return calls[id]
		})
	}

	am := NewAnalysisManager(m, reg)
	am.FunctionResult("a", fn)
	am.FunctionResult("b", fn)

	preserved := PreservedNone()
	preserved.PreserveFunction("a")
	am.InvalidateAfterFunctionPass(preserved, fn)

	am.FunctionResult("a", fn)
	am.FunctionResult("b", fn)
	assert.Equal(t, 1, calls["a"], "preserved analysis survived")
	assert.Equal(t, 2, calls["b"], "unpreserved analysis recomputed")
}

func TestInvalidateAllAndNothing(t *testing.T) {
	m, fn := parseFunction(t, trivialSrc, "main")

	reg := NewAnalysisRegistry()
	calls := 0
	reg.RegisterFunctionAnalysis("x", func(_ *ir.Module, _ *ir.Function) any {
		calls++
		return calls
	})
	am := NewAnalysisManager(m, reg)

	am.FunctionResult("x", fn)
	am.InvalidateAfterFunctionPass(PreservedAll(), fn)
	am.FunctionResult("x", fn)
	assert.Equal(t, 1, calls)

	am.InvalidateAfterFunctionPass(PreservedNone(), fn)
	am.FunctionResult("x", fn)
	assert.Equal(t, 2, calls)
}

func TestFunctionInvalidationIsPerFunction(t *testing.T) {
	src := trivialSrc + `
func @other() -> i64 {
entry:
  ret 1
}
`
	m := parseModule(t, src)
	fn1 := m.FindFunction("main")
	fn2 := m.FindFunction("other")

	reg := NewAnalysisRegistry()
	calls := 0
	reg.RegisterFunctionAnalysis("x", func(_ *ir.Module, _ *ir.Function) any {
		calls++
		return calls
	})
	am := NewAnalysisManager(m, reg)
	am.FunctionResult("x", fn1)
	am.FunctionResult("x", fn2)

	am.InvalidateAfterFunctionPass(PreservedNone(), fn1)
	am.FunctionResult("x", fn2)
	assert.Equal(t, 2, calls, "fn2's entry survived fn1's invalidation")
	am.FunctionResult("x", fn1)
	assert.Equal(t, 3, calls)
}

func TestPreservedAnalysesStates(t *testing.T) {
	all := PreservedAll()
	assert.True(t, all.PreservesAllModule())
	assert.True(t, all.IsFunctionPreserved("anything"))

	none := PreservedNone()
	assert.False(t, none.PreservesAllModule())
	assert.False(t, none.IsFunctionPreserved("cfg"))

	explicit := PreservedNone()
	explicit.PreserveFunction(AnalysisCFG).PreserveModule("layout")
	assert.True(t, explicit.IsFunctionPreserved(AnalysisCFG))
	assert.False(t, explicit.IsFunctionPreserved(AnalysisLiveness))
	assert.True(t, explicit.IsModulePreserved("layout"))
	assert.False(t, explicit.PreservesAllFunction())
}
