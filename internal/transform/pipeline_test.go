package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viper/internal/ir"
	"viper/internal/verify"
)

func TestExecutorSkipsUnknownPasses(t *testing.T) {
	m := parseModule(t, trivialSrc)
	pm := NewPassManager()
	pm.SetVerifyBetweenPasses(true)

	err := pm.Run(m, []string{"no-such-pass", PassDCE})
	assert.NoError(t, err)
}

func TestCanonicalPipelinesRegistered(t *testing.T) {
	pm := NewPassManager()
	assert.NotNil(t, pm.Pipeline("O1"))
	assert.NotNil(t, pm.Pipeline("O2"))
	assert.Empty(t, pm.Pipeline("O0"), "O0 leaves the module untouched")
	assert.Nil(t, pm.Pipeline("O9"))

	m := parseModule(t, trivialSrc)
	found, err := pm.RunPipeline(m, "O9")
	assert.False(t, found)
	assert.NoError(t, err)
}

func TestPipelinesKeepModulesValid(t *testing.T) {
	src := `func @main() -> i64 {
entry:
  %p = alloca 8
  store i64 %p, 7
  %v = load i64 %p
  %c = scmp_lt %v, 10
  cbr %c, ^then, ^join(%v)
then:
  %w = add i64 %v, 1
  br ^join(%w)
join(%x: i64):
  ret %x
}
`
	for _, pipeline := range []string{"O0", "O1", "O2"} {
		t.Run(pipeline, func(t *testing.T) {
			m := parseModule(t, src)
			pm := NewPassManager()
			pm.SetVerifyBetweenPasses(true)

			found, err := pm.RunPipeline(m, pipeline)
			require.True(t, found)
			require.NoError(t, err)
			assert.NoError(t, verify.Module(m))
		})
	}
}

func TestPipelineIsReentrant(t *testing.T) {
	src := `func @main() -> i64 {
entry:
  %a = add i64 1, 2
  %b = add i64 %a, 3
  ret %b
}
`
	m := parseModule(t, src)
	pm := NewPassManager()
	pm.SetVerifyBetweenPasses(true)

	_, err := pm.RunPipeline(m, "O2")
	require.NoError(t, err)
	first := ir.Print(m)

	_, err = pm.RunPipeline(m, "O2")
	require.NoError(t, err)
	assert.Equal(t, first, ir.Print(m), "second run finds nothing left to do")
}

func TestCustomPassRegistration(t *testing.T) {
	pm := NewPassManager()
	ran := 0
	pm.Passes().RegisterFunctionPassSimple("touch", func(fn *ir.Function) {
		ran++
	})
	pm.Passes().RegisterModulePassFn("mcount", func(m *ir.Module, _ *AnalysisManager) PreservedAnalyses {
		ran += 10
		return PreservedAll()
	})

	m := parseModule(t, trivialSrc)
	require.NoError(t, pm.Run(m, []string{"touch", "mcount"}))
	assert.Equal(t, 11, ran)
}
