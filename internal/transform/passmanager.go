package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
	"viper/internal/rt"
)

// PassManager wires the canonical analyses, passes, and pipelines together.
// Construction registers everything; callers then run named pipelines or
// explicit pass lists. A manager may be reused across modules, and running
// the same pipeline twice over one module is valid.
type PassManager struct {
	passRegistry     *PassRegistry
	analysisRegistry *AnalysisRegistry
	pipelines        map[string][]string
	verifyBetween    bool
	signatures       rt.Signatures
}

// NewPassManager builds a manager with the default runtime signature table.
func NewPassManager() *PassManager {
	return NewPassManagerWith(rt.Default())
}

// NewPassManagerWith builds a manager with an injected runtime signature
// oracle (tests pass mocks).
func NewPassManagerWith(sigs rt.Signatures) *PassManager {
	pm := &PassManager{
		passRegistry:     NewPassRegistry(),
		analysisRegistry: NewAnalysisRegistry(),
		pipelines:        make(map[string][]string),
		signatures:       sigs,
	}
	pm.registerAnalyses()
	pm.registerPasses()
	pm.registerCanonicalPipelines()
	return pm
}

// SetVerifyBetweenPasses toggles inter-pass verification.
func (pm *PassManager) SetVerifyBetweenPasses(enable bool) { pm.verifyBetween = enable }

// Passes exposes the registry for callers that add custom passes.
func (pm *PassManager) Passes() *PassRegistry { return pm.passRegistry }

// Analyses exposes the analysis registry.
func (pm *PassManager) Analyses() *AnalysisRegistry { return pm.analysisRegistry }

// RegisterPipeline associates an id with an ordered pass list.
func (pm *PassManager) RegisterPipeline(id string, passes []string) {
	pm.pipelines[id] = passes
}

// Pipeline returns the pass list registered under id, or nil.
func (pm *PassManager) Pipeline(id string) []string { return pm.pipelines[id] }

// Run executes an explicit pass list over the module.
func (pm *PassManager) Run(m *ir.Module, pipeline []string) error {
	executor := NewPipelineExecutor(pm.passRegistry, pm.analysisRegistry, pm.verifyBetween)
	return executor.Run(m, pipeline)
}

// RunPipeline executes a named pipeline. The bool reports whether the id was
// known; the error carries verification failures.
func (pm *PassManager) RunPipeline(m *ir.Module, id string) (bool, error) {
	pipeline, ok := pm.pipelines[id]
	if !ok {
		return false, nil
	}
	return true, pm.Run(m, pipeline)
}

func (pm *PassManager) registerAnalyses() {
	sigs := pm.signatures
	reg := pm.analysisRegistry

	reg.RegisterFunctionAnalysis(AnalysisCFG, func(_ *ir.Module, fn *ir.Function) any {
		return analysis.BuildCFG(fn)
	})
	reg.RegisterFunctionAnalysis(AnalysisDominators, func(_ *ir.Module, fn *ir.Function) any {
		cfg := analysis.BuildCFG(fn)
		return analysis.ComputeDominatorTree(fn, cfg)
	})
	reg.RegisterFunctionAnalysis(AnalysisPostDominators, func(_ *ir.Module, fn *ir.Function) any {
		cfg := analysis.BuildCFG(fn)
		return analysis.ComputePostDominatorTree(fn, cfg)
	})
	reg.RegisterFunctionAnalysis(AnalysisLoopInfo, func(_ *ir.Module, fn *ir.Function) any {
		cfg := analysis.BuildCFG(fn)
		dom := analysis.ComputeDominatorTree(fn, cfg)
		return analysis.ComputeLoopInfo(fn, cfg, dom)
	})
	reg.RegisterFunctionAnalysis(AnalysisLiveness, func(_ *ir.Module, fn *ir.Function) any {
		cfg := analysis.BuildCFG(fn)
		return analysis.ComputeLiveness(fn, cfg)
	})
	reg.RegisterFunctionAnalysis(AnalysisBasicAA, func(m *ir.Module, fn *ir.Function) any {
		return analysis.NewBasicAA(fn, m, sigs)
	})
	reg.RegisterFunctionAnalysis(AnalysisMemorySSA, func(m *ir.Module, fn *ir.Function) any {
		aa := analysis.NewBasicAA(fn, m, sigs)
		return analysis.ComputeMemorySSA(fn, aa)
	})
}

// Typed accessors over the any-valued cache.

func cfgOf(am *AnalysisManager, fn *ir.Function) *analysis.CFGInfo {
	return am.FunctionResult(AnalysisCFG, fn).(*analysis.CFGInfo)
}

func domTreeOf(am *AnalysisManager, fn *ir.Function) *analysis.DomTree {
	return am.FunctionResult(AnalysisDominators, fn).(*analysis.DomTree)
}

func loopInfoOf(am *AnalysisManager, fn *ir.Function) *analysis.LoopInfo {
	return am.FunctionResult(AnalysisLoopInfo, fn).(*analysis.LoopInfo)
}

func basicAAOf(am *AnalysisManager, fn *ir.Function) *analysis.BasicAA {
	return am.FunctionResult(AnalysisBasicAA, fn).(*analysis.BasicAA)
}

func memorySSAOf(am *AnalysisManager, fn *ir.Function) *analysis.MemorySSA {
	return am.FunctionResult(AnalysisMemorySSA, fn).(*analysis.MemorySSA)
}

func (pm *PassManager) registerPasses() {
	r := pm.passRegistry

	r.RegisterFunctionPassFn(PassSimplifyCFG, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runSimplifyCFG(fn) {
			return PreservedAll()
		}
		return PreservedNone()
	})
	r.RegisterFunctionPassFn(PassMem2Reg, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runMem2Reg(fn, cfgOf(am, fn), domTreeOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassConstFold, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runConstFold(fn) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassPeephole, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runPeephole(fn) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassDCE, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runDCE(fn) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassEarlyCSE, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runEarlyCSE(fn, domTreeOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassGVN, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runGVN(fn, domTreeOf(am, fn), basicAAOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassDSE, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runDSE(fn, basicAAOf(am, fn), memorySSAOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassLoopSimplify, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runLoopSimplify(fn) {
			return PreservedAll()
		}
		return PreservedNone()
	})
	r.RegisterFunctionPassFn(PassLICM, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runLICM(fn, cfgOf(am, fn), loopInfoOf(am, fn), basicAAOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassIndVars, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runIndVarSimplify(fn, cfgOf(am, fn), loopInfoOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterFunctionPassFn(PassLoopUnroll, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		unroll := NewLoopUnroll()
		if !unroll.Run(fn, cfgOf(am, fn), loopInfoOf(am, fn)) {
			return PreservedAll()
		}
		return PreservedNone()
	})
	r.RegisterFunctionPassFn(PassCheckOpt, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runCheckOpt(fn, domTreeOf(am, fn), loopInfoOf(am, fn)) {
			return PreservedAll()
		}
		return preservedCFGFamily()
	})
	r.RegisterModulePassFn(PassInline, func(m *ir.Module, am *AnalysisManager) PreservedAnalyses {
		inliner := NewInliner()
		if !inliner.Run(m) {
			return PreservedAll()
		}
		return PreservedNone()
	})
	r.RegisterFunctionPassFn(PassLateCleanup, func(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
		if !runLateCleanup(fn) {
			return PreservedAll()
		}
		return PreservedNone()
	})
}

func (pm *PassManager) registerCanonicalPipelines() {
	// O0 leaves the module untouched: verification alone decides validity.
	pm.RegisterPipeline("O0", []string{})
	pm.RegisterPipeline("O1", []string{
		PassSimplifyCFG,
		PassMem2Reg,
		PassConstFold,
		PassPeephole,
		PassDCE,
		PassEarlyCSE,
	})
	pm.RegisterPipeline("O2", []string{
		PassSimplifyCFG,
		PassMem2Reg,
		PassConstFold,
		PassPeephole,
		PassDCE,
		PassEarlyCSE,
		PassGVN,
		PassLoopSimplify,
		PassLICM,
		PassIndVars,
		PassLoopUnroll,
		PassCheckOpt,
		PassDSE,
		PassInline,
		PassLateCleanup,
		PassEarlyCSE,
		PassGVN,
		PassDSE,
		PassDCE,
	})
}
