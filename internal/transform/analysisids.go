package transform

// Stable string identifiers for analyses and passes. Pipelines and the
// preservation summaries refer to these, so they are part of the public
// surface of the optimizer.

// Analysis identifiers.
const (
	AnalysisCFG            = "cfg"
	AnalysisDominators     = "dominators"
	AnalysisPostDominators = "post-dominators"
	AnalysisLoopInfo       = "loop-info"
	AnalysisLiveness       = "liveness"
	AnalysisBasicAA        = "basic-aa"
	AnalysisMemorySSA      = "memory-ssa"
)

// Pass identifiers.
const (
	PassSimplifyCFG  = "simplify-cfg"
	PassMem2Reg      = "mem2reg"
	PassConstFold    = "constfold"
	PassPeephole     = "peephole"
	PassDCE          = "dce"
	PassEarlyCSE     = "early-cse"
	PassGVN          = "gvn"
	PassLICM         = "licm"
	PassIndVars      = "indvars"
	PassLoopUnroll   = "loop-unroll"
	PassCheckOpt     = "check-opt"
	PassDSE          = "dse"
	PassInline       = "inline"
	PassLoopSimplify = "loop-simplify"
	PassLateCleanup  = "late-cleanup"
)

// cfgFamily lists the function analyses that stay valid when a pass changes
// instructions but leaves the block graph alone.
var cfgFamily = []string{AnalysisCFG, AnalysisDominators, AnalysisPostDominators, AnalysisLoopInfo}

// preservedCFGFamily is the usual summary for instruction-only transforms.
func preservedCFGFamily() PreservedAnalyses {
	p := PreservedNone()
	p.PreserveAllModule()
	for _, id := range cfgFamily {
		p.PreserveFunction(id)
	}
	return p
}
