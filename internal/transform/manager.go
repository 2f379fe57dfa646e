package transform

import (
	"fmt"

	"viper/internal/ir"
)

// The analysis manager lazily computes and caches analysis results during
// pipeline execution, invalidating them according to the preservation summary
// each pass returns. Results are held as any and asserted back by the typed
// accessors in passmanager.go; cache keys are (analysis id, function), never
// raw instruction references.

// ModuleAnalysisFn computes a module-scoped analysis result.
type ModuleAnalysisFn func(*ir.Module) any

// FunctionAnalysisFn computes a function-scoped analysis result.
type FunctionAnalysisFn func(*ir.Module, *ir.Function) any

// AnalysisRegistry maps analysis ids to their factories.
type AnalysisRegistry struct {
	module   map[string]ModuleAnalysisFn
	function map[string]FunctionAnalysisFn
}

// NewAnalysisRegistry creates an empty registry.
func NewAnalysisRegistry() *AnalysisRegistry {
	return &AnalysisRegistry{
		module:   make(map[string]ModuleAnalysisFn),
		function: make(map[string]FunctionAnalysisFn),
	}
}

// RegisterModuleAnalysis installs a module-scoped factory.
func (r *AnalysisRegistry) RegisterModuleAnalysis(id string, fn ModuleAnalysisFn) {
	r.module[id] = fn
}

// RegisterFunctionAnalysis installs a function-scoped factory.
func (r *AnalysisRegistry) RegisterFunctionAnalysis(id string, fn FunctionAnalysisFn) {
	r.function[id] = fn
}

// AnalysisCounts tracks how many times factories ran, for diagnostics and
// caching tests.
type AnalysisCounts struct {
	ModuleComputations   int
	FunctionComputations int
}

// AnalysisManager serves cached analysis results for one module session.
type AnalysisManager struct {
	module        *ir.Module
	registry      *AnalysisRegistry
	moduleCache   map[string]any
	functionCache map[string]map[*ir.Function]any
	counts        AnalysisCounts
}

// NewAnalysisManager binds a manager to a module and a registry.
func NewAnalysisManager(m *ir.Module, registry *AnalysisRegistry) *AnalysisManager {
	return &AnalysisManager{
		module:        m,
		registry:      registry,
		moduleCache:   make(map[string]any),
		functionCache: make(map[string]map[*ir.Function]any),
	}
}

// Module returns the module this manager operates on.
func (am *AnalysisManager) Module() *ir.Module { return am.module }

// Counts returns a snapshot of factory invocation counts.
func (am *AnalysisManager) Counts() AnalysisCounts { return am.counts }

// ModuleResult returns the cached result for a module analysis, computing it
// on first use. Unknown ids panic: they indicate a wiring bug, not user input.
func (am *AnalysisManager) ModuleResult(id string) any {
	if cached, ok := am.moduleCache[id]; ok {
		return cached
	}
	fn, ok := am.registry.module[id]
	if !ok {
		panic(fmt.Sprintf("transform: unknown module analysis %q", id))
	}
	result := fn(am.module)
	am.moduleCache[id] = result
	am.counts.ModuleComputations++
	return result
}

// FunctionResult returns the cached result for a function analysis,
// computing it on first use.
func (am *AnalysisManager) FunctionResult(id string, fn *ir.Function) any {
	perFn, ok := am.functionCache[id]
	if !ok {
		perFn = make(map[*ir.Function]any)
		am.functionCache[id] = perFn
	}
	if cached, ok := perFn[fn]; ok {
		return cached
	}
	factory, ok := am.registry.function[id]
	if !ok {
		panic(fmt.Sprintf("transform: unknown function analysis %q", id))
	}
	result := factory(am.module, fn)
	perFn[fn] = result
	am.counts.FunctionComputations++
	return result
}

// InvalidateAfterModulePass drops every cache entry the summary does not
// preserve. Function caches for all functions are affected.
func (am *AnalysisManager) InvalidateAfterModulePass(preserved PreservedAnalyses) {
	am.invalidateModuleScope(preserved)
	if preserved.PreservesAllFunction() {
		return
	}
	for id := range am.functionCache {
		if !preserved.IsFunctionPreserved(id) {
			delete(am.functionCache, id)
		}
	}
}

// InvalidateAfterFunctionPass drops module-scope entries globally and
// function-scope entries for the transformed function only.
func (am *AnalysisManager) InvalidateAfterFunctionPass(preserved PreservedAnalyses, fn *ir.Function) {
	am.invalidateModuleScope(preserved)
	if preserved.PreservesAllFunction() {
		return
	}
	for id, perFn := range am.functionCache {
		if !preserved.IsFunctionPreserved(id) {
			delete(perFn, fn)
		}
	}
}

func (am *AnalysisManager) invalidateModuleScope(preserved PreservedAnalyses) {
	if preserved.PreservesAllModule() {
		return
	}
	for id := range am.moduleCache {
		if !preserved.IsModulePreserved(id) {
			delete(am.moduleCache, id)
		}
	}
}
