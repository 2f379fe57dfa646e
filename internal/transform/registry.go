package transform

import (
	"viper/internal/ir"
)

// Pass registration. Passes come in two kinds: module passes see the whole
// module, function passes are run once per function by the executor. The
// registry stores factories so each pipeline step gets a fresh pass instance.

// ModulePass transforms a whole module.
type ModulePass interface {
	ID() string
	Run(m *ir.Module, am *AnalysisManager) PreservedAnalyses
}

// FunctionPass transforms a single function.
type FunctionPass interface {
	ID() string
	Run(fn *ir.Function, am *AnalysisManager) PreservedAnalyses
}

// ModulePassFunc adapts a callback into a ModulePass.
type ModulePassFunc struct {
	Name string
	Fn   func(*ir.Module, *AnalysisManager) PreservedAnalyses
}

func (p ModulePassFunc) ID() string { return p.Name }

func (p ModulePassFunc) Run(m *ir.Module, am *AnalysisManager) PreservedAnalyses {
	return p.Fn(m, am)
}

// FunctionPassFunc adapts a callback into a FunctionPass.
type FunctionPassFunc struct {
	Name string
	Fn   func(*ir.Function, *AnalysisManager) PreservedAnalyses
}

func (p FunctionPassFunc) ID() string { return p.Name }

func (p FunctionPassFunc) Run(fn *ir.Function, am *AnalysisManager) PreservedAnalyses {
	return p.Fn(fn, am)
}

type passKind uint8

const (
	modulePassKind passKind = iota
	functionPassKind
)

type passFactory struct {
	kind         passKind
	makeModule   func() ModulePass
	makeFunction func() FunctionPass
}

// PassRegistry maps pass ids to factories.
type PassRegistry struct {
	entries map[string]passFactory
}

// NewPassRegistry creates an empty registry.
func NewPassRegistry() *PassRegistry {
	return &PassRegistry{entries: make(map[string]passFactory)}
}

// RegisterModulePass installs a module pass factory.
func (r *PassRegistry) RegisterModulePass(id string, factory func() ModulePass) {
	r.entries[id] = passFactory{kind: modulePassKind, makeModule: factory}
}

// RegisterModulePassFn installs a module pass backed by a callback.
func (r *PassRegistry) RegisterModulePassFn(id string, fn func(*ir.Module, *AnalysisManager) PreservedAnalyses) {
	r.RegisterModulePass(id, func() ModulePass { return ModulePassFunc{Name: id, Fn: fn} })
}

// RegisterModulePassSimple installs a module pass from a plain mutation
// callback; the wrapper reports nothing preserved.
func (r *PassRegistry) RegisterModulePassSimple(id string, fn func(*ir.Module)) {
	r.RegisterModulePassFn(id, func(m *ir.Module, _ *AnalysisManager) PreservedAnalyses {
		fn(m)
		return PreservedNone()
	})
}

// RegisterFunctionPass installs a function pass factory.
func (r *PassRegistry) RegisterFunctionPass(id string, factory func() FunctionPass) {
	r.entries[id] = passFactory{kind: functionPassKind, makeFunction: factory}
}

// RegisterFunctionPassFn installs a function pass backed by a callback.
func (r *PassRegistry) RegisterFunctionPassFn(id string, fn func(*ir.Function, *AnalysisManager) PreservedAnalyses) {
	r.RegisterFunctionPass(id, func() FunctionPass { return FunctionPassFunc{Name: id, Fn: fn} })
}

// RegisterFunctionPassSimple installs a function pass from a plain mutation
// callback; the wrapper reports nothing preserved.
func (r *PassRegistry) RegisterFunctionPassSimple(id string, fn func(*ir.Function)) {
	r.RegisterFunctionPassFn(id, func(fn2 *ir.Function, _ *AnalysisManager) PreservedAnalyses {
		fn(fn2)
		return PreservedNone()
	})
}

// Lookup returns the factory registered under id, or nil.
func (r *PassRegistry) Lookup(id string) *passFactory {
	if f, ok := r.entries[id]; ok {
		return &f
	}
	return nil
}
