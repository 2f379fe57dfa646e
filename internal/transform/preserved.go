package transform

// PreservedAnalyses is the summary a pass returns to describe which cached
// analysis results remain valid. Each scope (module, function) is in one of
// three states: all preserved, an explicit set preserved, or none preserved.
type PreservedAnalyses struct {
	allModule   bool
	allFunction bool
	moduleSet   map[string]bool
	functionSet map[string]bool
}

// PreservedAll marks every analysis in both scopes as still valid.
func PreservedAll() PreservedAnalyses {
	return PreservedAnalyses{allModule: true, allFunction: true}
}

// PreservedNone invalidates everything; the zero value behaves the same.
func PreservedNone() PreservedAnalyses {
	return PreservedAnalyses{}
}

// PreserveModule marks one module-scoped analysis as preserved.
func (p *PreservedAnalyses) PreserveModule(id string) *PreservedAnalyses {
	if p.moduleSet == nil {
		p.moduleSet = make(map[string]bool)
	}
	p.moduleSet[id] = true
	return p
}

// PreserveFunction marks one function-scoped analysis as preserved.
func (p *PreservedAnalyses) PreserveFunction(id string) *PreservedAnalyses {
	if p.functionSet == nil {
		p.functionSet = make(map[string]bool)
	}
	p.functionSet[id] = true
	return p
}

// PreserveAllModule marks the whole module scope as preserved.
func (p *PreservedAnalyses) PreserveAllModule() *PreservedAnalyses {
	p.allModule = true
	return p
}

// PreserveAllFunction marks the whole function scope as preserved.
func (p *PreservedAnalyses) PreserveAllFunction() *PreservedAnalyses {
	p.allFunction = true
	return p
}

// PreservesAllModule reports whether every module analysis survives.
func (p PreservedAnalyses) PreservesAllModule() bool { return p.allModule }

// PreservesAllFunction reports whether every function analysis survives.
func (p PreservedAnalyses) PreservesAllFunction() bool { return p.allFunction }

// IsModulePreserved reports whether the named module analysis survives.
func (p PreservedAnalyses) IsModulePreserved(id string) bool {
	return p.allModule || p.moduleSet[id]
}

// IsFunctionPreserved reports whether the named function analysis survives.
func (p PreservedAnalyses) IsFunctionPreserved(id string) bool {
	return p.allFunction || p.functionSet[id]
}
