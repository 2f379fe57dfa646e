package ir

// This file provides the top-level containers for the Viper IL: a Module owns
// functions, extern declarations, and global data. The IL is in SSA form with
// block parameters at control-flow joins instead of phi nodes.

// Module is the unit of optimization: a set of functions plus the extern and
// global declarations they reference. A Module is constructed by a front-end,
// mutated in place by transformation passes, and serialized back to text.
type Module struct {
	Functions []*Function
	Externs   []Extern
	Globals   []Global
}

// Extern is a forward declaration of a function defined outside the module,
// typically a runtime library entry point.
type Extern struct {
	Name   string
	Ret    Type
	Params []Type
	Attrs  FuncAttrs
}

// Global is a named piece of module-level data. Only string data is supported;
// code references it through GlobalAddr values.
type Global struct {
	Name string
	Type Type
	Init string
}

// AddFunction appends fn to the module and returns it.
func (m *Module) AddFunction(fn *Function) *Function {
	m.Functions = append(m.Functions, fn)
	return fn
}

// RemoveFunction deletes the function with the given name.
// Returns false when no such function exists.
func (m *Module) RemoveFunction(name string) bool {
	for i, fn := range m.Functions {
		if fn.Name == name {
			m.Functions = append(m.Functions[:i], m.Functions[i+1:]...)
			return true
		}
	}
	return false
}

// FindFunction returns the function with the given name, or nil.
func (m *Module) FindFunction(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// AddExtern records a forward declaration.
func (m *Module) AddExtern(ext Extern) {
	m.Externs = append(m.Externs, ext)
}

// FindExtern returns the extern with the given name, or nil.
func (m *Module) FindExtern(name string) *Extern {
	for i := range m.Externs {
		if m.Externs[i].Name == name {
			return &m.Externs[i]
		}
	}
	return nil
}

// AddGlobal records a named global data item.
func (m *Module) AddGlobal(g Global) {
	m.Globals = append(m.Globals, g)
}

// FindGlobal returns the global with the given name, or nil.
func (m *Module) FindGlobal(name string) *Global {
	for i := range m.Globals {
		if m.Globals[i].Name == name {
			return &m.Globals[i]
		}
	}
	return nil
}
