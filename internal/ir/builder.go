package ir

// Builder offers a small construction API over Module/Function used by the
// front-end shims, the tests, and the differential program generator. It
// tracks an insertion block and hands out fresh temps so callers never touch
// id allocation directly.
type Builder struct {
	Module *Module

	fn  *Function
	cur *BasicBlock
}

// NewBuilder creates a builder over the given module.
func NewBuilder(m *Module) *Builder {
	return &Builder{Module: m}
}

// StartFunction appends a new function and makes it current. No blocks are
// created; callers add an entry block next.
func (bd *Builder) StartFunction(name string, ret Type, params []Param) *Function {
	fn := &Function{Name: name, Ret: ret, Params: params}
	for i := range fn.Params {
		fn.Params[i].ID = uint32(i)
		fn.SetValueName(fn.Params[i].ID, fn.Params[i].Name)
	}
	fn.nextTemp = uint32(len(fn.Params))
	bd.Module.AddFunction(fn)
	bd.fn = fn
	bd.cur = nil
	return fn
}

// Func returns the function under construction.
func (bd *Builder) Func() *Function { return bd.fn }

// Block appends a new parameterless block and makes it the insertion point.
func (bd *Builder) Block(label string) *BasicBlock {
	bd.cur = bd.fn.AddBlock(label)
	return bd.cur
}

// BlockWithParams appends a block with parameters (ids assigned fresh) and
// makes it the insertion point.
func (bd *Builder) BlockWithParams(label string, params ...Param) *BasicBlock {
	for i := range params {
		params[i].ID = bd.fn.FreshTempID()
		bd.fn.SetValueName(params[i].ID, params[i].Name)
	}
	bd.cur = &BasicBlock{Label: label, Params: params}
	bd.fn.Blocks = append(bd.fn.Blocks, bd.cur)
	return bd.cur
}

// SetInsertBlock moves the insertion point to an existing block.
func (bd *Builder) SetInsertBlock(b *BasicBlock) { bd.cur = b }

// Emit appends an instruction to the insertion block and returns its index.
func (bd *Builder) Emit(in Instr) int {
	bd.cur.Append(in)
	return len(bd.cur.Instrs) - 1
}

// EmitValue appends a result-producing instruction with a fresh temp and
// returns the temp as a Value.
func (bd *Builder) EmitValue(name string, in Instr) Value {
	id := bd.fn.FreshTempID()
	in.SetResult(id)
	bd.fn.SetValueName(id, name)
	bd.cur.Append(in)
	return Temp(id)
}

// Binary emits a two-operand instruction of the given opcode and type.
func (bd *Builder) Binary(op Opcode, ty Type, name string, lhs, rhs Value) Value {
	return bd.EmitValue(name, Instr{Op: op, Type: ty, Operands: []Value{lhs, rhs}})
}

// Alloca emits a stack allocation of the given byte size.
func (bd *Builder) Alloca(name string, size int64) Value {
	return bd.EmitValue(name, Instr{Op: Alloca, Type: Ptr, Operands: []Value{ConstInt(size)}})
}

// Load emits a typed load through ptr.
func (bd *Builder) Load(name string, ty Type, ptr Value) Value {
	return bd.EmitValue(name, Instr{Op: Load, Type: ty, Operands: []Value{ptr}})
}

// Store emits a typed store of val through ptr.
func (bd *Builder) Store(ty Type, ptr, val Value) {
	bd.Emit(Instr{Op: Store, Type: ty, Operands: []Value{ptr, val}})
}

// Call emits a direct call. ty is the result type; Void calls produce no temp
// and return the zero Value.
func (bd *Builder) Call(name, callee string, ty Type, args ...Value) Value {
	in := Instr{Op: Call, Type: ty, Callee: callee, Operands: args}
	if ty == Void {
		bd.Emit(in)
		return Value{}
	}
	return bd.EmitValue(name, in)
}

// Br emits an unconditional branch.
func (bd *Builder) Br(target string, args ...Value) {
	bd.Emit(Instr{Op: Br, Labels: []string{target}, BrArgs: [][]Value{args}})
}

// CBr emits a conditional branch; the true target comes first.
func (bd *Builder) CBr(cond Value, ifTrue string, trueArgs []Value, ifFalse string, falseArgs []Value) {
	bd.Emit(Instr{
		Op:       CBr,
		Operands: []Value{cond},
		Labels:   []string{ifTrue, ifFalse},
		BrArgs:   [][]Value{trueArgs, falseArgs},
	})
}

// Ret emits a return. Pass the zero Value for void returns.
func (bd *Builder) Ret(ty Type, v ...Value) {
	in := Instr{Op: Ret, Type: ty}
	if len(v) > 0 {
		in.Operands = v[:1]
	}
	bd.Emit(in)
}
