package ir

// Opcode metadata. Every opcode carries a static description used by the
// verifier, the textual reader/printer, and the optimizer's effect queries.

// Opcode selects instruction semantics.
type Opcode uint8

const (
	// Integer arithmetic.
	Add Opcode = iota
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem

	// Overflow-trapping arithmetic.
	IAddOvf
	ISubOvf
	IMulOvf

	// Zero-checked division and remainder.
	SDivChk0
	UDivChk0
	SRemChk0
	URemChk0

	// Bitwise and shifts.
	And
	Or
	Xor
	Shl
	LShr
	AShr

	// Integer compares.
	ICmpEq
	ICmpNe
	SCmpLT
	SCmpLE
	SCmpGT
	SCmpGE
	UCmpLT
	UCmpLE
	UCmpGT
	UCmpGE

	// Float arithmetic and compares.
	FAdd
	FSub
	FMul
	FDiv
	FCmpEQ
	FCmpNE
	FCmpLT
	FCmpLE
	FCmpGT
	FCmpGE

	// Memory.
	Alloca
	Load
	Store
	GEP
	AddrOf

	// Literals materialized as instructions.
	ConstStrOp
	ConstNullOp

	// Casts.
	Sitofp
	Fptosi
	Zext1
	Trunc1
	CastSiNarrowChk
	CastUiNarrowChk
	CastFpToSiRteChk
	CastFpToUiRteChk

	// Range check.
	IdxChk

	// Calls.
	Call
	CallIndirect

	// Terminators.
	Br
	CBr
	SwitchI32
	Ret
	Trap
	ResumeSame
	ResumeNext
	ResumeLabel

	numOpcodes
)

// MemEffect classifies how an opcode touches memory.
type MemEffect uint8

const (
	MemNone MemEffect = iota
	MemRead
	MemWrite
	MemReadWrite
	MemUnknown
)

// ParseKind describes how the textual reader interprets one operand slot.
type ParseKind uint8

const (
	ParseVal     ParseKind = iota // any value
	ParseIntLit                   // integer literal required
	ParseGlobal                   // global address required
	ParseStrLit                   // string literal required
)

// VariadicOperands marks an unbounded operand list.
const VariadicOperands = -1

// VariadicSuccessors marks a terminator with a label list of any length.
const VariadicSuccessors = -1

// OpcodeInfo is the static metadata record for one opcode.
type OpcodeInfo struct {
	Name        string
	HasResult   bool
	ResultType  Type // fixed result type; Void means "per-instruction"
	FixedResult bool
	MinOperands int
	MaxOperands int // VariadicOperands for calls and switches
	Successors  int // VariadicSuccessors for switch
	Terminator  bool
	SideEffects bool
	Mem         MemEffect
	TypeInText  bool        // result/value type appears in the textual form
	OperandKind []ParseKind // nil means all operands are plain values
}

var opcodeInfos = [numOpcodes]OpcodeInfo{
	Add:  {Name: "add", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	Sub:  {Name: "sub", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	Mul:  {Name: "mul", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	SDiv: {Name: "sdiv", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	UDiv: {Name: "udiv", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	SRem: {Name: "srem", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	URem: {Name: "urem", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},

	IAddOvf: {Name: "iadd.ovf", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	ISubOvf: {Name: "isub.ovf", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	IMulOvf: {Name: "imul.ovf", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},

	SDivChk0: {Name: "sdiv.chk0", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	UDivChk0: {Name: "udiv.chk0", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	SRemChk0: {Name: "srem.chk0", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},
	URemChk0: {Name: "urem.chk0", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true, SideEffects: true},

	And:  {Name: "and", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	Or:   {Name: "or", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	Xor:  {Name: "xor", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	Shl:  {Name: "shl", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	LShr: {Name: "lshr", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},
	AShr: {Name: "ashr", HasResult: true, MinOperands: 2, MaxOperands: 2, TypeInText: true},

	ICmpEq: {Name: "icmp_eq", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	ICmpNe: {Name: "icmp_ne", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	SCmpLT: {Name: "scmp_lt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	SCmpLE: {Name: "scmp_le", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	SCmpGT: {Name: "scmp_gt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	SCmpGE: {Name: "scmp_ge", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	UCmpLT: {Name: "ucmp_lt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	UCmpLE: {Name: "ucmp_le", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	UCmpGT: {Name: "ucmp_gt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	UCmpGE: {Name: "ucmp_ge", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},

	FAdd:   {Name: "fadd", HasResult: true, ResultType: F64, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FSub:   {Name: "fsub", HasResult: true, ResultType: F64, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FMul:   {Name: "fmul", HasResult: true, ResultType: F64, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FDiv:   {Name: "fdiv", HasResult: true, ResultType: F64, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpEQ: {Name: "fcmp_eq", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpNE: {Name: "fcmp_ne", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpLT: {Name: "fcmp_lt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpLE: {Name: "fcmp_le", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpGT: {Name: "fcmp_gt", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	FCmpGE: {Name: "fcmp_ge", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 2, MaxOperands: 2},

	Alloca: {Name: "alloca", HasResult: true, ResultType: Ptr, FixedResult: true, MinOperands: 1, MaxOperands: 1, OperandKind: []ParseKind{ParseIntLit}},
	Load:   {Name: "load", HasResult: true, MinOperands: 1, MaxOperands: 1, Mem: MemRead, TypeInText: true},
	Store:  {Name: "store", MinOperands: 2, MaxOperands: 2, Mem: MemWrite, SideEffects: true, TypeInText: true},
	GEP:    {Name: "gep", HasResult: true, ResultType: Ptr, FixedResult: true, MinOperands: 2, MaxOperands: 2},
	AddrOf: {Name: "addr_of", HasResult: true, ResultType: Ptr, FixedResult: true, MinOperands: 1, MaxOperands: 1, OperandKind: []ParseKind{ParseGlobal}},

	ConstStrOp:  {Name: "const_str", HasResult: true, ResultType: Str, FixedResult: true, MinOperands: 1, MaxOperands: 1, OperandKind: []ParseKind{ParseGlobal}},
	ConstNullOp: {Name: "const_null", HasResult: true, ResultType: Ptr, FixedResult: true},

	Sitofp:           {Name: "sitofp", HasResult: true, ResultType: F64, FixedResult: true, MinOperands: 1, MaxOperands: 1},
	Fptosi:           {Name: "fptosi", HasResult: true, ResultType: I64, FixedResult: true, MinOperands: 1, MaxOperands: 1},
	Zext1:            {Name: "zext1", HasResult: true, ResultType: I64, FixedResult: true, MinOperands: 1, MaxOperands: 1},
	Trunc1:           {Name: "trunc1", HasResult: true, ResultType: I1, FixedResult: true, MinOperands: 1, MaxOperands: 1},
	CastSiNarrowChk:  {Name: "cast.si.narrow.chk", HasResult: true, ResultType: I32, FixedResult: true, MinOperands: 1, MaxOperands: 1, SideEffects: true},
	CastUiNarrowChk:  {Name: "cast.ui.narrow.chk", HasResult: true, ResultType: I32, FixedResult: true, MinOperands: 1, MaxOperands: 1, SideEffects: true},
	CastFpToSiRteChk: {Name: "cast.fp.to.si.rte.chk", HasResult: true, ResultType: I64, FixedResult: true, MinOperands: 1, MaxOperands: 1, SideEffects: true},
	CastFpToUiRteChk: {Name: "cast.fp.to.ui.rte.chk", HasResult: true, ResultType: I64, FixedResult: true, MinOperands: 1, MaxOperands: 1, SideEffects: true},

	IdxChk: {Name: "idx.chk", HasResult: true, MinOperands: 3, MaxOperands: 3, TypeInText: true, SideEffects: true},

	Call:         {Name: "call", HasResult: true, MinOperands: 0, MaxOperands: VariadicOperands, Mem: MemUnknown, SideEffects: true, TypeInText: true},
	CallIndirect: {Name: "call.indirect", HasResult: true, MinOperands: 1, MaxOperands: VariadicOperands, Mem: MemUnknown, SideEffects: true, TypeInText: true},

	Br:          {Name: "br", Successors: 1, Terminator: true},
	CBr:         {Name: "cbr", MinOperands: 1, MaxOperands: 1, Successors: 2, Terminator: true},
	SwitchI32:   {Name: "switch.i32", MinOperands: 1, MaxOperands: VariadicOperands, Successors: VariadicSuccessors, Terminator: true},
	Ret:         {Name: "ret", MinOperands: 0, MaxOperands: 1, Terminator: true},
	Trap:        {Name: "trap", Terminator: true, SideEffects: true},
	ResumeSame:  {Name: "resume.same", Terminator: true, SideEffects: true},
	ResumeNext:  {Name: "resume.next", Terminator: true, SideEffects: true},
	ResumeLabel: {Name: "resume.label", Successors: 1, Terminator: true, SideEffects: true},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := Opcode(0); op < numOpcodes; op++ {
		m[opcodeInfos[op].Name] = op
	}
	return m
}()

// Info returns the static metadata for op.
func (op Opcode) Info() *OpcodeInfo {
	return &opcodeInfos[op]
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeInfos[op].Name
	}
	return "op?"
}

// OpcodeByName maps a mnemonic back to its opcode.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// IsCheck reports whether op is one of the trapping check opcodes targeted by
// the check optimizer.
func (op Opcode) IsCheck() bool {
	switch op {
	case IdxChk, SDivChk0, UDivChk0, SRemChk0, URemChk0,
		CastSiNarrowChk, CastUiNarrowChk, CastFpToSiRteChk, CastFpToUiRteChk:
		return true
	}
	return false
}

// IsCall reports whether op is a direct or indirect call.
func (op Opcode) IsCall() bool {
	return op == Call || op == CallIndirect
}
