package analysis

import (
	"viper/internal/ir"
	"viper/internal/rt"
)

// BasicAA provides conservative, flow-insensitive memory disambiguation.
// It reasons about alloca sites, noalias parameters, globals, and gep chains
// with constant offsets; everything else degrades to MayAlias.

// AliasResult describes the relationship between two pointer-like values.
type AliasResult uint8

const (
	NoAlias AliasResult = iota
	MayAlias
	MustAlias
)

func (r AliasResult) String() string {
	switch r {
	case NoAlias:
		return "NoAlias"
	case MayAlias:
		return "MayAlias"
	case MustAlias:
		return "MustAlias"
	}
	return "?"
}

// ModRefResult summarizes how an instruction interacts with memory.
type ModRefResult uint8

const (
	NoModRef ModRefResult = iota
	Ref
	Mod
	ModRef
)

func (r ModRefResult) String() string {
	switch r {
	case NoModRef:
		return "NoModRef"
	case Ref:
		return "Ref"
	case Mod:
		return "Mod"
	case ModRef:
		return "ModRef"
	}
	return "?"
}

// TypeSizeBytes returns the byte size of a primitive type, or 0 when the
// size is unknown or the type is opaque.
func TypeSizeBytes(t ir.Type) uint32 {
	switch t {
	case ir.I1:
		return 1
	case ir.I32:
		return 4
	case ir.I64, ir.F64, ir.Ptr:
		return 8
	}
	return 0
}

// BasicAA is built per function, with an optional module for callee lookup.
type BasicAA struct {
	fn  *ir.Function
	mod *ir.Module
	rts rt.Signatures

	allocas       map[uint32]bool
	noaliasParams map[uint32]bool

	// defs snapshots defining instructions by value: passes remove
	// instructions from blocks while holding a BasicAA, and pointers into
	// the shifting slices would go stale.
	defs map[uint32]ir.Instr
}

// NewBasicAA builds alias analysis state for fn. mod and sigs may be nil.
func NewBasicAA(fn *ir.Function, mod *ir.Module, sigs rt.Signatures) *BasicAA {
	aa := &BasicAA{
		fn:            fn,
		mod:           mod,
		rts:           sigs,
		allocas:       make(map[uint32]bool),
		noaliasParams: make(map[uint32]bool),
		defs:          make(map[uint32]ir.Instr),
	}
	for _, p := range fn.Params {
		if p.Attrs.NoAlias {
			aa.noaliasParams[p.ID] = true
		}
	}
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			id, ok := in.ResultID()
			if !ok {
				continue
			}
			aa.defs[id] = *in
			if in.Op == ir.Alloca {
				aa.allocas[id] = true
			}
		}
	}
	return aa
}

// IsAlloca reports whether a temp id was produced by an alloca.
func (aa *BasicAA) IsAlloca(id uint32) bool { return aa.allocas[id] }

// Alias answers the two-value query without size hints.
func (aa *BasicAA) Alias(lhs, rhs ir.Value) AliasResult {
	return aa.AliasSized(lhs, rhs, 0, 0)
}

// AliasSized answers the alias query with optional access sizes in bytes
// (0 = unknown). The rule cascade is ordered from cheapest to most precise;
// the first applicable rule wins.
func (aa *BasicAA) AliasSized(lhs, rhs ir.Value, lhsSize, rhsSize uint32) AliasResult {
	// Rule 1: payload equality.
	if lhs.Equal(rhs) {
		return MustAlias
	}

	if lhs.Kind == ir.ValueTemp && rhs.Kind == ir.ValueTemp {
		// Rule 2: distinct allocation sites never overlap.
		if aa.allocas[lhs.ID] && aa.allocas[rhs.ID] {
			return NoAlias
		}
		// Rule 3: distinct noalias parameters.
		if aa.noaliasParams[lhs.ID] && aa.noaliasParams[rhs.ID] {
			return NoAlias
		}
	}

	// Rule 4: a stack slot cannot be module data.
	if aa.allocaVsGlobal(lhs, rhs) || aa.allocaVsGlobal(rhs, lhs) {
		return NoAlias
	}

	// Rule 5: constant-offset geps into the same base.
	lb, lo, lok := aa.decomposeGEP(lhs)
	rb, ro, rok := aa.decomposeGEP(rhs)
	if lok && rok {
		if lb.Equal(rb) {
			if lo == ro {
				if lhsSize != 0 && lhsSize == rhsSize {
					return MustAlias
				}
				return MayAlias
			}
			if lhsSize != 0 && rhsSize != 0 && rangesDisjoint(lo, lhsSize, ro, rhsSize) {
				return NoAlias
			}
			return MayAlias
		}
		// Distinct alloca roots never overlap regardless of offsets.
		if lb.Kind == ir.ValueTemp && rb.Kind == ir.ValueTemp &&
			aa.allocas[lb.ID] && aa.allocas[rb.ID] && lb.ID != rb.ID {
			return NoAlias
		}
	}

	return MayAlias
}

func rangesDisjoint(aOff int64, aSize uint32, bOff int64, bSize uint32) bool {
	return aOff+int64(aSize) <= bOff || bOff+int64(bSize) <= aOff
}

func (aa *BasicAA) allocaVsGlobal(a, b ir.Value) bool {
	return a.Kind == ir.ValueTemp && aa.allocas[a.ID] && b.Kind == ir.ValueGlobalAddr
}

// decomposeGEP resolves v through gep chains with constant offsets to a
// (base, byte offset) pair. Non-gep values resolve to themselves at offset 0.
func (aa *BasicAA) decomposeGEP(v ir.Value) (base ir.Value, offset int64, ok bool) {
	base, offset = v, 0
	for depth := 0; depth < 16; depth++ {
		if base.Kind != ir.ValueTemp {
			return base, offset, true
		}
		def, ok := aa.defs[base.ID]
		if !ok || def.Op != ir.GEP {
			return base, offset, true
		}
		off := def.Operands[1]
		if off.Kind != ir.ValueConstInt {
			return v, 0, false
		}
		offset += off.Int
		base = def.Operands[0]
	}
	return v, 0, false
}

// ModRef classifies the memory behavior of an instruction. Only calls get
// precise treatment; everything else is reported conservatively.
func (aa *BasicAA) ModRef(in *ir.Instr) ModRefResult {
	if !in.Op.IsCall() {
		return ModRef
	}

	pure := in.CallAttr.Pure
	readonly := in.CallAttr.ReadOnly

	if in.Op == ir.Call {
		p, r := aa.calleeEffect(in.Callee)
		pure = pure || p
		readonly = readonly || r
	}

	if pure {
		return NoModRef
	}
	if readonly {
		return Ref
	}
	return ModRef
}

// calleeEffect resolves callee attributes. A definition in the module is
// authoritative; the runtime registry is only consulted when the module has
// no definition for the name.
func (aa *BasicAA) calleeEffect(name string) (pure, readonly bool) {
	if name == "" {
		return false, false
	}
	if aa.fn != nil && aa.fn.Name == name {
		return aa.fn.Attrs.Pure, aa.fn.Attrs.ReadOnly
	}
	if aa.mod != nil {
		if fn := aa.mod.FindFunction(name); fn != nil {
			return fn.Attrs.Pure, fn.Attrs.ReadOnly
		}
		if ext := aa.mod.FindExtern(name); ext != nil && (ext.Attrs.Pure || ext.Attrs.ReadOnly) {
			return ext.Attrs.Pure, ext.Attrs.ReadOnly
		}
	}
	if aa.rts != nil {
		if sig, ok := aa.rts.Lookup(name); ok {
			return sig.Pure, sig.ReadOnly
		}
	}
	return false, false
}
