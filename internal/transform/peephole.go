package transform

import (
	"viper/internal/ir"
)

// Peephole simplification: algebraic identities that replace an instruction's
// result with one of its operands or a constant. Every rewrite here must be
// exact — no pattern may introduce a trap or change wrapping behavior.
// Definitions are snapshotted by value each round; instruction removal shifts
// the slices underneath, so holding pointers across removals is not safe.
func runPeephole(fn *ir.Function) bool {
	changed := false
	for {
		defs := make(map[uint32]ir.Instr)
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				if id, ok := b.Instrs[i].ResultID(); ok {
					defs[id] = b.Instrs[i]
				}
			}
		}

		subst := substMap{}
		for _, b := range fn.Blocks {
			for i := len(b.Instrs) - 1; i >= 0; i-- {
				in := &b.Instrs[i]
				id, ok := in.ResultID()
				if !ok || !isPure(in) {
					continue
				}
				if v, ok := simplifyInstr(in, defs); ok {
					subst[id] = v
					b.Remove(i)
				}
			}
		}
		if len(subst) == 0 {
			break
		}
		applySubst(fn, subst)
		changed = true
	}
	return changed
}

func isIntConst(v ir.Value, n int64) bool {
	return v.Kind == ir.ValueConstInt && !v.IsBool && v.Int == n
}

func simplifyInstr(in *ir.Instr, defs map[uint32]ir.Instr) (ir.Value, bool) {
	ops := in.Operands
	switch in.Op {
	case ir.Add:
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
		if isIntConst(ops[0], 0) {
			return ops[1], true
		}
	case ir.Sub:
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
		if ops[0].Equal(ops[1]) && ops[0].Kind == ir.ValueTemp {
			return ir.ConstInt(0), true
		}
	case ir.Mul:
		if isIntConst(ops[1], 1) {
			return ops[0], true
		}
		if isIntConst(ops[0], 1) {
			return ops[1], true
		}
		if isIntConst(ops[0], 0) || isIntConst(ops[1], 0) {
			return ir.ConstInt(0), true
		}
	case ir.And:
		if ops[0].Equal(ops[1]) {
			return ops[0], true
		}
		if isIntConst(ops[0], 0) || isIntConst(ops[1], 0) {
			return ir.ConstInt(0), true
		}
		if isIntConst(ops[1], -1) {
			return ops[0], true
		}
		if isIntConst(ops[0], -1) {
			return ops[1], true
		}
	case ir.Or:
		if ops[0].Equal(ops[1]) {
			return ops[0], true
		}
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
		if isIntConst(ops[0], 0) {
			return ops[1], true
		}
	case ir.Xor:
		if ops[0].Equal(ops[1]) {
			return ir.ConstInt(0), true
		}
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
		if isIntConst(ops[0], 0) {
			return ops[1], true
		}
		// Double negation: xor (xor x, c), c -> x.
		if ops[0].Kind == ir.ValueTemp {
			if inner, ok := defs[ops[0].ID]; ok && inner.Op == ir.Xor {
				if inner.Operands[1].Equal(ops[1]) {
					return inner.Operands[0], true
				}
			}
		}
	case ir.Shl, ir.LShr, ir.AShr:
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
	case ir.ICmpEq:
		if ops[0].Equal(ops[1]) && ops[0].Kind == ir.ValueTemp {
			return ir.ConstBool(true), true
		}
	case ir.ICmpNe:
		if ops[0].Equal(ops[1]) && ops[0].Kind == ir.ValueTemp {
			return ir.ConstBool(false), true
		}
	case ir.GEP:
		if isIntConst(ops[1], 0) {
			return ops[0], true
		}
	}
	return ir.Value{}, false
}
