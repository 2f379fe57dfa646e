package transform

import (
	"math"

	"viper/internal/ir"
)

// Constant folding. Pure instructions whose operands are all literals are
// evaluated at compile time and their uses rewritten to the literal result.
// Integer ops use two's-complement wrapping; float ops use IEEE-754 doubles.
// Trapping opcodes are never folded here — check-opt owns the cases where a
// trap is provably absent.
func runConstFold(fn *ir.Function) bool {
	changed := false
	for {
		subst := substMap{}
		for _, b := range fn.Blocks {
			for i := len(b.Instrs) - 1; i >= 0; i-- {
				in := &b.Instrs[i]
				id, ok := in.ResultID()
				if !ok || !isPure(in) {
					continue
				}
				if v, ok := foldInstr(in); ok {
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

// foldInstr evaluates a pure instruction over literal operands.
func foldInstr(in *ir.Instr) (ir.Value, bool) {
	for _, v := range in.Operands {
		if !v.IsConst() {
			return ir.Value{}, false
		}
	}

	ops := in.Operands
	intArgs := func() (int64, int64, bool) {
		if len(ops) != 2 || ops[0].Kind != ir.ValueConstInt || ops[1].Kind != ir.ValueConstInt {
			return 0, 0, false
		}
		return ops[0].Int, ops[1].Int, true
	}
	floatArgs := func() (float64, float64, bool) {
		if len(ops) != 2 || ops[0].Kind != ir.ValueConstFloat || ops[1].Kind != ir.ValueConstFloat {
			return 0, 0, false
		}
		return ops[0].Float, ops[1].Float, true
	}

	switch in.Op {
	case ir.Add:
		if a, b, ok := intArgs(); ok {
			return truncToType(a+b, in.Type), true
		}
	case ir.Sub:
		if a, b, ok := intArgs(); ok {
			return truncToType(a-b, in.Type), true
		}
	case ir.Mul:
		if a, b, ok := intArgs(); ok {
			return truncToType(a*b, in.Type), true
		}

	case ir.And:
		if a, b, ok := intArgs(); ok {
			return truncToType(a&b, in.Type), true
		}
	case ir.Or:
		if a, b, ok := intArgs(); ok {
			return truncToType(a|b, in.Type), true
		}
	case ir.Xor:
		if a, b, ok := intArgs(); ok {
			return truncToType(a^b, in.Type), true
		}
	case ir.Shl:
		if a, b, ok := intArgs(); ok {
			return truncToType(a<<(uint64(b)&63), in.Type), true
		}
	case ir.LShr:
		if a, b, ok := intArgs(); ok {
			return truncToType(int64(uint64(a)>>(uint64(b)&63)), in.Type), true
		}
	case ir.AShr:
		if a, b, ok := intArgs(); ok {
			return truncToType(a>>(uint64(b)&63), in.Type), true
		}

	case ir.ICmpEq:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a == b), true
		}
	case ir.ICmpNe:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a != b), true
		}
	case ir.SCmpLT:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a < b), true
		}
	case ir.SCmpLE:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a <= b), true
		}
	case ir.SCmpGT:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a > b), true
		}
	case ir.SCmpGE:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(a >= b), true
		}
	case ir.UCmpLT:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(uint64(a) < uint64(b)), true
		}
	case ir.UCmpLE:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(uint64(a) <= uint64(b)), true
		}
	case ir.UCmpGT:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(uint64(a) > uint64(b)), true
		}
	case ir.UCmpGE:
		if a, b, ok := intArgs(); ok {
			return ir.ConstBool(uint64(a) >= uint64(b)), true
		}

	case ir.FAdd:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstFloat(a + b), true
		}
	case ir.FSub:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstFloat(a - b), true
		}
	case ir.FMul:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstFloat(a * b), true
		}
	case ir.FDiv:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstFloat(a / b), true
		}
	case ir.FCmpEQ:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a == b), true
		}
	case ir.FCmpNE:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a != b), true
		}
	case ir.FCmpLT:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a < b), true
		}
	case ir.FCmpLE:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a <= b), true
		}
	case ir.FCmpGT:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a > b), true
		}
	case ir.FCmpGE:
		if a, b, ok := floatArgs(); ok {
			return ir.ConstBool(a >= b), true
		}

	case ir.Zext1:
		if len(ops) == 1 && ops[0].Kind == ir.ValueConstInt {
			v := int64(0)
			if ops[0].Int != 0 {
				v = 1
			}
			return ir.ConstInt(v), true
		}
	case ir.Trunc1:
		if len(ops) == 1 && ops[0].Kind == ir.ValueConstInt {
			return ir.ConstBool(ops[0].Int&1 != 0), true
		}
	case ir.Sitofp:
		if len(ops) == 1 && ops[0].Kind == ir.ValueConstInt {
			return ir.ConstFloat(float64(ops[0].Int)), true
		}
	case ir.Fptosi:
		if len(ops) == 1 && ops[0].Kind == ir.ValueConstFloat {
			f := ops[0].Float
			if !math.IsNaN(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				return ir.ConstInt(int64(f)), true
			}
		}
	}
	return ir.Value{}, false
}

// truncToType wraps an integer result to the width of t.
func truncToType(v int64, t ir.Type) ir.Value {
	switch t {
	case ir.I1:
		return ir.ConstBool(v&1 != 0)
	case ir.I32:
		return ir.ConstInt(int64(int32(v)))
	default:
		return ir.ConstInt(v)
	}
}
