package transform

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"viper/internal/ir"
)

// Expression identity for CSE and GVN. A ValueKey normalizes a pure
// instruction into (opcode, result type, canonical operand sequence);
// commutative opcodes sort their operands by a stable rank so `add a, b`
// and `add b, a` collide. Float operands are encoded by bit pattern, not
// value, so NaN payloads and signed zeros key deterministically.

// ValueKey identifies a pure expression. It is a valid map key.
type ValueKey struct {
	Op       ir.Opcode
	Type     ir.Type
	Operands string // canonical encoding, see encodeValue
}

// encodeValue renders a value into a stable, unambiguous token.
func encodeValue(v ir.Value) string {
	switch v.Kind {
	case ir.ValueTemp:
		return fmt.Sprintf("t%d", v.ID)
	case ir.ValueConstInt:
		if v.IsBool {
			return fmt.Sprintf("b%d", v.Int&1)
		}
		return fmt.Sprintf("i%d", v.Int)
	case ir.ValueConstFloat:
		return fmt.Sprintf("f%016x", math.Float64bits(v.Float))
	case ir.ValueConstStr:
		return "s" + v.Str
	case ir.ValueGlobalAddr:
		return "g" + v.Str
	case ir.ValueNullPtr:
		return "null"
	}
	return "?"
}

// IsCommutativeCSE reports whether operand order is irrelevant for keying.
func IsCommutativeCSE(op ir.Opcode) bool {
	switch op {
	case ir.Add, ir.Mul, ir.And, ir.Or, ir.Xor,
		ir.ICmpEq, ir.ICmpNe, ir.FAdd, ir.FMul, ir.FCmpEQ, ir.FCmpNE:
		return true
	}
	return false
}

// IsSafeCSEOpcode gates which opcodes participate in expression CSE: pure,
// non-trapping, no memory access. Loads are excluded here — redundant load
// elimination belongs to GVN, which knows how stores and calls invalidate
// them.
func IsSafeCSEOpcode(op ir.Opcode) bool {
	switch op {
	case ir.Add, ir.Sub, ir.Mul,
		ir.And, ir.Or, ir.Xor, ir.Shl, ir.LShr, ir.AShr,
		ir.ICmpEq, ir.ICmpNe,
		ir.SCmpLT, ir.SCmpLE, ir.SCmpGT, ir.SCmpGE,
		ir.UCmpLT, ir.UCmpLE, ir.UCmpGT, ir.UCmpGE,
		ir.FAdd, ir.FSub, ir.FMul, ir.FDiv,
		ir.FCmpEQ, ir.FCmpNE, ir.FCmpLT, ir.FCmpLE, ir.FCmpGT, ir.FCmpGE,
		ir.Zext1, ir.Trunc1, ir.Sitofp, ir.GEP:
		return true
	}
	return false
}

// MakeValueKey builds the canonical key for an instruction, or reports false
// when the instruction is not a CSE candidate.
func MakeValueKey(in *ir.Instr) (ValueKey, bool) {
	if _, ok := in.ResultID(); !ok {
		return ValueKey{}, false
	}
	if !IsSafeCSEOpcode(in.Op) {
		return ValueKey{}, false
	}
	encoded := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		encoded[i] = encodeValue(v)
	}
	if IsCommutativeCSE(in.Op) {
		sort.Strings(encoded)
	}
	return ValueKey{Op: in.Op, Type: in.Type, Operands: strings.Join(encoded, ",")}, true
}
