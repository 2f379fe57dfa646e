package interp

import (
	"fmt"
	"math"

	"viper/internal/ir"
)

// Reference evaluator for the IL, used as the equivalence oracle by the
// differential tests and by the CLI's -run mode. It is deliberately simple:
// byte-addressed memory for allocas, tagged cells for SSA temps, and the trap
// semantics the opcode set promises (division by zero, failed checks, the
// trap terminator). It is not a performance vehicle.

// Result is the observable outcome of running a function.
type Result struct {
	Trapped     bool
	TrapMessage string
	Value       int64
}

const (
	maxSteps     = 1 << 22
	maxCallDepth = 256
)

type machine struct {
	mod   *ir.Module
	mem   map[uint64]byte
	next  uint64 // bump allocator for alloca addresses
	steps int
}

type cell struct {
	t ir.Type
	i int64
	f float64
	s string
	p uint64
}

type trapError struct{ msg string }

func (t trapError) Error() string { return t.msg }

func trap(format string, args ...interface{}) trapError {
	return trapError{msg: fmt.Sprintf(format, args...)}
}

// Run executes @main with no arguments and returns its observable result.
func Run(m *ir.Module) Result {
	return RunFunction(m, "main")
}

// RunFunction executes a named zero-argument function.
func RunFunction(m *ir.Module, name string) Result {
	mach := &machine{mod: m, mem: make(map[uint64]byte), next: 0x1000}
	fn := m.FindFunction(name)
	if fn == nil {
		return Result{Trapped: true, TrapMessage: fmt.Sprintf("no function @%s", name)}
	}
	c, err := mach.call(fn, nil, 0)
	if err != nil {
		te, ok := err.(trapError)
		if ok {
			return Result{Trapped: true, TrapMessage: te.msg}
		}
		return Result{Trapped: true, TrapMessage: err.Error()}
	}
	return Result{Value: c.i}
}

func (mc *machine) call(fn *ir.Function, args []cell, depth int) (cell, error) {
	if depth > maxCallDepth {
		return cell{}, trap("call depth exceeded")
	}
	env := make(map[uint32]cell, 16)
	for i, p := range fn.Params {
		if i < len(args) {
			env[p.ID] = args[i]
		}
	}

	block := fn.Entry()
	if block == nil {
		return cell{}, trap("@%s has no body", fn.Name)
	}

	for {
		var branchTo *ir.BasicBlock
		var branchArgs []cell

		for idx := range block.Instrs {
			mc.steps++
			if mc.steps > maxSteps {
				return cell{}, trap("step limit exceeded")
			}
			in := &block.Instrs[idx]

			if in.IsTerminator() {
				switch in.Op {
				case ir.Ret:
					if len(in.Operands) > 0 {
						v, err := mc.eval(env, in.Operands[0])
						if err != nil {
							return cell{}, err
						}
						return v, nil
					}
					return cell{}, nil
				case ir.Trap:
					return cell{}, trap("trap")
				case ir.ResumeSame, ir.ResumeNext:
					return cell{}, trap("resume outside handler")
				case ir.Br, ir.ResumeLabel:
					target, args, err := mc.edge(fn, env, in, 0)
					if err != nil {
						return cell{}, err
					}
					branchTo, branchArgs = target, args
				case ir.CBr:
					cond, err := mc.eval(env, in.Operands[0])
					if err != nil {
						return cell{}, err
					}
					arm := 1
					if cond.i != 0 {
						arm = 0
					}
					target, args, err := mc.edge(fn, env, in, arm)
					if err != nil {
						return cell{}, err
					}
					branchTo, branchArgs = target, args
				case ir.SwitchI32:
					scrut, err := mc.eval(env, in.SwitchScrutinee())
					if err != nil {
						return cell{}, err
					}
					arm := 0 // default
					for i := 0; i < in.SwitchCaseCount(); i++ {
						if int32(in.SwitchCaseValue(i).Int) == int32(scrut.i) {
							arm = 1 + i
							break
						}
					}
					target, args, err := mc.edge(fn, env, in, arm)
					if err != nil {
						return cell{}, err
					}
					branchTo, branchArgs = target, args
				default:
					return cell{}, trap("unhandled terminator %s", in.Op)
				}
				break
			}

			if err := mc.step(fn, env, in, depth); err != nil {
				return cell{}, err
			}
		}

		if branchTo == nil {
			return cell{}, trap("block %q fell off the end", block.Label)
		}
		for i, p := range branchTo.Params {
			if i < len(branchArgs) {
				env[p.ID] = branchArgs[i]
			}
		}
		block = branchTo
	}
}

func (mc *machine) edge(fn *ir.Function, env map[uint32]cell, in *ir.Instr, arm int) (*ir.BasicBlock, []cell, error) {
	target := fn.FindBlock(in.Labels[arm])
	if target == nil {
		return nil, nil, trap("branch to missing block %q", in.Labels[arm])
	}
	var args []cell
	if arm < len(in.BrArgs) {
		for _, v := range in.BrArgs[arm] {
			c, err := mc.eval(env, v)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, c)
		}
	}
	return target, args, nil
}

func (mc *machine) eval(env map[uint32]cell, v ir.Value) (cell, error) {
	switch v.Kind {
	case ir.ValueTemp:
		c, ok := env[v.ID]
		if !ok {
			return cell{}, trap("read of undefined temp %%t%d", v.ID)
		}
		return c, nil
	case ir.ValueConstInt:
		t := ir.I64
		if v.IsBool {
			t = ir.I1
		}
		return cell{t: t, i: v.Int}, nil
	case ir.ValueConstFloat:
		return cell{t: ir.F64, f: v.Float}, nil
	case ir.ValueConstStr:
		return cell{t: ir.Str, s: v.Str}, nil
	case ir.ValueGlobalAddr:
		if g := mc.mod.FindGlobal(v.Str); g != nil {
			return cell{t: ir.Str, s: g.Init}, nil
		}
		return cell{t: ir.Ptr, p: globalBase(v.Str)}, nil
	case ir.ValueNullPtr:
		return cell{t: ir.Ptr, p: 0}, nil
	}
	return cell{}, trap("unevaluable value")
}

// globalBase derives a stable fake address for a named global.
func globalBase(name string) uint64 {
	h := uint64(1469598103934665603)
	for i := 0; i < len(name); i++ {
		h = (h ^ uint64(name[i])) * 1099511628211
	}
	return h | 0x8000000000000000
}

func (mc *machine) step(fn *ir.Function, env map[uint32]cell, in *ir.Instr, depth int) error {
	set := func(c cell) {
		if id, ok := in.ResultID(); ok {
			env[id] = c
		}
	}
	operand := func(i int) (cell, error) { return mc.eval(env, in.Operands[i]) }

	switch in.Op {
	case ir.Add, ir.Sub, ir.Mul, ir.And, ir.Or, ir.Xor, ir.Shl, ir.LShr, ir.AShr,
		ir.IAddOvf, ir.ISubOvf, ir.IMulOvf:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		r, err := intArith(in.Op, a.i, b.i)
		if err != nil {
			return err
		}
		set(cell{t: in.Type, i: truncInt(r, in.Type)})

	case ir.SDiv, ir.SRem, ir.SDivChk0, ir.SRemChk0:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		if b.i == 0 {
			return trap("division by zero")
		}
		if a.i == math.MinInt64 && b.i == -1 {
			return trap("integer overflow")
		}
		if in.Op == ir.SDiv || in.Op == ir.SDivChk0 {
			set(cell{t: in.Type, i: a.i / b.i})
		} else {
			set(cell{t: in.Type, i: a.i % b.i})
		}

	case ir.UDiv, ir.URem, ir.UDivChk0, ir.URemChk0:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		if b.i == 0 {
			return trap("division by zero")
		}
		if in.Op == ir.UDiv || in.Op == ir.UDivChk0 {
			set(cell{t: in.Type, i: int64(uint64(a.i) / uint64(b.i))})
		} else {
			set(cell{t: in.Type, i: int64(uint64(a.i) % uint64(b.i))})
		}

	case ir.ICmpEq, ir.ICmpNe, ir.SCmpLT, ir.SCmpLE, ir.SCmpGT, ir.SCmpGE,
		ir.UCmpLT, ir.UCmpLE, ir.UCmpGT, ir.UCmpGE:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		set(cell{t: ir.I1, i: boolToInt(intCompare(in.Op, a.i, b.i))})

	case ir.FAdd, ir.FSub, ir.FMul, ir.FDiv:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		var r float64
		switch in.Op {
		case ir.FAdd:
			r = a.f + b.f
		case ir.FSub:
			r = a.f - b.f
		case ir.FMul:
			r = a.f * b.f
		case ir.FDiv:
			r = a.f / b.f
		}
		set(cell{t: ir.F64, f: r})

	case ir.FCmpEQ, ir.FCmpNE, ir.FCmpLT, ir.FCmpLE, ir.FCmpGT, ir.FCmpGE:
		a, err := operand(0)
		if err != nil {
			return err
		}
		b, err := operand(1)
		if err != nil {
			return err
		}
		var r bool
		switch in.Op {
		case ir.FCmpEQ:
			r = a.f == b.f
		case ir.FCmpNE:
			r = a.f != b.f
		case ir.FCmpLT:
			r = a.f < b.f
		case ir.FCmpLE:
			r = a.f <= b.f
		case ir.FCmpGT:
			r = a.f > b.f
		case ir.FCmpGE:
			r = a.f >= b.f
		}
		set(cell{t: ir.I1, i: boolToInt(r)})

	case ir.Alloca:
		size := uint64(in.Operands[0].Int)
		addr := mc.next
		mc.next += (size + 7) &^ 7
		set(cell{t: ir.Ptr, p: addr})

	case ir.GEP:
		base, err := operand(0)
		if err != nil {
			return err
		}
		off, err := operand(1)
		if err != nil {
			return err
		}
		set(cell{t: ir.Ptr, p: base.p + uint64(off.i)})

	case ir.AddrOf:
		v, err := operand(0)
		if err != nil {
			return err
		}
		set(v)

	case ir.ConstStrOp:
		v, err := operand(0)
		if err != nil {
			return err
		}
		set(cell{t: ir.Str, s: v.s})

	case ir.ConstNullOp:
		set(cell{t: ir.Ptr, p: 0})

	case ir.Load:
		ptr, err := operand(0)
		if err != nil {
			return err
		}
		set(mc.load(ptr.p, in.Type))

	case ir.Store:
		ptr, err := operand(0)
		if err != nil {
			return err
		}
		val, err := operand(1)
		if err != nil {
			return err
		}
		mc.store(ptr.p, in.Type, val)

	case ir.Sitofp:
		a, err := operand(0)
		if err != nil {
			return err
		}
		set(cell{t: ir.F64, f: float64(a.i)})

	case ir.Fptosi:
		a, err := operand(0)
		if err != nil {
			return err
		}
		if math.IsNaN(a.f) || a.f < math.MinInt64 || a.f >= math.MaxInt64 {
			return trap("float to int out of range")
		}
		set(cell{t: ir.I64, i: int64(a.f)})

	case ir.Zext1:
		a, err := operand(0)
		if err != nil {
			return err
		}
		set(cell{t: ir.I64, i: a.i & 1})

	case ir.Trunc1:
		a, err := operand(0)
		if err != nil {
			return err
		}
		set(cell{t: ir.I1, i: a.i & 1})

	case ir.CastSiNarrowChk:
		a, err := operand(0)
		if err != nil {
			return err
		}
		if a.i < math.MinInt32 || a.i > math.MaxInt32 {
			return trap("narrowing overflow")
		}
		set(cell{t: ir.I32, i: a.i})

	case ir.CastUiNarrowChk:
		a, err := operand(0)
		if err != nil {
			return err
		}
		if a.i < 0 || a.i > math.MaxUint32 {
			return trap("narrowing overflow")
		}
		set(cell{t: ir.I32, i: a.i})

	case ir.CastFpToSiRteChk:
		a, err := operand(0)
		if err != nil {
			return err
		}
		if math.IsNaN(a.f) || a.f < math.MinInt64 || a.f >= math.MaxInt64 {
			return trap("rounding overflow")
		}
		set(cell{t: ir.I64, i: int64(math.RoundToEven(a.f))})

	case ir.CastFpToUiRteChk:
		a, err := operand(0)
		if err != nil {
			return err
		}
		if math.IsNaN(a.f) || a.f < 0 || a.f >= math.MaxUint64 {
			return trap("rounding overflow")
		}
		set(cell{t: ir.I64, i: int64(uint64(math.RoundToEven(a.f)))})

	case ir.IdxChk:
		idx, err := operand(0)
		if err != nil {
			return err
		}
		lo, err := operand(1)
		if err != nil {
			return err
		}
		hi, err := operand(2)
		if err != nil {
			return err
		}
		if idx.i < lo.i || idx.i >= hi.i {
			return trap("index %d out of range [%d, %d)", idx.i, lo.i, hi.i)
		}
		set(cell{t: in.Type, i: idx.i})

	case ir.Call:
		args := make([]cell, len(in.Operands))
		for i := range in.Operands {
			c, err := mc.eval(env, in.Operands[i])
			if err != nil {
				return err
			}
			args[i] = c
		}
		if callee := mc.mod.FindFunction(in.Callee); callee != nil {
			r, err := mc.call(callee, args, depth+1)
			if err != nil {
				return err
			}
			set(r)
			return nil
		}
		r, err := runtimeCall(in.Callee, args)
		if err != nil {
			return err
		}
		set(r)

	case ir.CallIndirect:
		return trap("indirect call target unknown")

	default:
		return trap("unhandled opcode %s", in.Op)
	}
	return nil
}

func intArith(op ir.Opcode, a, b int64) (int64, error) {
	switch op {
	case ir.Add:
		return a + b, nil
	case ir.Sub:
		return a - b, nil
	case ir.Mul:
		return a * b, nil
	case ir.And:
		return a & b, nil
	case ir.Or:
		return a | b, nil
	case ir.Xor:
		return a ^ b, nil
	case ir.Shl:
		return a << (uint64(b) & 63), nil
	case ir.LShr:
		return int64(uint64(a) >> (uint64(b) & 63)), nil
	case ir.AShr:
		return a >> (uint64(b) & 63), nil
	case ir.IAddOvf:
		r := a + b
		if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
			return 0, trap("integer overflow")
		}
		return r, nil
	case ir.ISubOvf:
		r := a - b
		if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
			return 0, trap("integer overflow")
		}
		return r, nil
	case ir.IMulOvf:
		if a != 0 {
			r := a * b
			if r/a != b {
				return 0, trap("integer overflow")
			}
			return r, nil
		}
		return 0, nil
	}
	return 0, trap("not an arithmetic opcode")
}

func intCompare(op ir.Opcode, a, b int64) bool {
	switch op {
	case ir.ICmpEq:
		return a == b
	case ir.ICmpNe:
		return a != b
	case ir.SCmpLT:
		return a < b
	case ir.SCmpLE:
		return a <= b
	case ir.SCmpGT:
		return a > b
	case ir.SCmpGE:
		return a >= b
	case ir.UCmpLT:
		return uint64(a) < uint64(b)
	case ir.UCmpLE:
		return uint64(a) <= uint64(b)
	case ir.UCmpGT:
		return uint64(a) > uint64(b)
	case ir.UCmpGE:
		return uint64(a) >= uint64(b)
	}
	return false
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func truncInt(v int64, t ir.Type) int64 {
	switch t {
	case ir.I1:
		return v & 1
	case ir.I32:
		return int64(int32(v))
	default:
		return v
	}
}

func typeWidth(t ir.Type) int {
	switch t {
	case ir.I1:
		return 1
	case ir.I32:
		return 4
	default:
		return 8
	}
}

func (mc *machine) load(addr uint64, t ir.Type) cell {
	w := typeWidth(t)
	var bits uint64
	for i := 0; i < w; i++ {
		bits |= uint64(mc.mem[addr+uint64(i)]) << (8 * i)
	}
	switch t {
	case ir.F64:
		return cell{t: t, f: math.Float64frombits(bits)}
	case ir.Ptr:
		return cell{t: t, p: bits}
	case ir.I32:
		return cell{t: t, i: int64(int32(bits))}
	case ir.I1:
		return cell{t: t, i: int64(bits & 1)}
	default:
		return cell{t: t, i: int64(bits)}
	}
}

func (mc *machine) store(addr uint64, t ir.Type, v cell) {
	var bits uint64
	switch t {
	case ir.F64:
		bits = math.Float64bits(v.f)
	case ir.Ptr:
		bits = v.p
	default:
		bits = uint64(v.i)
	}
	w := typeWidth(t)
	for i := 0; i < w; i++ {
		mc.mem[addr+uint64(i)] = byte(bits >> (8 * i))
	}
}

// runtimeCall models the runtime library entry points the optimizer's
// signature registry knows about, just enough for differential testing.
func runtimeCall(name string, args []cell) (cell, error) {
	switch name {
	case "rt_print_i64", "rt_print_f64", "rt_print_str":
		return cell{}, nil // output is not part of the observed result
	case "rt_abs_i64":
		v := args[0].i
		if v < 0 {
			v = -v
		}
		return cell{t: ir.I64, i: v}, nil
	case "rt_min_i64":
		if args[0].i < args[1].i {
			return args[0], nil
		}
		return args[1], nil
	case "rt_max_i64":
		if args[0].i > args[1].i {
			return args[0], nil
		}
		return args[1], nil
	case "rt_sqrt":
		return cell{t: ir.F64, f: math.Sqrt(args[0].f)}, nil
	case "rt_pow":
		return cell{t: ir.F64, f: math.Pow(args[0].f, args[1].f)}, nil
	case "rt_floor":
		return cell{t: ir.F64, f: math.Floor(args[0].f)}, nil
	case "rt_ceil":
		return cell{t: ir.F64, f: math.Ceil(args[0].f)}, nil
	case "rt_str_len":
		return cell{t: ir.I64, i: int64(len(args[0].s))}, nil
	case "rt_str_eq":
		return cell{t: ir.I1, i: boolToInt(args[0].s == args[1].s)}, nil
	case "rt_concat":
		return cell{t: ir.Str, s: args[0].s + args[1].s}, nil
	}
	// Unknown externals are harmless no-ops returning zero; the optimizer
	// already treats them as worst-case ModRef.
	return cell{}, nil
}
