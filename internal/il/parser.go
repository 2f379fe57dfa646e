package il

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"

	"viper/internal/ir"
)

// Parse reads the textual IL form and lowers it to an ir.Module. Lowering is
// two-pass per function: all definitions (parameters, block parameters,
// instruction results) are assigned dense temp ids first, then operands are
// resolved, so blocks may reference temps defined in textually later blocks.

var ilParser = participle.MustBuild[ilModule](
	participle.Lexer(ILLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// Parse parses source into a module. path is used in error positions only.
func Parse(path, source string) (*ir.Module, error) {
	ast, err := ilParser.ParseString(path, source)
	if err != nil {
		return nil, err
	}
	m := &ir.Module{}
	for _, decl := range ast.Decls {
		switch {
		case decl.Extern != nil:
			ext, err := lowerExtern(decl.Extern)
			if err != nil {
				return nil, err
			}
			m.AddExtern(ext)
		case decl.Global != nil:
			g, err := lowerGlobal(decl.Global)
			if err != nil {
				return nil, err
			}
			m.AddGlobal(g)
		case decl.Func != nil:
			fn, err := lowerFunction(decl.Func)
			if err != nil {
				return nil, err
			}
			m.AddFunction(fn)
		}
	}
	return m, nil
}

func lowerType(name string) (ir.Type, error) {
	t, ok := ir.ParseTypeName(name)
	if !ok {
		return ir.Void, errors.Errorf("unknown type %q", name)
	}
	return t, nil
}

func lowerExtern(ae *ilExtern) (ir.Extern, error) {
	ext := ir.Extern{Name: strings.TrimPrefix(ae.Name, "@")}
	ret, err := lowerType(ae.Ret)
	if err != nil {
		return ext, errors.Wrapf(err, "extern @%s", ext.Name)
	}
	ext.Ret = ret
	for _, p := range ae.Params {
		t, err := lowerType(p)
		if err != nil {
			return ext, errors.Wrapf(err, "extern @%s", ext.Name)
		}
		ext.Params = append(ext.Params, t)
	}
	for _, a := range ae.Attrs {
		switch a {
		case "pure":
			ext.Attrs.Pure = true
		case "readonly":
			ext.Attrs.ReadOnly = true
		}
	}
	return ext, nil
}

func lowerGlobal(ag *ilGlobal) (ir.Global, error) {
	t, err := lowerType(ag.Type)
	if err != nil {
		return ir.Global{}, errors.Wrapf(err, "global %s", ag.Name)
	}
	return ir.Global{Name: strings.TrimPrefix(ag.Name, "@"), Type: t, Init: ag.Init}, nil
}

// funcLowering carries the per-function name table.
type funcLowering struct {
	fn    *ir.Function
	names map[string]uint32
}

func (fl *funcLowering) define(name string, id uint32) error {
	key := strings.TrimPrefix(name, "%")
	if _, dup := fl.names[key]; dup {
		return errors.Errorf("func @%s: temp %%%s defined twice", fl.fn.Name, key)
	}
	fl.names[key] = id
	fl.fn.SetValueName(id, key)
	return nil
}

func (fl *funcLowering) resolve(name string) (uint32, error) {
	key := strings.TrimPrefix(name, "%")
	id, ok := fl.names[key]
	if !ok {
		return 0, errors.Errorf("func @%s: reference to undefined temp %%%s", fl.fn.Name, key)
	}
	return id, nil
}

func lowerParam(fl *funcLowering, ap *ilParam, id uint32) (ir.Param, error) {
	t, err := lowerType(ap.Type)
	if err != nil {
		return ir.Param{}, err
	}
	p := ir.Param{Name: strings.TrimPrefix(ap.Name, "%"), Type: t, ID: id}
	for _, a := range ap.Attrs {
		switch a {
		case "noalias":
			p.Attrs.NoAlias = true
		case "readonly":
			p.Attrs.ReadOnly = true
		case "pure":
			p.Attrs.Pure = true
		}
	}
	if err := fl.define(ap.Name, id); err != nil {
		return ir.Param{}, err
	}
	return p, nil
}

func lowerFunction(af *ilFunc) (*ir.Function, error) {
	fn := &ir.Function{Name: strings.TrimPrefix(af.Name, "@")}
	ret, err := lowerType(af.Ret)
	if err != nil {
		return nil, errors.Wrapf(err, "func @%s", fn.Name)
	}
	fn.Ret = ret
	for _, a := range af.Attrs {
		switch a {
		case "pure":
			fn.Attrs.Pure = true
		case "readonly":
			fn.Attrs.ReadOnly = true
		}
	}

	fl := &funcLowering{fn: fn, names: make(map[string]uint32)}

	for i, ap := range af.Params {
		p, err := lowerParam(fl, ap, uint32(i))
		if err != nil {
			return nil, errors.Wrapf(err, "func @%s", fn.Name)
		}
		fn.Params = append(fn.Params, p)
	}

	// Pass 1: create blocks and assign ids to every definition.
	resultIDs := make(map[*ilInstr]uint32)
	for _, ab := range af.Blocks {
		b := fn.AddBlock(ab.Label)
		for _, ap := range ab.Params {
			p, err := lowerParam(fl, ap, fn.FreshTempID())
			if err != nil {
				return nil, errors.Wrapf(err, "block %s", ab.Label)
			}
			b.Params = append(b.Params, p)
		}
		for _, ai := range ab.Instrs {
			if ai.Result != nil {
				id := fn.FreshTempID()
				if err := fl.define(*ai.Result, id); err != nil {
					return nil, errors.Wrapf(err, "block %s", ab.Label)
				}
				resultIDs[ai] = id
			}
		}
	}

	// Pass 2: lower instructions with the complete name table.
	for _, ab := range af.Blocks {
		b := fn.FindBlock(ab.Label)
		for _, ai := range ab.Instrs {
			in, err := lowerInstr(fl, ai, resultIDs)
			if err != nil {
				return nil, errors.Wrapf(err, "func @%s, block %s", fn.Name, ab.Label)
			}
			b.Append(in)
		}
	}
	return fn, nil
}

// floatOperandOps lists opcodes whose integer-literal operands are float
// literals written without a decimal point.
var floatOperandOps = map[ir.Opcode]bool{
	ir.FAdd: true, ir.FSub: true, ir.FMul: true, ir.FDiv: true,
	ir.FCmpEQ: true, ir.FCmpNE: true, ir.FCmpLT: true, ir.FCmpLE: true,
	ir.FCmpGT: true, ir.FCmpGE: true,
	ir.CastFpToSiRteChk: true, ir.CastFpToUiRteChk: true,
	ir.Fptosi: true,
}

func lowerInstr(fl *funcLowering, ai *ilInstr, resultIDs map[*ilInstr]uint32) (ir.Instr, error) {
	op, ok := ir.OpcodeByName(ai.Op)
	if !ok {
		return ir.Instr{}, errors.Errorf("unknown opcode %q", ai.Op)
	}
	info := op.Info()
	in := ir.Instr{Op: op}

	if ai.Type != nil {
		t, err := lowerType(*ai.Type)
		if err != nil {
			return ir.Instr{}, err
		}
		in.Type = t
	} else if info.FixedResult {
		in.Type = info.ResultType
	}

	if id, ok := resultIDs[ai]; ok {
		if !info.HasResult {
			return ir.Instr{}, errors.Errorf("%s cannot produce a result", op)
		}
		in.SetResult(id)
	}

	for _, a := range ai.Attrs {
		switch a {
		case "pure":
			in.CallAttr.Pure = true
		case "readonly":
			in.CallAttr.ReadOnly = true
		case "nothrow":
			in.CallAttr.NoThrow = true
		}
	}

	asFloat := floatOperandOps[op]
	value := func(av *ilValue) (ir.Value, error) {
		return fl.lowerValue(av, asFloat)
	}
	target := func(at *ilTarget) error {
		in.Labels = append(in.Labels, strings.TrimPrefix(at.Label, "^"))
		args := make([]ir.Value, 0, len(at.Args))
		for _, av := range at.Args {
			v, err := value(av)
			if err != nil {
				return err
			}
			args = append(args, v)
		}
		in.BrArgs = append(in.BrArgs, args)
		return nil
	}

	switch op {
	case ir.Br, ir.ResumeLabel:
		if len(ai.Operands) != 1 || ai.Operands[0].Target == nil {
			return ir.Instr{}, errors.Errorf("%s expects a single ^target", op)
		}
		if err := target(ai.Operands[0].Target); err != nil {
			return ir.Instr{}, err
		}

	case ir.CBr:
		if len(ai.Operands) != 3 || ai.Operands[0].Value == nil ||
			ai.Operands[1].Target == nil || ai.Operands[2].Target == nil {
			return ir.Instr{}, errors.New("cbr expects a condition and two ^targets")
		}
		cond, err := value(ai.Operands[0].Value)
		if err != nil {
			return ir.Instr{}, err
		}
		in.Operands = []ir.Value{cond}
		if err := target(ai.Operands[1].Target); err != nil {
			return ir.Instr{}, err
		}
		if err := target(ai.Operands[2].Target); err != nil {
			return ir.Instr{}, err
		}

	case ir.SwitchI32:
		if len(ai.Operands) < 2 || ai.Operands[0].Value == nil || ai.Operands[1].Target == nil {
			return ir.Instr{}, errors.New("switch.i32 expects a scrutinee and a ^default")
		}
		scrut, err := value(ai.Operands[0].Value)
		if err != nil {
			return ir.Instr{}, err
		}
		in.Operands = []ir.Value{scrut}
		if err := target(ai.Operands[1].Target); err != nil {
			return ir.Instr{}, err
		}
		for _, opnd := range ai.Operands[2:] {
			if opnd.Case == nil {
				return ir.Instr{}, errors.New("switch.i32 arms must be of the form value -> ^target")
			}
			in.Operands = append(in.Operands, ir.ConstInt(opnd.Case.Value))
			if err := target(opnd.Case.Target); err != nil {
				return ir.Instr{}, err
			}
		}

	case ir.Call:
		if len(ai.Operands) != 1 || ai.Operands[0].Call == nil {
			return ir.Instr{}, errors.New("call expects @callee(args)")
		}
		c := ai.Operands[0].Call
		in.Callee = strings.TrimPrefix(c.Callee, "@")
		for _, av := range c.Args {
			v, err := value(av)
			if err != nil {
				return ir.Instr{}, err
			}
			in.Operands = append(in.Operands, v)
		}

	default:
		for _, opnd := range ai.Operands {
			if opnd.Value == nil {
				return ir.Instr{}, errors.Errorf("%s takes plain value operands", op)
			}
			v, err := value(opnd.Value)
			if err != nil {
				return ir.Instr{}, err
			}
			in.Operands = append(in.Operands, v)
		}
	}

	if op == ir.Ret {
		if len(in.Operands) > 0 {
			in.Type = fl.fn.Ret
			if fl.fn.Ret == ir.F64 {
				in.Operands[0] = intToFloat(in.Operands[0])
			}
		}
	}
	if op == ir.Store && in.Type == ir.Void {
		return ir.Instr{}, errors.New("store requires an explicit value type")
	}
	if op == ir.Store && in.Type == ir.F64 && len(in.Operands) == 2 {
		in.Operands[1] = intToFloat(in.Operands[1])
	}

	if n := len(in.Operands); n < info.MinOperands ||
		(info.MaxOperands != ir.VariadicOperands && n > info.MaxOperands) {
		return ir.Instr{}, errors.Errorf("%s: wrong operand count %d", op, n)
	}
	for i, kind := range info.OperandKind {
		if i >= len(in.Operands) {
			break
		}
		switch kind {
		case ir.ParseIntLit:
			if in.Operands[i].Kind != ir.ValueConstInt {
				return ir.Instr{}, errors.Errorf("%s: operand %d must be an integer literal", op, i)
			}
		case ir.ParseGlobal:
			if in.Operands[i].Kind != ir.ValueGlobalAddr {
				return ir.Instr{}, errors.Errorf("%s: operand %d must be a global", op, i)
			}
		case ir.ParseStrLit:
			if in.Operands[i].Kind != ir.ValueConstStr {
				return ir.Instr{}, errors.Errorf("%s: operand %d must be a string literal", op, i)
			}
		}
	}
	return in, nil
}

func intToFloat(v ir.Value) ir.Value {
	if v.Kind == ir.ValueConstInt && !v.IsBool {
		return ir.ConstFloat(float64(v.Int))
	}
	return v
}

func (fl *funcLowering) lowerValue(av *ilValue, asFloat bool) (ir.Value, error) {
	switch {
	case av.Temp != nil:
		id, err := fl.resolve(*av.Temp)
		if err != nil {
			return ir.Value{}, err
		}
		return ir.Temp(id), nil
	case av.Global != nil:
		return ir.GlobalAddrOf(strings.TrimPrefix(*av.Global, "@")), nil
	case av.Float != nil:
		return ir.ConstFloat(*av.Float), nil
	case av.Int != nil:
		if asFloat {
			return ir.ConstFloat(float64(*av.Int)), nil
		}
		return ir.ConstInt(*av.Int), nil
	case av.Str != nil:
		return ir.ConstStr(*av.Str), nil
	case av.True:
		return ir.ConstBool(true), nil
	case av.False:
		return ir.ConstBool(false), nil
	case av.Null:
		return ir.Null(), nil
	}
	return ir.Value{}, fmt.Errorf("empty value")
}
