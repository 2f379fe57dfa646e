package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer serializes a Module to the textual IL form. The output is stable
// under a parse/print round trip, which the optimizer relies on for golden
// tests and the differential harness.
type Printer struct {
	output strings.Builder
	names  map[uint32]string
}

// NewPrinter creates a new IL printer.
func NewPrinter() *Printer {
	return &Printer{}
}

// Print returns the textual form of a module.
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintFunction returns the textual form of a single function.
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

func (p *Printer) write(format string, args ...interface{}) {
	p.output.WriteString(fmt.Sprintf(format, args...))
}

func (p *Printer) printModule(m *Module) {
	p.write("il 0.1\n")
	if len(m.Externs) > 0 || len(m.Globals) > 0 {
		p.write("\n")
	}
	for _, ext := range m.Externs {
		params := make([]string, len(ext.Params))
		for i, t := range ext.Params {
			params[i] = t.String()
		}
		p.write("extern @%s(%s) -> %s%s\n", ext.Name, strings.Join(params, ", "), ext.Ret, funcAttrText(ext.Attrs))
	}
	for _, g := range m.Globals {
		p.write("global %s @%s = %s\n", g.Type, g.Name, strconv.Quote(g.Init))
	}
	for _, fn := range m.Functions {
		p.write("\n")
		p.printFunction(fn)
	}
}

func (p *Printer) printFunction(fn *Function) {
	p.names = resolveNames(fn)

	params := make([]string, len(fn.Params))
	for i, pr := range fn.Params {
		params[i] = p.paramText(pr)
	}
	p.write("func @%s(%s) -> %s%s {\n", fn.Name, strings.Join(params, ", "), fn.Ret, funcAttrText(fn.Attrs))

	for _, b := range fn.Blocks {
		if len(b.Params) == 0 {
			p.write("%s:\n", b.Label)
		} else {
			bp := make([]string, len(b.Params))
			for i, pr := range b.Params {
				bp[i] = p.paramText(pr)
			}
			p.write("%s(%s):\n", b.Label, strings.Join(bp, ", "))
		}
		for i := range b.Instrs {
			p.write("  %s\n", p.instrText(&b.Instrs[i]))
		}
	}
	p.write("}\n")
}

func (p *Printer) paramText(pr Param) string {
	s := fmt.Sprintf("%s: %s", p.tempName(pr.ID), pr.Type)
	if pr.Attrs.NoAlias {
		s += " noalias"
	}
	if pr.Attrs.ReadOnly {
		s += " readonly"
	}
	if pr.Attrs.Pure {
		s += " pure"
	}
	return s
}

func funcAttrText(a FuncAttrs) string {
	s := ""
	if a.Pure {
		s += " pure"
	}
	if a.ReadOnly {
		s += " readonly"
	}
	return s
}

func callAttrText(a CallAttrs) string {
	s := ""
	if a.Pure {
		s += " pure"
	}
	if a.ReadOnly {
		s += " readonly"
	}
	if a.NoThrow {
		s += " nothrow"
	}
	return s
}

// instrText renders one instruction.
func (p *Printer) instrText(in *Instr) string {
	var sb strings.Builder
	if id, ok := in.ResultID(); ok {
		sb.WriteString(p.tempName(id))
		sb.WriteString(" = ")
	}
	sb.WriteString(in.Op.String())

	info := in.Op.Info()
	if info.TypeInText && in.Type != Void {
		sb.WriteString(" ")
		sb.WriteString(in.Type.String())
	}

	switch in.Op {
	case Call:
		sb.WriteString(" @")
		sb.WriteString(in.Callee)
		sb.WriteString("(")
		sb.WriteString(p.valueList(in.Operands))
		sb.WriteString(")")
		sb.WriteString(callAttrText(in.CallAttr))
	case CallIndirect:
		sb.WriteString(" ")
		sb.WriteString(p.valueList(in.Operands))
		sb.WriteString(callAttrText(in.CallAttr))
	case Br:
		sb.WriteString(" ")
		sb.WriteString(p.targetText(in, 0))
	case CBr:
		sb.WriteString(" ")
		sb.WriteString(p.valueText(in.Operands[0]))
		sb.WriteString(", ")
		sb.WriteString(p.targetText(in, 0))
		sb.WriteString(", ")
		sb.WriteString(p.targetText(in, 1))
	case SwitchI32:
		sb.WriteString(" ")
		sb.WriteString(p.valueText(in.SwitchScrutinee()))
		sb.WriteString(", ")
		sb.WriteString(p.targetText(in, 0))
		for i := 0; i < in.SwitchCaseCount(); i++ {
			sb.WriteString(", ")
			sb.WriteString(p.valueText(in.SwitchCaseValue(i)))
			sb.WriteString(" -> ")
			sb.WriteString(p.targetText(in, 1+i))
		}
	case ResumeLabel:
		sb.WriteString(" ")
		sb.WriteString(p.targetText(in, 0))
	default:
		if len(in.Operands) > 0 {
			sb.WriteString(" ")
			sb.WriteString(p.valueList(in.Operands))
		}
	}
	return sb.String()
}

func (p *Printer) targetText(in *Instr, i int) string {
	s := "^" + in.Labels[i]
	if i < len(in.BrArgs) && len(in.BrArgs[i]) > 0 {
		s += "(" + p.valueList(in.BrArgs[i]) + ")"
	}
	return s
}

func (p *Printer) valueList(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = p.valueText(v)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) valueText(v Value) string {
	if v.Kind == ValueTemp {
		return p.tempName(v.ID)
	}
	return v.String()
}

func (p *Printer) tempName(id uint32) string {
	if p.names != nil {
		if n, ok := p.names[id]; ok {
			return "%" + n
		}
	}
	return fmt.Sprintf("%%t%d", id)
}

// resolveNames assigns a unique textual name to every temp id in a function,
// preferring the recorded value name and falling back to t<id>.
func resolveNames(fn *Function) map[uint32]string {
	names := make(map[uint32]string)
	taken := make(map[string]bool)
	assign := func(id uint32) {
		if _, done := names[id]; done {
			return
		}
		n := fn.ValueName(id)
		if n == "" || taken[n] {
			n = fmt.Sprintf("t%d", id)
		}
		if taken[n] {
			n = fmt.Sprintf("%s.%d", n, id)
		}
		names[id] = n
		taken[n] = true
	}
	for _, pr := range fn.Params {
		assign(pr.ID)
	}
	for _, b := range fn.Blocks {
		for _, pr := range b.Params {
			assign(pr.ID)
		}
		for i := range b.Instrs {
			if id, ok := b.Instrs[i].ResultID(); ok {
				assign(id)
			}
		}
	}
	// Operand temps without a definition still need a stable rendering.
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			for _, v := range b.Instrs[i].Operands {
				if v.Kind == ValueTemp {
					assign(v.ID)
				}
			}
			for _, args := range b.Instrs[i].BrArgs {
				for _, v := range args {
					if v.Kind == ValueTemp {
						assign(v.ID)
					}
				}
			}
		}
	}
	return names
}
