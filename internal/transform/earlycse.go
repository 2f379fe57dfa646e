package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// Early common-subexpression elimination. Walks the dominator tree in
// preorder carrying a table of available expressions; each child sees exactly
// its dominating ancestors' entries, so a hit is always safe to reuse.
// Memory and trapping opcodes never enter the table.
func runEarlyCSE(fn *ir.Function, dom *analysis.DomTree) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	subst := substMap{}

	var walk func(b *ir.BasicBlock, avail map[ValueKey]ir.Value)
	walk = func(b *ir.BasicBlock, avail map[ValueKey]ir.Value) {
		for i := 0; i < len(b.Instrs); i++ {
			in := &b.Instrs[i]
			rewriteOperands(in, subst)

			key, ok := MakeValueKey(in)
			if !ok {
				continue
			}
			if existing, hit := avail[key]; hit {
				id, _ := in.ResultID()
				subst[id] = existing
				b.Remove(i)
				i--
				continue
			}
			id, _ := in.ResultID()
			avail[key] = ir.Temp(id)
		}

		for _, child := range dom.Children[b] {
			walk(child, cloneExprTable(avail))
		}
	}

	walk(fn.Entry(), make(map[ValueKey]ir.Value))

	changed := len(subst) > 0
	applySubst(fn, subst)
	return changed
}

func cloneExprTable(m map[ValueKey]ir.Value) map[ValueKey]ir.Value {
	c := make(map[ValueKey]ir.Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// rewriteOperands applies the running substitution to one instruction so the
// canonical key sees post-replacement operands.
func rewriteOperands(in *ir.Instr, s substMap) {
	for i, v := range in.Operands {
		in.Operands[i] = s.resolve(v)
	}
	for ai := range in.BrArgs {
		for vi, v := range in.BrArgs[ai] {
			in.BrArgs[ai][vi] = s.resolve(v)
		}
	}
}
