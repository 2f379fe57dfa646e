package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// Promotion of allocas to SSA values. An alloca qualifies when its address is
// only ever the pointer operand of direct loads and stores — never stored
// itself, never a call argument, never offset. Block parameters are inserted
// at the iterated dominance frontier of the stores, and a dominator-tree
// renaming walk threads the current value into every load and branch edge.
// A load with no reaching store reads the zero value of its type.
func runMem2Reg(fn *ir.Function, cfg *analysis.CFGInfo, dom *analysis.DomTree) bool {
	promotable := findPromotable(fn)
	if len(promotable) == 0 {
		return false
	}

	df := analysis.DominanceFrontiers(cfg, dom)

	// Iterated dominance frontier of each alloca's store blocks.
	type phiSlot struct {
		alloca  uint32
		paramID uint32
	}
	phiSlots := make(map[*ir.BasicBlock][]phiSlot)

	order := make([]uint32, 0, len(promotable))
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if id, ok := b.Instrs[i].ResultID(); ok {
				if _, isProm := promotable[id]; isProm && b.Instrs[i].Op == ir.Alloca {
					order = append(order, id)
				}
			}
		}
	}

	for _, a := range order {
		ty := promotable[a]

		defs := make(map[*ir.BasicBlock]bool)
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				in := &b.Instrs[i]
				if in.Op == ir.Store && in.Operands[0].Equal(ir.Temp(a)) {
					defs[b] = true
				}
			}
		}

		placed := make(map[*ir.BasicBlock]bool)
		worklist := make([]*ir.BasicBlock, 0, len(defs))
		for b := range defs {
			worklist = append(worklist, b)
		}
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, f := range df[b] {
				if placed[f] {
					continue
				}
				placed[f] = true

				pid := fn.FreshTempID()
				name := fn.ValueName(a)
				if name == "" {
					name = "m2r"
				}
				fn.SetValueName(pid, name+".v")
				f.Params = append(f.Params, ir.Param{Name: name + ".v", Type: ty, ID: pid})
				phiSlots[f] = append(phiSlots[f], phiSlot{alloca: a, paramID: pid})

				if !defs[f] {
					defs[f] = true
					worklist = append(worklist, f)
				}
			}
		}
	}

	// Renaming walk.
	subst := substMap{}
	visited := make(map[*ir.BasicBlock]bool)

	processBlock := func(b *ir.BasicBlock, cur map[uint32]ir.Value) {
		for _, slot := range phiSlots[b] {
			cur[slot.alloca] = ir.Temp(slot.paramID)
		}
		for i := 0; i < len(b.Instrs); i++ {
			in := &b.Instrs[i]
			rewriteOperands(in, subst)

			switch in.Op {
			case ir.Alloca:
				if id, ok := in.ResultID(); ok {
					if _, isProm := promotable[id]; isProm {
						b.Remove(i)
						i--
					}
				}
			case ir.Load:
				ptr := in.Operands[0]
				if ptr.Kind == ir.ValueTemp {
					if ty, isProm := promotable[ptr.ID]; isProm {
						id, _ := in.ResultID()
						v, ok := cur[ptr.ID]
						if !ok {
							v = zeroValue(ty)
						}
						subst[id] = v
						b.Remove(i)
						i--
					}
				}
			case ir.Store:
				ptr := in.Operands[0]
				if ptr.Kind == ir.ValueTemp {
					if _, isProm := promotable[ptr.ID]; isProm {
						cur[ptr.ID] = in.Operands[1]
						b.Remove(i)
						i--
					}
				}
			}
		}

		// Feed the phi parameters of every successor.
		term := b.Terminator()
		if term == nil {
			return
		}
		for li, label := range term.Labels {
			target := fn.FindBlock(label)
			if target == nil {
				continue
			}
			for _, slot := range phiSlots[target] {
				v, ok := cur[slot.alloca]
				if !ok {
					v = zeroValue(promotable[slot.alloca])
				}
				term.BrArgs[li] = append(term.BrArgs[li], v)
			}
		}
	}

	var walk func(b *ir.BasicBlock, cur map[uint32]ir.Value)
	walk = func(b *ir.BasicBlock, cur map[uint32]ir.Value) {
		visited[b] = true
		processBlock(b, cur)
		for _, child := range dom.Children[b] {
			next := make(map[uint32]ir.Value, len(cur))
			for k, v := range cur {
				next[k] = v
			}
			walk(child, next)
		}
	}
	walk(fn.Entry(), make(map[uint32]ir.Value))

	// Unreachable blocks still mention the promoted allocas; scrub them with
	// no reaching definitions so the temps disappear everywhere.
	for _, b := range fn.Blocks {
		if !visited[b] {
			processBlock(b, make(map[uint32]ir.Value))
		}
	}

	applySubst(fn, subst)
	return true
}

// findPromotable maps qualifying alloca temp ids to their stored value type.
func findPromotable(fn *ir.Function) map[uint32]ir.Type {
	allocas := make(map[uint32]ir.Type)
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Op == ir.Alloca {
				if id, ok := in.ResultID(); ok {
					allocas[id] = ir.Void // type resolved from accesses
				}
			}
		}
	}
	if len(allocas) == 0 {
		return nil
	}

	disqualify := func(id uint32) { delete(allocas, id) }

	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			for oi, v := range in.Operands {
				if v.Kind != ir.ValueTemp {
					continue
				}
				ty, isAlloca := allocas[v.ID]
				if !isAlloca {
					continue
				}
				switch {
				case in.Op == ir.Load && oi == 0:
					if ty == ir.Void {
						allocas[v.ID] = in.Type
					} else if ty != in.Type {
						disqualify(v.ID)
					}
				case in.Op == ir.Store && oi == 0:
					if ty == ir.Void {
						allocas[v.ID] = in.Type
					} else if ty != in.Type {
						disqualify(v.ID)
					}
				default:
					disqualify(v.ID)
				}
			}
			for _, args := range in.BrArgs {
				for _, v := range args {
					if v.Kind == ir.ValueTemp {
						if _, isAlloca := allocas[v.ID]; isAlloca {
							disqualify(v.ID)
						}
					}
				}
			}
		}
	}

	// An alloca never loaded or stored has no known type; DCE owns it.
	for id, ty := range allocas {
		if ty == ir.Void {
			delete(allocas, id)
		}
	}
	return allocas
}

func zeroValue(t ir.Type) ir.Value {
	switch t {
	case ir.I1:
		return ir.ConstBool(false)
	case ir.F64:
		return ir.ConstFloat(0)
	case ir.Ptr:
		return ir.Null()
	case ir.Str:
		return ir.ConstStr("")
	default:
		return ir.ConstInt(0)
	}
}
