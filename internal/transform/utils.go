package transform

import (
	"viper/internal/ir"
)

// Shared rewriting helpers. Substitutions map temp ids to replacement values;
// substMap.resolve follows chains so passes can record replacements in any order
// and apply them once.

type substMap map[uint32]ir.Value

func (s substMap) resolve(v ir.Value) ir.Value {
	for v.Kind == ir.ValueTemp {
		next, ok := s[v.ID]
		if !ok {
			return v
		}
		v = next
	}
	return v
}

// applySubst rewrites every operand and branch argument in fn through s.
// Returns true when anything changed.
func applySubst(fn *ir.Function, s substMap) bool {
	if len(s) == 0 {
		return false
	}
	changed := false
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			for oi, v := range in.Operands {
				if nv := s.resolve(v); !nv.Equal(v) {
					in.Operands[oi] = nv
					changed = true
				}
			}
			for ai := range in.BrArgs {
				for vi, v := range in.BrArgs[ai] {
					if nv := s.resolve(v); !nv.Equal(v) {
						in.BrArgs[ai][vi] = nv
						changed = true
					}
				}
			}
		}
	}
	return changed
}

// replaceUses rewrites all uses of temp id with v.
func replaceUses(fn *ir.Function, id uint32, v ir.Value) bool {
	return applySubst(fn, substMap{id: v})
}

// collectUsedTemps returns the set of temp ids referenced by any operand or
// branch argument in fn.
func collectUsedTemps(fn *ir.Function) map[uint32]bool {
	used := make(map[uint32]bool)
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			for _, v := range in.Operands {
				if v.Kind == ir.ValueTemp {
					used[v.ID] = true
				}
			}
			for _, args := range in.BrArgs {
				for _, v := range args {
					if v.Kind == ir.ValueTemp {
						used[v.ID] = true
					}
				}
			}
		}
	}
	return used
}

// defBlocks maps every temp id to the block defining it (nil for function
// parameters).
func defBlocks(fn *ir.Function) map[uint32]*ir.BasicBlock {
	defs := make(map[uint32]*ir.BasicBlock)
	for _, p := range fn.Params {
		defs[p.ID] = nil
	}
	for _, b := range fn.Blocks {
		for _, p := range b.Params {
			defs[p.ID] = b
		}
		for i := range b.Instrs {
			if id, ok := b.Instrs[i].ResultID(); ok {
				defs[id] = b
			}
		}
	}
	return defs
}

// isPure reports whether an instruction can be removed or duplicated freely:
// no side effects, no memory access, not a terminator.
func isPure(in *ir.Instr) bool {
	info := in.Op.Info()
	return !info.SideEffects && info.Mem == ir.MemNone && !info.Terminator
}
