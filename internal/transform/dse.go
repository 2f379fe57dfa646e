package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// Dead-store elimination in three tiers.
//
// Tier 1 (intra-block): a store overwritten by a MustAlias store later in the
// same block dies unless a load or a memory-touching call intervenes.
//
// Tier 2 (cross-block BFS): retained for callers that want the conservative
// treatment where every Mod/ModRef call blocks elimination. The shipped pass
// does not run it; MemorySSA supersedes it.
//
// Tier 3 (MemorySSA): consults the precomputed dead-store predicate, which
// treats calls as transparent for non-escaping allocas. This removes stores
// tier 2 must keep — the call-barrier pattern.
func runDSE(fn *ir.Function, aa *analysis.BasicAA, mssa *analysis.MemorySSA) bool {
	changed := runIntraBlockDSE(fn, aa)

	// MemorySSA indices refer to the pre-tier-1 layout only if nothing was
	// removed; recompute when tier 1 fired.
	if changed {
		aa = analysis.NewBasicAA(fn, nil, nil)
		mssa = analysis.ComputeMemorySSA(fn, aa)
	}
	changed = runMemorySSADSE(fn, mssa) || changed
	return changed
}

// runIntraBlockDSE is tier 1.
func runIntraBlockDSE(fn *ir.Function, aa *analysis.BasicAA) bool {
	changed := false
	for _, b := range fn.Blocks {
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			in := &b.Instrs[i]
			if in.Op != ir.Store {
				continue
			}
			ptr := in.Operands[0]
			size := analysis.TypeSizeBytes(in.Type)

			for j := i + 1; j < len(b.Instrs); j++ {
				next := &b.Instrs[j]
				if next.Op == ir.Load {
					break
				}
				if next.Op.IsCall() {
					if aa.ModRef(next) != analysis.NoModRef {
						break
					}
					continue
				}
				if next.Op == ir.Store {
					if aa.AliasSized(next.Operands[0], ptr, analysis.TypeSizeBytes(next.Type), size) == analysis.MustAlias {
						b.Remove(i)
						changed = true
						break
					}
					continue
				}
			}
		}
	}
	return changed
}

// runCrossBlockDSE is tier 2, the legacy conservative BFS. A store to a
// non-escaping alloca dies when every successor path reaches a MustAlias
// overwrite or a return before any possibly-aliasing load; any Mod or ModRef
// call keeps the store alive.
func runCrossBlockDSE(fn *ir.Function, aa *analysis.BasicAA) bool {
	nonEsc := analysis.NonEscapingAllocas(fn)
	changed := false

	for _, b := range fn.Blocks {
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			in := &b.Instrs[i]
			if in.Op != ir.Store {
				continue
			}
			ptr := in.Operands[0]
			if ptr.Kind != ir.ValueTemp || !nonEsc[ptr.ID] {
				continue
			}
			size := analysis.TypeSizeBytes(in.Type)

			// The rest of this block must be clean before looking across.
			clean := true
			for j := i + 1; j < len(b.Instrs); j++ {
				next := &b.Instrs[j]
				if blocksStoreLiveness(next, ptr, size, aa) {
					clean = false
					break
				}
				if next.Op == ir.Store &&
					aa.AliasSized(next.Operands[0], ptr, analysis.TypeSizeBytes(next.Type), size) == analysis.MustAlias {
					clean = false // tier 1's case
					break
				}
			}
			if !clean {
				continue
			}

			if allPathsKillStore(fn, b, ptr, size, aa) {
				b.Remove(i)
				changed = true
			}
		}
	}
	return changed
}

// blocksStoreLiveness reports whether in keeps an earlier store to ptr alive
// under the conservative (tier 2) call model.
func blocksStoreLiveness(in *ir.Instr, ptr ir.Value, size uint32, aa *analysis.BasicAA) bool {
	if in.Op == ir.Load {
		return aa.AliasSized(in.Operands[0], ptr, analysis.TypeSizeBytes(in.Type), size) != analysis.NoAlias
	}
	if in.Op.IsCall() {
		mr := aa.ModRef(in)
		return mr == analysis.Mod || mr == analysis.ModRef
	}
	return false
}

func allPathsKillStore(fn *ir.Function, from *ir.BasicBlock, ptr ir.Value, size uint32, aa *analysis.BasicAA) bool {
	term := from.Terminator()
	if term == nil || len(term.Labels) == 0 {
		return false
	}
	visited := make(map[string]bool)
	worklist := append([]string(nil), term.Labels...)

	for len(worklist) > 0 {
		label := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if visited[label] {
			continue
		}
		visited[label] = true

		succ := fn.FindBlock(label)
		if succ == nil {
			return false
		}

		killed := false
		for k := range succ.Instrs {
			next := &succ.Instrs[k]
			if blocksStoreLiveness(next, ptr, size, aa) {
				return false
			}
			if next.Op == ir.Store &&
				aa.AliasSized(next.Operands[0], ptr, analysis.TypeSizeBytes(next.Type), size) == analysis.MustAlias {
				killed = true
				break
			}
		}
		if killed {
			continue
		}

		st := succ.Terminator()
		if st != nil && st.Op == ir.Ret {
			continue
		}
		if st != nil {
			for _, l := range st.Labels {
				if !visited[l] {
					worklist = append(worklist, l)
				}
			}
		}
	}
	return true
}

// runMemorySSADSE is tier 3.
func runMemorySSADSE(fn *ir.Function, mssa *analysis.MemorySSA) bool {
	type deadStore struct {
		block *ir.BasicBlock
		index int
	}
	var dead []deadStore
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if b.Instrs[i].Op == ir.Store && mssa.IsDeadStore(b, i) {
				dead = append(dead, deadStore{b, i})
			}
		}
	}
	// Remove back-to-front per block so indices stay valid.
	for i := len(dead) - 1; i >= 0; i-- {
		dead[i].block.Remove(dead[i].index)
	}
	return len(dead) > 0
}
