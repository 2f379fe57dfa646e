package transform

import (
	"viper/internal/ir"
)

// CFG simplification: constant-condition branch folding, unreachable block
// removal, empty-forwarder collapsing, and straight-line block merging.
// Runs sub-passes in a loop until none of them changes the function.
func runSimplifyCFG(fn *ir.Function) bool {
	changed := false
	for {
		round := false
		round = foldConstBranches(fn) || round
		round = removeUnreachable(fn) || round
		round = collapseForwarders(fn) || round
		round = mergeStraightLine(fn) || round
		if !round {
			break
		}
		changed = true
	}
	return changed
}

// foldConstBranches rewrites cbr with a literal condition into br, and
// switch.i32 with a literal scrutinee into a br to the matching arm.
func foldConstBranches(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		switch term.Op {
		case ir.CBr:
			cond := term.Operands[0]
			if cond.Kind != ir.ValueConstInt {
				continue
			}
			arm := 1 // false target
			if cond.Int != 0 {
				arm = 0
			}
			*term = ir.Instr{
				Op:     ir.Br,
				Labels: []string{term.Labels[arm]},
				BrArgs: [][]ir.Value{term.BrArgs[arm]},
				Loc:    term.Loc,
			}
			changed = true

		case ir.SwitchI32:
			scrut := term.SwitchScrutinee()
			if scrut.Kind != ir.ValueConstInt {
				continue
			}
			label := term.SwitchDefaultLabel()
			args := term.SwitchDefaultArgs()
			for i := 0; i < term.SwitchCaseCount(); i++ {
				if cv := term.SwitchCaseValue(i); cv.Kind == ir.ValueConstInt && int32(cv.Int) == int32(scrut.Int) {
					label = term.SwitchCaseLabel(i)
					args = term.SwitchCaseArgs(i)
					break
				}
			}
			*term = ir.Instr{
				Op:     ir.Br,
				Labels: []string{label},
				BrArgs: [][]ir.Value{args},
				Loc:    term.Loc,
			}
			changed = true
		}
	}
	return changed
}

// removeUnreachable drops blocks not reachable from the entry.
func removeUnreachable(fn *ir.Function) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	reachable := make(map[string]bool)
	var mark func(b *ir.BasicBlock)
	mark = func(b *ir.BasicBlock) {
		if reachable[b.Label] {
			return
		}
		reachable[b.Label] = true
		if term := b.Terminator(); term != nil {
			for _, label := range term.Labels {
				if succ := fn.FindBlock(label); succ != nil {
					mark(succ)
				}
			}
		}
	}
	mark(fn.Blocks[0])

	kept := fn.Blocks[:0]
	changed := false
	for _, b := range fn.Blocks {
		if reachable[b.Label] {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	fn.Blocks = kept
	return changed
}

// collapseForwarders removes blocks whose body is a lone unconditional
// branch. Predecessor edges are redirected to the forwarder's target with the
// forwarder's parameters substituted by the incoming edge arguments.
func collapseForwarders(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		if b == fn.Entry() || len(b.Instrs) != 1 {
			continue
		}
		term := b.Terminator()
		if term == nil || term.Op != ir.Br || term.Labels[0] == b.Label {
			continue
		}
		target := term.Labels[0]
		targetArgs := term.BrArgs[0]

		// Self-referential parameter threading is only valid when the
		// outgoing arguments are pure functions of the forwarder's params
		// and values defined elsewhere, which is all they can be here.
		paramIndex := make(map[uint32]int, len(b.Params))
		for i, p := range b.Params {
			paramIndex[p.ID] = i
		}

		rewired := false
		for _, pred := range fn.Blocks {
			if pred == b {
				continue
			}
			pterm := pred.Terminator()
			if pterm == nil {
				continue
			}
			for li, label := range pterm.Labels {
				if label != b.Label {
					continue
				}
				incoming := pterm.BrArgs[li]
				newArgs := make([]ir.Value, len(targetArgs))
				for ai, v := range targetArgs {
					if v.Kind == ir.ValueTemp {
						if pi, ok := paramIndex[v.ID]; ok {
							newArgs[ai] = incoming[pi]
							continue
						}
					}
					newArgs[ai] = v
				}
				pterm.Labels[li] = target
				pterm.BrArgs[li] = newArgs
				rewired = true
			}
		}
		if rewired {
			changed = true
		}
	}
	if changed {
		removeUnreachable(fn)
	}
	return changed
}

// mergeStraightLine merges B into its unique successor C when B ends in an
// unconditional branch and C has no other predecessors. C's parameters are
// replaced by B's branch arguments.
func mergeStraightLine(fn *ir.Function) bool {
	changed := false
	for {
		merged := false
		predCount := make(map[string]int)
		for _, b := range fn.Blocks {
			if term := b.Terminator(); term != nil {
				for _, label := range term.Labels {
					predCount[label]++
				}
			}
		}
		for _, b := range fn.Blocks {
			term := b.Terminator()
			if term == nil || term.Op != ir.Br {
				continue
			}
			succ := fn.FindBlock(term.Labels[0])
			if succ == nil || succ == b || succ == fn.Entry() || predCount[succ.Label] != 1 {
				continue
			}

			// Thread C's params with the branch arguments.
			subst := substMap{}
			for i, p := range succ.Params {
				subst[p.ID] = term.BrArgs[0][i]
			}

			b.Remove(len(b.Instrs) - 1)
			b.Instrs = append(b.Instrs, succ.Instrs...)
			b.Terminated = succ.Terminated
			fn.RemoveBlock(succ.Label)
			applySubst(fn, subst)

			merged = true
			changed = true
			break // block list changed; recompute predecessor counts
		}
		if !merged {
			break
		}
	}
	return changed
}
