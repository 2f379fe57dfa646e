package transform

import (
	"strings"

	"viper/internal/analysis"
	"viper/internal/ir"
)

// Check optimization. The trapping check opcodes (idx.chk, the .chk0 family,
// narrowing and rounding casts) are side-effecting, so the generic CSE passes
// leave them alone; this pass owns the three transformations that are still
// sound:
//
//  1. A check identical to one that dominates it traps iff the first one
//     does, so the dominated copy is deleted and its users redirected.
//  2. A header check over loop-invariant operands hoists to the preheader —
//     it would have run on loop entry anyway.
//  3. A check over literals that provably passes folds away: idx.chk and the
//     narrowing casts become their input value, and a .chk0 division with a
//     non-zero literal divisor becomes the unchecked division. Rounding
//     casts are not folded.
func runCheckOpt(fn *ir.Function, dom *analysis.DomTree, li *analysis.LoopInfo) bool {
	changed := false
	changed = foldSafeChecks(fn) || changed
	changed = removeDominatedChecks(fn, dom) || changed
	changed = hoistInvariantChecks(fn, li) || changed
	return changed
}

// checkKey identifies a check by opcode, type, and exact operand sequence.
func checkKey(in *ir.Instr) (string, bool) {
	if !in.Op.IsCheck() {
		return "", false
	}
	parts := make([]string, 0, len(in.Operands)+2)
	parts = append(parts, in.Op.String(), in.Type.String())
	for _, v := range in.Operands {
		parts = append(parts, encodeValue(v))
	}
	return strings.Join(parts, "|"), true
}

// removeDominatedChecks deletes a check whose opcode, type, and operands
// exactly match a dominating check, redirecting uses to the first result.
func removeDominatedChecks(fn *ir.Function, dom *analysis.DomTree) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	subst := substMap{}

	var walk func(b *ir.BasicBlock, avail map[string]ir.Value)
	walk = func(b *ir.BasicBlock, avail map[string]ir.Value) {
		for i := 0; i < len(b.Instrs); i++ {
			in := &b.Instrs[i]
			rewriteOperands(in, subst)
			key, ok := checkKey(in)
			if !ok {
				continue
			}
			if existing, hit := avail[key]; hit {
				if id, hasResult := in.ResultID(); hasResult {
					subst[id] = existing
				}
				b.Remove(i)
				i--
				continue
			}
			if id, hasResult := in.ResultID(); hasResult {
				avail[key] = ir.Temp(id)
			}
		}
		for _, child := range dom.Children[b] {
			next := make(map[string]ir.Value, len(avail))
			for k, v := range avail {
				next[k] = v
			}
			walk(child, next)
		}
	}
	walk(fn.Entry(), make(map[string]ir.Value))

	changed := len(subst) > 0
	applySubst(fn, subst)
	return changed
}

// hoistInvariantChecks moves header checks with loop-invariant operands into
// the preheader.
func hoistInvariantChecks(fn *ir.Function, li *analysis.LoopInfo) bool {
	cfg := analysis.BuildCFG(fn)
	defs := defBlocks(fn)
	changed := false

	for _, loop := range li.Loops {
		pre := preheaderOf(fn, cfg, loop)
		if pre == nil {
			continue
		}
		header := cfg.BlockByLabel(loop.Header)

		invariant := func(v ir.Value) bool {
			if v.Kind != ir.ValueTemp {
				return true
			}
			db, known := defs[v.ID]
			return known && (db == nil || !loop.Contains(db.Label))
		}

		for i := 0; i < len(header.Instrs); i++ {
			in := &header.Instrs[i]
			if !in.Op.IsCheck() {
				continue
			}
			ok := true
			for _, v := range in.Operands {
				if !invariant(v) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			moved := in.Clone()
			if id, has := moved.ResultID(); has {
				defs[id] = pre
			}
			header.Remove(i)
			pre.Insert(len(pre.Instrs)-1, moved)
			i--
			changed = true
		}
	}
	return changed
}

// foldSafeChecks replaces checks whose literal operands provably pass.
func foldSafeChecks(fn *ir.Function) bool {
	subst := substMap{}
	changed := false
	for _, b := range fn.Blocks {
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			in := &b.Instrs[i]
			if !in.Op.IsCheck() {
				continue
			}
			switch in.Op {
			case ir.IdxChk:
				idx, lo, hi := in.Operands[0], in.Operands[1], in.Operands[2]
				if idx.Kind == ir.ValueConstInt && lo.Kind == ir.ValueConstInt && hi.Kind == ir.ValueConstInt &&
					idx.Int >= lo.Int && idx.Int < hi.Int {
					if id, ok := in.ResultID(); ok {
						subst[id] = idx
					}
					b.Remove(i)
				}
			case ir.SDivChk0, ir.UDivChk0, ir.SRemChk0, ir.URemChk0:
				if d := in.Operands[1]; d.Kind == ir.ValueConstInt && d.Int != 0 {
					in.Op = uncheckedDivOp(in.Op)
					changed = true
				}
			case ir.CastSiNarrowChk:
				if v := in.Operands[0]; v.Kind == ir.ValueConstInt && v.Int >= -1<<31 && v.Int < 1<<31 {
					if id, ok := in.ResultID(); ok {
						subst[id] = ir.ConstInt(v.Int)
					}
					b.Remove(i)
				}
			case ir.CastUiNarrowChk:
				if v := in.Operands[0]; v.Kind == ir.ValueConstInt && v.Int >= 0 && v.Int < 1<<32 {
					if id, ok := in.ResultID(); ok {
						subst[id] = ir.ConstInt(v.Int)
					}
					b.Remove(i)
				}
			}
		}
	}
	changed = changed || len(subst) > 0
	applySubst(fn, subst)
	return changed
}

func uncheckedDivOp(op ir.Opcode) ir.Opcode {
	switch op {
	case ir.SDivChk0:
		return ir.SDiv
	case ir.UDivChk0:
		return ir.UDiv
	case ir.SRemChk0:
		return ir.SRem
	case ir.URemChk0:
		return ir.URem
	}
	return op
}
