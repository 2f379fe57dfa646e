package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// Induction-variable simplification: strength-reduces "base + iv * stride"
// address arithmetic in counted loop headers. The address becomes a
// loop-carried block parameter, initialized in the preheader and bumped by
// stride*step in the latch; the original mul/add pair dies with its uses.
// All rewrites thread values through block parameters so SSA never breaks.

type indVar struct {
	paramIndex int   // header parameter carrying the IV
	step       int64 // signed step applied on the back edge
}

func runIndVarSimplify(fn *ir.Function, cfg *analysis.CFGInfo, li *analysis.LoopInfo) bool {
	changed := false
	for _, loop := range li.Loops {
		if len(loop.Latches) != 1 {
			continue
		}
		pre := preheaderOf(fn, cfg, loop)
		if pre == nil {
			continue
		}
		latch := cfg.BlockByLabel(loop.Latches[0])
		header := cfg.BlockByLabel(loop.Header)
		latchTerm := latch.Terminator()
		if latchTerm == nil || latchTerm.Op != ir.Br || latchTerm.Labels[0] != loop.Header {
			continue
		}
		preTerm := pre.Terminator()
		if preTerm == nil || len(preTerm.Labels) != 1 || preTerm.Labels[0] != loop.Header {
			continue
		}

		for _, iv := range findInductionVars(fn, loop, header, latchTerm) {
			if strengthReduce(fn, loop, header, pre, latch, iv) {
				changed = true
			}
		}
	}
	return changed
}

// findInductionVars locates header parameters updated as iv' = iv ± const on
// the back edge.
func findInductionVars(fn *ir.Function, loop *analysis.Loop, header *ir.BasicBlock, latchTerm *ir.Instr) []indVar {
	defs := make(map[uint32]*ir.Instr)
	for label := range loop.Blocks {
		b := fn.FindBlock(label)
		for i := range b.Instrs {
			if id, ok := b.Instrs[i].ResultID(); ok {
				defs[id] = &b.Instrs[i]
			}
		}
	}

	var ivs []indVar
	for k, p := range header.Params {
		if k >= len(latchTerm.BrArgs[0]) {
			break
		}
		arg := latchTerm.BrArgs[0][k]
		if arg.Kind != ir.ValueTemp {
			continue
		}
		upd := defs[arg.ID]
		if upd == nil || (upd.Op != ir.Add && upd.Op != ir.Sub) {
			continue
		}
		lhs, rhs := upd.Operands[0], upd.Operands[1]
		var step int64
		switch {
		case lhs.Equal(ir.Temp(p.ID)) && rhs.Kind == ir.ValueConstInt:
			step = rhs.Int
		case upd.Op == ir.Add && rhs.Equal(ir.Temp(p.ID)) && lhs.Kind == ir.ValueConstInt:
			step = lhs.Int
		default:
			continue
		}
		if upd.Op == ir.Sub {
			step = -step
		}
		ivs = append(ivs, indVar{paramIndex: k, step: step})
	}
	return ivs
}

// strengthReduce rewrites one "addr = base + iv*stride" chain in the header.
func strengthReduce(fn *ir.Function, loop *analysis.Loop, header, pre, latch *ir.BasicBlock, iv indVar) bool {
	defs := defBlocks(fn)
	ivParam := header.Params[iv.paramIndex]

	invariant := func(v ir.Value) bool {
		if v.Kind != ir.ValueTemp {
			return true
		}
		db, known := defs[v.ID]
		return known && (db == nil || !loop.Contains(db.Label))
	}

	// Locate mul(iv, stride) followed by add(base, mul) in the header.
	var mulIdx, addIdx = -1, -1
	var stride int64
	var base ir.Value
	for i := range header.Instrs {
		in := &header.Instrs[i]
		if in.Op != ir.Mul {
			continue
		}
		lhs, rhs := in.Operands[0], in.Operands[1]
		switch {
		case lhs.Equal(ir.Temp(ivParam.ID)) && rhs.Kind == ir.ValueConstInt:
			stride = rhs.Int
		case rhs.Equal(ir.Temp(ivParam.ID)) && lhs.Kind == ir.ValueConstInt:
			stride = lhs.Int
		default:
			continue
		}
		mulID, _ := in.ResultID()

		for j := i + 1; j < len(header.Instrs); j++ {
			cand := &header.Instrs[j]
			if cand.Op != ir.Add && cand.Op != ir.GEP {
				continue
			}
			l, r := cand.Operands[0], cand.Operands[1]
			if l.Equal(ir.Temp(mulID)) && invariant(r) {
				base = r
			} else if cand.Op == ir.Add && r.Equal(ir.Temp(mulID)) && invariant(l) {
				base = l
			} else if cand.Op == ir.GEP && l.Kind == ir.ValueTemp && invariant(l) && r.Equal(ir.Temp(mulID)) {
				base = l
			} else {
				continue
			}
			mulIdx, addIdx = i, j
			break
		}
		if addIdx >= 0 {
			break
		}
	}
	if addIdx < 0 {
		return false
	}

	mulInstr := header.Instrs[mulIdx]
	addInstr := header.Instrs[addIdx]
	mulID, _ := mulInstr.ResultID()
	addID, _ := addInstr.ResultID()

	// The mul result must have no other consumer, or removing it breaks SSA.
	if countUses(fn, mulID) != 1 {
		return false
	}

	// New loop-carried parameter for the address.
	addrID := fn.FreshTempID()
	addrName := fn.ValueName(addID)
	if addrName == "" {
		addrName = "addr"
	}
	fn.SetValueName(addrID, addrName+".iv")
	header.Params = append(header.Params, ir.Param{Name: addrName + ".iv", Type: addInstr.Type, ID: addrID})

	// Preheader: compute the initial address from the IV's entry value.
	preTerm := pre.Terminator()
	init := preTerm.BrArgs[0][iv.paramIndex]
	t1 := fn.FreshTempID()
	fn.SetValueName(t1, addrName+".init.scaled")
	mul := ir.Instr{Op: ir.Mul, Type: mulInstr.Type, Operands: []ir.Value{init, ir.ConstInt(stride)}}
	mul.SetResult(t1)
	t2 := fn.FreshTempID()
	fn.SetValueName(t2, addrName+".init")
	add := ir.Instr{Op: addInstr.Op, Type: addInstr.Type, Operands: []ir.Value{base, ir.Temp(t1)}}
	add.SetResult(t2)
	pre.Insert(len(pre.Instrs)-1, mul)
	pre.Insert(len(pre.Instrs)-1, add)
	preTerm.BrArgs[0] = append(preTerm.BrArgs[0], ir.Temp(t2))

	// Latch: bump the address by stride*step and pass it back.
	latchTerm := latch.Terminator()
	t3 := fn.FreshTempID()
	fn.SetValueName(t3, addrName+".next")
	bump := ir.Instr{Op: addInstr.Op, Type: addInstr.Type, Operands: []ir.Value{ir.Temp(addrID), ir.ConstInt(stride * iv.step)}}
	bump.SetResult(t3)
	latch.Insert(len(latch.Instrs)-1, bump)
	latchTerm.BrArgs[0] = append(latchTerm.BrArgs[0], ir.Temp(t3))

	// Every other edge into the header must now pass a value too; after
	// LoopSimplify the preheader and the latch are the only predecessors.

	// Replace the old address and drop the dead pair.
	replaceUses(fn, addID, ir.Temp(addrID))
	removeInstrByResult(header, addID)
	removeInstrByResult(header, mulID)
	return true
}

func countUses(fn *ir.Function, id uint32) int {
	n := 0
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			for _, v := range in.Operands {
				if v.Kind == ir.ValueTemp && v.ID == id {
					n++
				}
			}
			for _, args := range in.BrArgs {
				for _, v := range args {
					if v.Kind == ir.ValueTemp && v.ID == id {
						n++
					}
				}
			}
		}
	}
	return n
}

func removeInstrByResult(b *ir.BasicBlock, id uint32) {
	for i := range b.Instrs {
		if r, ok := b.Instrs[i].ResultID(); ok && r == id {
			b.Remove(i)
			return
		}
	}
}
