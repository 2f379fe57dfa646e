package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// Loop-invariant code motion. An instruction hoists from a loop's header to
// its preheader when the opcode is pure and non-trapping and every operand is
// defined outside the loop (or was itself hoisted this round). Only header
// instructions move: the header is the one block guaranteed to run on every
// iteration. Loads additionally require the loop to contain no store and no
// modifying call.
func runLICM(fn *ir.Function, cfg *analysis.CFGInfo, li *analysis.LoopInfo, aa *analysis.BasicAA) bool {
	defs := defBlocks(fn)
	changed := false

	for _, loop := range li.Loops {
		pre := preheaderOf(fn, cfg, loop)
		if pre == nil {
			continue
		}
		header := cfg.BlockByLabel(loop.Header)

		loopWrites := loopHasWrites(fn, loop, aa)

		invariant := func(v ir.Value) bool {
			if v.Kind != ir.ValueTemp {
				return true
			}
			db, known := defs[v.ID]
			if !known {
				return false
			}
			return db == nil || !loop.Contains(db.Label)
		}

		for {
			hoisted := false
			for i := 0; i < len(header.Instrs); i++ {
				in := &header.Instrs[i]
				if in.IsTerminator() {
					break
				}
				if in.Op == ir.Load {
					if loopWrites || !invariant(in.Operands[0]) {
						continue
					}
				} else if !isPure(in) || in.Op == ir.Alloca {
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

				// Move the instruction into the preheader, ahead of its
				// terminator, and mark its result loop-invariant.
				moved := in.Clone()
				if id, has := moved.ResultID(); has {
					defs[id] = pre
				}
				header.Remove(i)
				pre.Insert(len(pre.Instrs)-1, moved)
				i--
				hoisted = true
				changed = true
			}
			if !hoisted {
				break
			}
		}
	}
	return changed
}

// loopHasWrites reports whether any block of the loop contains a store or a
// call that may modify memory.
func loopHasWrites(fn *ir.Function, loop *analysis.Loop, aa *analysis.BasicAA) bool {
	for label := range loop.Blocks {
		b := fn.FindBlock(label)
		if b == nil {
			continue
		}
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Op == ir.Store {
				return true
			}
			if in.Op.IsCall() {
				switch aa.ModRef(in) {
				case analysis.Mod, analysis.ModRef:
					return true
				}
			}
		}
	}
	return false
}
