package transform

import (
	"fmt"

	"viper/internal/analysis"
	"viper/internal/ir"
)

// Full unrolling of innermost counted loops. The loop must be in simplified
// form (dedicated preheader, single latch), exit solely through a header
// compare against a constant, and advance a single induction variable by a
// constant step. When the static trip count is within the threshold, the body
// is replicated once per iteration with fresh temps and labels, loop-carried
// values are threaded through a value map instead of block parameters, and
// the original blocks are deleted.
type LoopUnroll struct {
	FullUnrollThreshold int // maximum trip count to fully unroll
	MaxLoopSize         int // maximum instructions across the loop body
}

// NewLoopUnroll returns the pass with default thresholds.
func NewLoopUnroll() *LoopUnroll {
	return &LoopUnroll{FullUnrollThreshold: 8, MaxLoopSize: 50}
}

// Run unrolls every eligible loop. Reports whether the function changed.
func (lu *LoopUnroll) Run(fn *ir.Function, cfg *analysis.CFGInfo, li *analysis.LoopInfo) bool {
	changed := false
	for _, loop := range li.Loops {
		if len(loop.Children) > 0 || len(loop.Latches) != 1 {
			continue
		}
		if lu.unrollLoop(fn, cfg, loop) {
			changed = true
			// Analyses are stale after the first structural change.
			break
		}
	}
	return changed
}

func (lu *LoopUnroll) unrollLoop(fn *ir.Function, cfg *analysis.CFGInfo, loop *analysis.Loop) bool {
	pre := preheaderOf(fn, cfg, loop)
	if pre == nil {
		return false
	}
	header := cfg.BlockByLabel(loop.Header)
	latch := cfg.BlockByLabel(loop.Latches[0])
	latchTerm := latch.Terminator()
	if latchTerm == nil || latchTerm.Op != ir.Br || latchTerm.Labels[0] != loop.Header {
		return false
	}

	// The loop must exit only through the header's conditional branch.
	headTerm := header.Terminator()
	if headTerm == nil || headTerm.Op != ir.CBr {
		return false
	}
	if len(loop.Exits) != 1 || loop.Exits[0].From != loop.Header {
		return false
	}
	bodyArm := 0
	if loop.Contains(headTerm.Labels[1]) && !loop.Contains(headTerm.Labels[0]) {
		bodyArm = 1
	} else if !loop.Contains(headTerm.Labels[0]) {
		return false
	}
	exitArm := 1 - bodyArm

	// Body size budget.
	size := 0
	for label := range loop.Blocks {
		size += len(fn.FindBlock(label).Instrs)
	}
	if size > lu.MaxLoopSize {
		return false
	}

	// One induction variable with a constant init.
	ivs := findInductionVars(fn, loop, header, latchTerm)
	if len(ivs) == 0 {
		return false
	}
	preTerm := pre.Terminator()
	var iv indVar
	var init ir.Value
	found := false
	for _, cand := range ivs {
		v := preTerm.BrArgs[0][cand.paramIndex]
		if v.Kind == ir.ValueConstInt {
			iv, init, found = cand, v, true
			break
		}
	}
	if !found || iv.step == 0 {
		return false
	}
	ivParam := header.Params[iv.paramIndex]

	// The branch condition must be a direct compare between the IV and a
	// constant, defined in the header.
	cond := headTerm.Operands[0]
	if cond.Kind != ir.ValueTemp {
		return false
	}
	var cmp *ir.Instr
	for i := range header.Instrs {
		if id, ok := header.Instrs[i].ResultID(); ok && id == cond.ID {
			cmp = &header.Instrs[i]
			break
		}
	}
	if cmp == nil {
		return false
	}
	evalStay, ok := makeTripPredicate(cmp, ivParam.ID, bodyArm == 0)
	if !ok {
		return false
	}

	// Static trip count.
	trip := 0
	ivVal := init.Int
	for evalStay(ivVal) {
		trip++
		if trip > lu.FullUnrollThreshold {
			return false
		}
		ivVal += iv.step
	}

	// Fresh labels must not collide with existing blocks.
	for label := range loop.Blocks {
		for i := 0; i <= trip; i++ {
			if fn.FindBlock(fmt.Sprintf("%s.u%d", label, i)) != nil {
				return false
			}
		}
	}

	lu.emitUnrolledBody(fn, loop, header, latch, pre, trip, bodyArm, exitArm)
	return true
}

// makeTripPredicate builds "does the loop take another iteration at iv=v".
func makeTripPredicate(cmp *ir.Instr, ivID uint32, condTrueStays bool) (func(int64) bool, bool) {
	lhs, rhs := cmp.Operands[0], cmp.Operands[1]
	var bound int64
	swapped := false
	switch {
	case lhs.Equal(ir.Temp(ivID)) && rhs.Kind == ir.ValueConstInt && !rhs.IsBool:
		bound = rhs.Int
	case rhs.Equal(ir.Temp(ivID)) && lhs.Kind == ir.ValueConstInt && !lhs.IsBool:
		bound = lhs.Int
		swapped = true
	default:
		return nil, false
	}

	var eval func(a, b int64) bool
	switch cmp.Op {
	case ir.SCmpLT:
		eval = func(a, b int64) bool { return a < b }
	case ir.SCmpLE:
		eval = func(a, b int64) bool { return a <= b }
	case ir.SCmpGT:
		eval = func(a, b int64) bool { return a > b }
	case ir.SCmpGE:
		eval = func(a, b int64) bool { return a >= b }
	case ir.ICmpEq:
		eval = func(a, b int64) bool { return a == b }
	case ir.ICmpNe:
		eval = func(a, b int64) bool { return a != b }
	case ir.UCmpLT:
		eval = func(a, b int64) bool { return uint64(a) < uint64(b) }
	case ir.UCmpLE:
		eval = func(a, b int64) bool { return uint64(a) <= uint64(b) }
	case ir.UCmpGT:
		eval = func(a, b int64) bool { return uint64(a) > uint64(b) }
	case ir.UCmpGE:
		eval = func(a, b int64) bool { return uint64(a) >= uint64(b) }
	default:
		return nil, false
	}

	return func(v int64) bool {
		a, b := v, bound
		if swapped {
			a, b = bound, v
		}
		return eval(a, b) == condTrueStays
	}, true
}

// emitUnrolledBody performs the replication and rewires the CFG.
func (lu *LoopUnroll) emitUnrolledBody(fn *ir.Function, loop *analysis.Loop,
	header, latch, pre *ir.BasicBlock, trip, bodyArm, exitArm int) {

	headTerm := header.Terminator()
	preTerm := pre.Terminator()

	loopBlocks := make([]*ir.BasicBlock, 0, len(loop.Blocks))
	for _, b := range fn.Blocks {
		if loop.Contains(b.Label) {
			loopBlocks = append(loopBlocks, b)
		}
	}

	// env carries header parameter values into the current iteration.
	env := make(map[uint32]ir.Value, len(header.Params))
	for k, p := range header.Params {
		env[p.ID] = preTerm.BrArgs[0][k]
	}

	uLabel := func(label string, iter int) string { return fmt.Sprintf("%s.u%d", label, iter) }

	var emitted []*ir.BasicBlock
	for iter := 0; iter <= trip; iter++ {
		last := iter == trip

		// Fresh ids for everything this iteration defines.
		tempMap := make(map[uint32]uint32)
		freshFor := func(id uint32) uint32 {
			nid := fn.FreshTempID()
			if n := fn.ValueName(id); n != "" {
				fn.SetValueName(nid, fmt.Sprintf("%s.u%d", n, iter))
			}
			tempMap[id] = nid
			return nid
		}
		blocksToClone := loopBlocks
		if last {
			blocksToClone = []*ir.BasicBlock{header}
		}
		for _, b := range blocksToClone {
			if b != header {
				for _, p := range b.Params {
					freshFor(p.ID)
				}
			}
			for i := range b.Instrs {
				if id, ok := b.Instrs[i].ResultID(); ok {
					freshFor(id)
				}
			}
		}

		mapValue := func(v ir.Value) ir.Value {
			if v.Kind != ir.ValueTemp {
				return v
			}
			if ev, ok := env[v.ID]; ok {
				return ev
			}
			if nid, ok := tempMap[v.ID]; ok {
				return ir.Temp(nid)
			}
			return v
		}
		mapLabel := func(label string) string {
			if loop.Contains(label) {
				return uLabel(label, iter)
			}
			return label
		}

		var nextEnv map[uint32]ir.Value

		for _, b := range blocksToClone {
			clone := &ir.BasicBlock{Label: uLabel(b.Label, iter)}
			if b != header {
				for _, p := range b.Params {
					clone.Params = append(clone.Params, ir.Param{Name: p.Name, Type: p.Type, ID: tempMap[p.ID]})
				}
			}

			for i := range b.Instrs {
				in := b.Instrs[i].Clone()
				if id, ok := in.ResultID(); ok {
					in.SetResult(tempMap[id])
				}
				for oi, v := range in.Operands {
					in.Operands[oi] = mapValue(v)
				}
				for ai := range in.BrArgs {
					for vi, v := range in.BrArgs[ai] {
						in.BrArgs[ai][vi] = mapValue(v)
					}
				}

				isHeaderTerm := b == header && i == len(b.Instrs)-1
				isLatchTerm := b == latch && i == len(b.Instrs)-1

				switch {
				case isHeaderTerm && last:
					// Final check fails: branch to the exit with its args.
					in = ir.Instr{
						Op:     ir.Br,
						Labels: []string{headTerm.Labels[exitArm]},
						BrArgs: [][]ir.Value{mapValues(headTerm.BrArgs[exitArm], mapValue)},
					}
				case isHeaderTerm:
					// Check passes: fall into this iteration's body.
					in = ir.Instr{
						Op:     ir.Br,
						Labels: []string{mapLabel(headTerm.Labels[bodyArm])},
						BrArgs: [][]ir.Value{mapValues(headTerm.BrArgs[bodyArm], mapValue)},
					}
				case isLatchTerm:
					// Capture the next iteration's loop-carried values, then
					// jump to the next header clone (which has no params).
					nextEnv = make(map[uint32]ir.Value, len(header.Params))
					for k, p := range header.Params {
						nextEnv[p.ID] = in.BrArgs[0][k]
					}
					in = ir.Instr{
						Op:     ir.Br,
						Labels: []string{uLabel(header.Label, iter+1)},
						BrArgs: [][]ir.Value{nil},
					}
				default:
					for li := range in.Labels {
						in.Labels[li] = mapLabel(in.Labels[li])
					}
				}
				clone.Append(in)
			}
			emitted = append(emitted, clone)
		}

		if last {
			break
		}
		env = nextEnv
	}

	// Enter the unrolled chain from the preheader.
	for li, l := range preTerm.Labels {
		if l == loop.Header {
			preTerm.Labels[li] = uLabel(loop.Header, 0)
			preTerm.BrArgs[li] = nil
		}
	}

	// Splice: drop the original loop blocks, insert the clones after the
	// preheader.
	insertAt := 0
	kept := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if loop.Contains(b.Label) {
			continue
		}
		kept = append(kept, b)
		if b == pre {
			insertAt = len(kept)
		}
	}
	fn.Blocks = kept
	for i, nb := range emitted {
		fn.InsertBlock(insertAt+i, nb)
	}
}

func mapValues(vals []ir.Value, f func(ir.Value) ir.Value) []ir.Value {
	out := make([]ir.Value, len(vals))
	for i, v := range vals {
		out[i] = f(v)
	}
	return out
}
