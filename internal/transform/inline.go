package transform

import (
	"fmt"

	"viper/internal/ir"
)

// Function inlining. Call sites are expanded when the callee is small enough
// after cost adjustments: a callee with exactly one call site in the module
// gets a bonus (its body disappears from the original), and constant
// arguments get one since downstream folding usually collapses them. The
// callee's blocks are cloned into the caller with fresh temps and labels, the
// call becomes a branch into the clone, and returns become branches to a
// continuation block that receives the return value as a block parameter.
// Recursive callees are never inlined.
type Inliner struct {
	InstrThreshold int // maximum adjusted callee cost
	BlockBudget    int // maximum callee block count
	MaxDepth       int // rounds of iterative inlining
	SingleUseBonus int
	ConstArgBonus  int

	counter int // distinguishes clone labels across expansions
}

// NewInliner returns the pass with default thresholds.
func NewInliner() *Inliner {
	return &Inliner{
		InstrThreshold: 80,
		BlockBudget:    8,
		MaxDepth:       3,
		SingleUseBonus: 15,
		ConstArgBonus:  3,
	}
}

// Run iterates the call graph up to MaxDepth rounds. Reports whether any call
// site was expanded.
func (inl *Inliner) Run(m *ir.Module) bool {
	changed := false
	for depth := 0; depth < inl.MaxDepth; depth++ {
		if !inl.inlineOnce(m) {
			break
		}
		changed = true
	}
	return changed
}

type callSite struct {
	caller *ir.Function
	block  *ir.BasicBlock
	index  int
	callee *ir.Function
}

func (inl *Inliner) inlineOnce(m *ir.Module) bool {
	callCounts := make(map[string]int)
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				if b.Instrs[i].Op == ir.Call {
					callCounts[b.Instrs[i].Callee]++
				}
			}
		}
	}

	var site *callSite
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				in := &b.Instrs[i]
				if in.Op != ir.Call {
					continue
				}
				callee := m.FindFunction(in.Callee)
				if callee == nil || callee == fn || isRecursive(callee) {
					continue
				}
				if !inl.worthInlining(callee, in, callCounts[callee.Name]) {
					continue
				}
				site = &callSite{caller: fn, block: b, index: i, callee: callee}
				break
			}
			if site != nil {
				break
			}
		}
		if site != nil {
			break
		}
	}
	if site == nil {
		return false
	}
	inl.expand(site)
	return true
}

func isRecursive(fn *ir.Function) bool {
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if b.Instrs[i].Op == ir.Call && b.Instrs[i].Callee == fn.Name {
				return true
			}
		}
	}
	return false
}

func (inl *Inliner) worthInlining(callee *ir.Function, call *ir.Instr, uses int) bool {
	if len(callee.Blocks) == 0 || len(callee.Blocks) > inl.BlockBudget {
		return false
	}
	cost := 0
	for _, b := range callee.Blocks {
		cost += len(b.Instrs)
	}
	if uses == 1 {
		cost -= inl.SingleUseBonus
	}
	for _, arg := range call.Operands {
		if arg.IsConst() {
			cost -= inl.ConstArgBonus
		}
	}
	return cost < inl.InstrThreshold
}

// expand splices the callee into the caller at the call site.
func (inl *Inliner) expand(site *callSite) {
	caller, callee := site.caller, site.callee
	call := site.block.Instrs[site.index].Clone()
	inl.counter++
	prefix := fmt.Sprintf("%s.inl%d", callee.Name, inl.counter)
	for caller.FindBlock(fmt.Sprintf("%s.cont", prefix)) != nil {
		inl.counter++
		prefix = fmt.Sprintf("%s.inl%d", callee.Name, inl.counter)
	}
	contLabel := fmt.Sprintf("%s.cont", prefix)

	// Continuation block: everything after the call, with the return value
	// arriving as a block parameter.
	cont := &ir.BasicBlock{Label: contLabel}
	var contParamID uint32
	if id, hasResult := call.ResultID(); hasResult {
		contParamID = caller.FreshTempID()
		caller.SetValueName(contParamID, fmt.Sprintf("%s.ret", prefix))
		cont.Params = []ir.Param{{Name: fmt.Sprintf("%s.ret", prefix), Type: call.Type, ID: contParamID}}
		defer func() {
			replaceUses(caller, id, ir.Temp(contParamID))
		}()
	}
	cont.Instrs = append([]ir.Instr(nil), site.block.Instrs[site.index+1:]...)
	cont.Terminated = site.block.Terminated

	// Clone the callee with fresh temps and labels; parameters map straight
	// to the call arguments (the entry block declares none, by convention).
	tempMap := make(map[uint32]ir.Value)
	for i, p := range callee.Params {
		if i < len(call.Operands) {
			tempMap[p.ID] = call.Operands[i]
		}
	}
	freshIDs := make(map[uint32]uint32)
	for _, b := range callee.Blocks {
		for _, p := range b.Params {
			freshIDs[p.ID] = caller.FreshTempID()
		}
		for i := range b.Instrs {
			if id, ok := b.Instrs[i].ResultID(); ok {
				freshIDs[id] = caller.FreshTempID()
			}
		}
	}
	mapValue := func(v ir.Value) ir.Value {
		if v.Kind != ir.ValueTemp {
			return v
		}
		if arg, ok := tempMap[v.ID]; ok {
			return arg
		}
		if nid, ok := freshIDs[v.ID]; ok {
			return ir.Temp(nid)
		}
		return v
	}
	labelMap := make(map[string]string, len(callee.Blocks))
	for _, b := range callee.Blocks {
		labelMap[b.Label] = fmt.Sprintf("%s.%s", prefix, b.Label)
	}

	var clones []*ir.BasicBlock
	for _, b := range callee.Blocks {
		clone := &ir.BasicBlock{Label: labelMap[b.Label]}
		for _, p := range b.Params {
			nid := freshIDs[p.ID]
			caller.SetValueName(nid, fmt.Sprintf("%s.%s", prefix, p.Name))
			clone.Params = append(clone.Params, ir.Param{Name: p.Name, Type: p.Type, ID: nid})
		}
		for i := range b.Instrs {
			in := b.Instrs[i].Clone()
			if id, ok := in.ResultID(); ok {
				nid := freshIDs[id]
				if n := callee.ValueName(id); n != "" {
					caller.SetValueName(nid, fmt.Sprintf("%s.%s", prefix, n))
				}
				in.SetResult(nid)
			}
			for oi, v := range in.Operands {
				in.Operands[oi] = mapValue(v)
			}
			for ai := range in.BrArgs {
				for vi, v := range in.BrArgs[ai] {
					in.BrArgs[ai][vi] = mapValue(v)
				}
			}
			if in.Op == ir.Ret {
				var args []ir.Value
				if len(in.Operands) > 0 && len(cont.Params) > 0 {
					args = []ir.Value{in.Operands[0]}
				}
				in = ir.Instr{Op: ir.Br, Labels: []string{contLabel}, BrArgs: [][]ir.Value{args}}
			} else {
				for li := range in.Labels {
					in.Labels[li] = labelMap[in.Labels[li]]
				}
			}
			clone.Append(in)
		}
		clones = append(clones, clone)
	}

	// The call block now ends with a branch into the clone's entry.
	site.block.Instrs = site.block.Instrs[:site.index]
	site.block.Instrs = append(site.block.Instrs, ir.Instr{
		Op:     ir.Br,
		Labels: []string{labelMap[callee.Blocks[0].Label]},
		BrArgs: [][]ir.Value{nil},
	})
	site.block.Terminated = true

	// Splice clone blocks and the continuation right after the call block.
	insertAt := 0
	for i, b := range caller.Blocks {
		if b == site.block {
			insertAt = i + 1
			break
		}
	}
	for i, nb := range clones {
		caller.InsertBlock(insertAt+i, nb)
	}
	caller.InsertBlock(insertAt+len(clones), cont)
}
