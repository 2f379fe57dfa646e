package transform

import (
	"fmt"

	"viper/internal/analysis"
	"viper/internal/ir"
)

// Loop canonicalization. Every loop gets a dedicated preheader — a block
// whose sole successor is the header and which receives all edges from
// outside the loop — and trivially equivalent latches are merged into one.
// Downstream loop passes (LICM, indvars, unroll) assume this shape.
//
// Blocks are addressed by label and re-looked-up after every structural
// change; no pointer into the block slice is held across an insertion.
func runLoopSimplify(fn *ir.Function) bool {
	changed := false
	for {
		cfg := analysis.BuildCFG(fn)
		dom := analysis.ComputeDominatorTree(fn, cfg)
		li := analysis.ComputeLoopInfo(fn, cfg, dom)

		round := false
		for _, loop := range li.Loops {
			if insertPreheader(fn, cfg, loop) {
				round = true
				break // analyses are stale; restart
			}
			if mergeLatches(fn, cfg, loop) {
				round = true
				break
			}
		}
		if !round {
			break
		}
		changed = true
	}
	return changed
}

// hasDedicatedPreheader reports whether the loop already has a unique
// external predecessor that unconditionally branches to the header alone.
func hasDedicatedPreheader(cfg *analysis.CFGInfo, loop *analysis.Loop) *ir.BasicBlock {
	header := cfg.BlockByLabel(loop.Header)
	var external []*ir.BasicBlock
	for _, p := range cfg.Predecessors[header] {
		if !loop.Contains(p.Label) {
			external = append(external, p)
		}
	}
	if len(external) != 1 {
		return nil
	}
	p := external[0]
	term := p.Terminator()
	if term == nil || term.Op != ir.Br {
		return nil
	}
	return p
}

// insertPreheader creates "<header>.preheader" when the loop lacks one.
func insertPreheader(fn *ir.Function, cfg *analysis.CFGInfo, loop *analysis.Loop) bool {
	if hasDedicatedPreheader(cfg, loop) != nil {
		return false
	}
	header := cfg.BlockByLabel(loop.Header)
	label := loop.Header + ".preheader"
	if fn.FindBlock(label) != nil {
		return false // degenerate relabeling; leave the loop alone
	}

	// Clone the header's parameters with fresh ids; the preheader forwards
	// them unchanged.
	params := make([]ir.Param, len(header.Params))
	forward := make([]ir.Value, len(header.Params))
	for i, p := range header.Params {
		id := fn.FreshTempID()
		params[i] = ir.Param{Name: p.Name + ".ph", Type: p.Type, ID: id}
		fn.SetValueName(id, params[i].Name)
		forward[i] = ir.Temp(id)
	}
	pre := &ir.BasicBlock{Label: label, Params: params}
	pre.Append(ir.Instr{Op: ir.Br, Labels: []string{loop.Header}, BrArgs: [][]ir.Value{forward}})

	// Redirect every external edge into the header to the preheader,
	// keeping the edge's argument vector.
	for _, p := range cfg.Predecessors[header] {
		if loop.Contains(p.Label) {
			continue
		}
		term := p.Terminator()
		for li, l := range term.Labels {
			if l == loop.Header {
				term.Labels[li] = label
			}
		}
	}

	// Place the preheader immediately before the header.
	for i, b := range fn.Blocks {
		if b == header {
			fn.InsertBlock(i, pre)
			break
		}
	}
	return true
}

// mergeLatches funnels multiple trivially equivalent latches — each ending in
// an unconditional branch to the header with identical argument vectors —
// through a single "<header>.latch" block.
func mergeLatches(fn *ir.Function, cfg *analysis.CFGInfo, loop *analysis.Loop) bool {
	if len(loop.Latches) < 2 {
		return false
	}
	label := loop.Header + ".latch"
	if fn.FindBlock(label) != nil {
		return false
	}

	var args []ir.Value
	var latchTerms []*ir.Instr
	for i, latchLabel := range loop.Latches {
		latch := cfg.BlockByLabel(latchLabel)
		term := latch.Terminator()
		if term == nil || term.Op != ir.Br || term.Labels[0] != loop.Header {
			return false
		}
		if i == 0 {
			args = term.BrArgs[0]
		} else if !sameValueVector(args, term.BrArgs[0]) {
			return false
		}
		latchTerms = append(latchTerms, term)
	}

	merged := &ir.BasicBlock{Label: label}
	merged.Append(ir.Instr{Op: ir.Br, Labels: []string{loop.Header}, BrArgs: [][]ir.Value{append([]ir.Value(nil), args...)}})

	for _, term := range latchTerms {
		term.Labels[0] = label
		term.BrArgs[0] = nil
	}

	// Place the merged latch right after the last loop block.
	insertAt := len(fn.Blocks)
	for i := len(fn.Blocks) - 1; i >= 0; i-- {
		if loop.Contains(fn.Blocks[i].Label) {
			insertAt = i + 1
			break
		}
	}
	fn.InsertBlock(insertAt, merged)
	return true
}

func sameValueVector(a, b []ir.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// preheaderOf finds a loop's dedicated preheader after canonicalization,
// or nil when the loop is not in simplified form.
func preheaderOf(fn *ir.Function, cfg *analysis.CFGInfo, loop *analysis.Loop) *ir.BasicBlock {
	if p := hasDedicatedPreheader(cfg, loop); p != nil {
		return p
	}
	return fn.FindBlock(fmt.Sprintf("%s.preheader", loop.Header))
}
