package analysis

import (
	"viper/internal/ir"
)

// CFGInfo captures the successor and predecessor relation of a function's
// blocks. Successor order matches the terminator's label order, so a
// conditional branch lists its true target first. The maps hold weak
// references: they are valid only while the function is unmodified.
type CFGInfo struct {
	Successors   map[*ir.BasicBlock][]*ir.BasicBlock
	Predecessors map[*ir.BasicBlock][]*ir.BasicBlock

	byLabel map[string]*ir.BasicBlock
	fn      *ir.Function
}

// BuildCFG computes the CFG in one linear pass over the terminators.
func BuildCFG(fn *ir.Function) *CFGInfo {
	info := &CFGInfo{
		Successors:   make(map[*ir.BasicBlock][]*ir.BasicBlock, len(fn.Blocks)),
		Predecessors: make(map[*ir.BasicBlock][]*ir.BasicBlock, len(fn.Blocks)),
		byLabel:      make(map[string]*ir.BasicBlock, len(fn.Blocks)),
		fn:           fn,
	}
	for _, b := range fn.Blocks {
		info.byLabel[b.Label] = b
	}
	for _, b := range fn.Blocks {
		info.Successors[b] = nil
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, label := range term.Labels {
			succ := info.byLabel[label]
			if succ == nil {
				continue
			}
			info.Successors[b] = append(info.Successors[b], succ)
			info.Predecessors[succ] = append(info.Predecessors[succ], b)
		}
	}
	return info
}

// BlockByLabel resolves a label to its block, or nil.
func (c *CFGInfo) BlockByLabel(label string) *ir.BasicBlock {
	return c.byLabel[label]
}

// ReversePostOrder enumerates the blocks reachable from the entry in reverse
// post-order.
func (c *CFGInfo) ReversePostOrder() []*ir.BasicBlock {
	if len(c.fn.Blocks) == 0 {
		return nil
	}
	visited := make(map[*ir.BasicBlock]bool, len(c.fn.Blocks))
	var post []*ir.BasicBlock
	var dfs func(b *ir.BasicBlock)
	dfs = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range c.Successors[b] {
			dfs(s)
		}
		post = append(post, b)
	}
	dfs(c.fn.Blocks[0])

	rpo := make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// RPOIndex returns each reachable block's position in reverse post-order.
func (c *CFGInfo) RPOIndex() map[*ir.BasicBlock]int {
	rpo := c.ReversePostOrder()
	idx := make(map[*ir.BasicBlock]int, len(rpo))
	for i, b := range rpo {
		idx[b] = i
	}
	return idx
}
