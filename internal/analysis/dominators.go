package analysis

import (
	"viper/internal/ir"
)

// DomTree holds the immediate-dominator relation for the reachable blocks of
// a function. Computed with the iterative RPO data-flow algorithm; intersect
// walks idom chains by RPO index.
type DomTree struct {
	IDom     map[*ir.BasicBlock]*ir.BasicBlock
	Children map[*ir.BasicBlock][]*ir.BasicBlock

	root *ir.BasicBlock
}

// Root returns the tree's root (the entry block, or the synthetic exit for a
// post-dominator tree).
func (d *DomTree) Root() *ir.BasicBlock { return d.root }

// Dominates reports whether a dominates b (reflexively).
func (d *DomTree) Dominates(a, b *ir.BasicBlock) bool {
	for b != nil {
		if a == b {
			return true
		}
		parent := d.IDom[b]
		if parent == b {
			return false
		}
		b = parent
	}
	return false
}

// StrictlyDominates reports whether a dominates b and a != b.
func (d *DomTree) StrictlyDominates(a, b *ir.BasicBlock) bool {
	return a != b && d.Dominates(a, b)
}

// ComputeDominatorTree builds the dominator tree over cfg's forward edges.
func ComputeDominatorTree(fn *ir.Function, cfg *CFGInfo) *DomTree {
	rpo := cfg.ReversePostOrder()
	if len(rpo) == 0 {
		return &DomTree{IDom: map[*ir.BasicBlock]*ir.BasicBlock{}, Children: map[*ir.BasicBlock][]*ir.BasicBlock{}}
	}
	preds := func(b *ir.BasicBlock) []*ir.BasicBlock { return cfg.Predecessors[b] }
	return solveDominators(rpo, preds)
}

// ComputePostDominatorTree builds the post-dominator tree: the dominator tree
// of the reversed CFG rooted at a synthetic exit joining every exit block.
func ComputePostDominatorTree(fn *ir.Function, cfg *CFGInfo) *DomTree {
	exit := &ir.BasicBlock{Label: "<exit>"}

	var exits []*ir.BasicBlock
	for _, b := range fn.Blocks {
		if len(cfg.Successors[b]) == 0 {
			exits = append(exits, b)
		}
	}

	// Reverse post-order of the reversed graph, rooted at the synthetic exit.
	revSuccs := func(b *ir.BasicBlock) []*ir.BasicBlock {
		if b == exit {
			return exits
		}
		return cfg.Predecessors[b]
	}
	revPreds := func(b *ir.BasicBlock) []*ir.BasicBlock {
		if b == exit {
			return nil
		}
		if len(cfg.Successors[b]) == 0 {
			return []*ir.BasicBlock{exit}
		}
		return cfg.Successors[b]
	}

	visited := make(map[*ir.BasicBlock]bool)
	var post []*ir.BasicBlock
	var dfs func(b *ir.BasicBlock)
	dfs = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range revSuccs(b) {
			dfs(s)
		}
		post = append(post, b)
	}
	dfs(exit)

	rpo := make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return solveDominators(rpo, revPreds)
}

// solveDominators runs the Cooper/Harvey/Kennedy iterative algorithm on an
// arbitrary edge relation. rpo[0] is the root.
func solveDominators(rpo []*ir.BasicBlock, preds func(*ir.BasicBlock) []*ir.BasicBlock) *DomTree {
	index := make(map[*ir.BasicBlock]int, len(rpo))
	for i, b := range rpo {
		index[b] = i
	}
	root := rpo[0]
	idom := make(map[*ir.BasicBlock]*ir.BasicBlock, len(rpo))
	idom[root] = root

	intersect := func(a, b *ir.BasicBlock) *ir.BasicBlock {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var newIDom *ir.BasicBlock
			for _, p := range preds(b) {
				if _, processed := idom[p]; !processed {
					continue
				}
				if newIDom == nil {
					newIDom = p
				} else {
					newIDom = intersect(p, newIDom)
				}
			}
			if newIDom == nil {
				continue
			}
			if idom[b] != newIDom {
				idom[b] = newIDom
				changed = true
			}
		}
	}

	children := make(map[*ir.BasicBlock][]*ir.BasicBlock, len(rpo))
	for _, b := range rpo {
		if b == root {
			continue
		}
		p := idom[b]
		children[p] = append(children[p], b)
	}
	return &DomTree{IDom: idom, Children: children, root: root}
}

// DominanceFrontiers computes DF(b) for every reachable block using the
// standard two-predecessor walk.
func DominanceFrontiers(cfg *CFGInfo, dom *DomTree) map[*ir.BasicBlock][]*ir.BasicBlock {
	df := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	seen := make(map[*ir.BasicBlock]map[*ir.BasicBlock]bool)
	add := func(runner, b *ir.BasicBlock) {
		if seen[runner] == nil {
			seen[runner] = make(map[*ir.BasicBlock]bool)
		}
		if !seen[runner][b] {
			seen[runner][b] = true
			df[runner] = append(df[runner], b)
		}
	}
	for b := range cfg.Successors {
		preds := cfg.Predecessors[b]
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			runner := p
			for runner != nil && runner != dom.IDom[b] {
				if _, reachable := dom.IDom[runner]; !reachable {
					break
				}
				add(runner, b)
				if runner == dom.IDom[runner] {
					break
				}
				runner = dom.IDom[runner]
			}
		}
	}
	return df
}
