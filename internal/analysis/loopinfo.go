package analysis

import (
	"sort"

	"viper/internal/ir"
)

// Natural-loop discovery. A back-edge a->b where b dominates a defines a loop
// with header b containing every block that reaches a without passing through
// b. Loops sharing a header are merged; nesting follows block-set
// containment. Loops are keyed by label so the result survives block-slice
// mutation (but not relabeling).

// LoopExit is one edge leaving a loop.
type LoopExit struct {
	From string // block inside the loop
	To   string // successor outside the loop
}

// Loop describes one natural loop.
type Loop struct {
	Header   string
	Blocks   map[string]bool
	Latches  []string
	Exits    []LoopExit
	Parent   string // header of the enclosing loop, or ""
	Children []string
}

// Contains reports whether the loop body includes the labeled block.
func (l *Loop) Contains(label string) bool { return l.Blocks[label] }

// LoopInfo holds all loops of a function, innermost first.
type LoopInfo struct {
	Loops []*Loop

	byHeader map[string]*Loop
}

// ByHeader returns the loop with the given header label, or nil.
func (li *LoopInfo) ByHeader(header string) *Loop { return li.byHeader[header] }

// InnermostFor returns the innermost loop containing the labeled block, or
// nil when the block is not in any loop.
func (li *LoopInfo) InnermostFor(label string) *Loop {
	for _, l := range li.Loops { // innermost first
		if l.Contains(label) {
			return l
		}
	}
	return nil
}

// ComputeLoopInfo discovers the natural loops of fn.
func ComputeLoopInfo(fn *ir.Function, cfg *CFGInfo, dom *DomTree) *LoopInfo {
	byHeader := make(map[string]*Loop)

	for _, b := range cfg.ReversePostOrder() {
		for _, succ := range cfg.Successors[b] {
			if !dom.Dominates(succ, b) {
				continue // not a back-edge
			}
			header := succ
			loop := byHeader[header.Label]
			if loop == nil {
				loop = &Loop{Header: header.Label, Blocks: map[string]bool{header.Label: true}}
				byHeader[header.Label] = loop
			}
			loop.Latches = append(loop.Latches, b.Label)

			// Collect the loop body: walk predecessors backward from the
			// latch, stopping at the header.
			worklist := []*ir.BasicBlock{b}
			for len(worklist) > 0 {
				cur := worklist[len(worklist)-1]
				worklist = worklist[:len(worklist)-1]
				if loop.Blocks[cur.Label] {
					continue
				}
				loop.Blocks[cur.Label] = true
				for _, p := range cfg.Predecessors[cur] {
					worklist = append(worklist, p)
				}
			}
		}
	}

	loops := make([]*Loop, 0, len(byHeader))
	for _, l := range byHeader {
		loops = append(loops, l)
	}

	// Exit edges.
	for _, l := range loops {
		for label := range l.Blocks {
			b := cfg.BlockByLabel(label)
			for _, succ := range cfg.Successors[b] {
				if !l.Blocks[succ.Label] {
					l.Exits = append(l.Exits, LoopExit{From: label, To: succ.Label})
				}
			}
		}
		sort.Slice(l.Exits, func(i, j int) bool {
			if l.Exits[i].From != l.Exits[j].From {
				return l.Exits[i].From < l.Exits[j].From
			}
			return l.Exits[i].To < l.Exits[j].To
		})
		sort.Strings(l.Latches)
	}

	// Nesting: the parent is the smallest strict superset.
	for _, l := range loops {
		var parent *Loop
		for _, other := range loops {
			if other == l || !containsAll(other.Blocks, l.Blocks) {
				continue
			}
			if parent == nil || len(other.Blocks) < len(parent.Blocks) {
				parent = other
			}
		}
		if parent != nil {
			l.Parent = parent.Header
			parent.Children = append(parent.Children, l.Header)
		}
	}

	// Innermost first: ascending block count, ties by header label for
	// deterministic output.
	sort.Slice(loops, func(i, j int) bool {
		if len(loops[i].Blocks) != len(loops[j].Blocks) {
			return len(loops[i].Blocks) < len(loops[j].Blocks)
		}
		return loops[i].Header < loops[j].Header
	})
	for _, l := range loops {
		sort.Strings(l.Children)
	}
	return &LoopInfo{Loops: loops, byHeader: byHeader}
}

func containsAll(super, sub map[string]bool) bool {
	if len(super) <= len(sub) {
		return false
	}
	for label := range sub {
		if !super[label] {
			return false
		}
	}
	return true
}
