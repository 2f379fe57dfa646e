package analysis

import (
	"viper/internal/ir"
)

// Lightweight memory SSA: every store, load, and memory-touching call gets a
// MemoryAccess node; stores produce defs, loads produce uses, and joins where
// reaching defs diverge get phis. The payoff over a plain CFG walk is that
// calls are transparent for non-escaping allocas — external code cannot read
// or write a stack slot whose address never escapes — which is exactly the
// precision dead-store elimination needs.

// MemAccessKind identifies a node's role in the MemorySSA graph.
type MemAccessKind uint8

const (
	MemLiveOnEntry MemAccessKind = iota // synthetic pre-function memory state
	MemDef                              // store or modifying call
	MemUse                              // load or reading call
	MemPhi                              // join of diverging reaching defs
)

// phiSlot is the instrToAccess key used for a block's phi node.
const phiSlot = -1

// MemoryAccess is a single node in the def-use graph. Nodes are stored and
// indexed inside MemorySSA; consumers hold dense ids.
type MemoryAccess struct {
	Kind           MemAccessKind
	ID             uint32
	Block          *ir.BasicBlock // nil for LiveOnEntry
	InstrIndex     int            // index into Block.Instrs; -1 for phis
	DefiningAccess uint32
	Incoming       []uint32 // for phis: one reaching def per predecessor
	Users          []uint32
}

// MemorySSA is the per-function analysis result.
type MemorySSA struct {
	accesses      []MemoryAccess
	instrToAccess map[*ir.BasicBlock]map[int]uint32
	deadStores    map[uint32]bool
}

// Accesses exposes the full node table; index 0 is the LiveOnEntry sentinel.
func (m *MemorySSA) Accesses() []MemoryAccess { return m.accesses }

// AccessFor returns the node assigned to block.Instrs[idx], or nil.
func (m *MemorySSA) AccessFor(block *ir.BasicBlock, idx int) *MemoryAccess {
	ids, ok := m.instrToAccess[block]
	if !ok {
		return nil
	}
	id, ok := ids[idx]
	if !ok || int(id) >= len(m.accesses) {
		return nil
	}
	return &m.accesses[id]
}

// IsDeadStore reports whether the store at block.Instrs[idx] is provably dead:
// on every path from it, the location is overwritten or the function returns
// before any load may read it, with calls treated as transparent for the
// non-escaping alloca it targets. A store overwritten later in its own block,
// or one in a block with no successors, is not reported.
func (m *MemorySSA) IsDeadStore(block *ir.BasicBlock, idx int) bool {
	ids, ok := m.instrToAccess[block]
	if !ok {
		return false
	}
	id, ok := ids[idx]
	if !ok {
		return false
	}
	return m.deadStores[id]
}

// NonEscapingAllocas computes the alloca temps of fn whose address is never
// passed to a call or stored through another pointer.
func NonEscapingAllocas(fn *ir.Function) map[uint32]bool {
	escapes := make(map[uint32]bool)
	result := make(map[uint32]bool)
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			switch {
			case in.Op.IsCall():
				for _, op := range in.Operands {
					if op.Kind == ir.ValueTemp {
						escapes[op.ID] = true
					}
				}
			case in.Op == ir.Store && len(in.Operands) >= 2:
				if v := in.Operands[1]; v.Kind == ir.ValueTemp {
					escapes[v.ID] = true
				}
			}
		}
	}
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Op == ir.Alloca {
				if id, ok := in.ResultID(); ok && !escapes[id] {
					result[id] = true
				}
			}
		}
	}
	return result
}

// ComputeMemorySSA builds the analysis for fn using aa for call effects and
// alias queries.
func ComputeMemorySSA(fn *ir.Function, aa *BasicAA) *MemorySSA {
	m := &MemorySSA{
		instrToAccess: make(map[*ir.BasicBlock]map[int]uint32),
		deadStores:    make(map[uint32]bool),
	}
	if len(fn.Blocks) == 0 {
		return m
	}

	m.accesses = append(m.accesses, MemoryAccess{Kind: MemLiveOnEntry, InstrIndex: -1})

	record := func(b *ir.BasicBlock, idx int, id uint32) {
		if m.instrToAccess[b] == nil {
			m.instrToAccess[b] = make(map[int]uint32)
		}
		m.instrToAccess[b][idx] = id
	}
	makeAccess := func(kind MemAccessKind, b *ir.BasicBlock, idx int, def uint32) uint32 {
		id := uint32(len(m.accesses))
		m.accesses = append(m.accesses, MemoryAccess{Kind: kind, ID: id, Block: b, InstrIndex: idx, DefiningAccess: def})
		record(b, idx, id)
		return id
	}
	lookup := func(b *ir.BasicBlock, idx int) uint32 {
		if ids, ok := m.instrToAccess[b]; ok {
			return ids[idx] // zero when absent; id 0 is LiveOnEntry, never an instr access
		}
		return 0
	}

	nonEsc := NonEscapingAllocas(fn)
	cfg := BuildCFG(fn)
	rpo := cfg.ReversePostOrder()

	outDef := make(map[*ir.BasicBlock]uint32, len(fn.Blocks))
	for _, b := range fn.Blocks {
		outDef[b] = 0
	}

	// Forward dataflow to a fixed point, bounded by |blocks|+1 passes.
	maxIter := len(fn.Blocks) + 1
	for iter := 0; iter < maxIter; iter++ {
		changed := false

		for _, b := range rpo {
			inDef := uint32(0)

			preds := cfg.Predecessors[b]
			if len(preds) > 0 {
				first := outDef[preds[0]]
				allSame := true
				for _, p := range preds[1:] {
					if outDef[p] != first {
						allSame = false
						break
					}
				}
				if allSame {
					inDef = first
				} else {
					phiID := lookup(b, phiSlot)
					if phiID == 0 {
						phiID = uint32(len(m.accesses))
						incoming := make([]uint32, len(preds))
						for i, p := range preds {
							incoming[i] = outDef[p]
						}
						m.accesses = append(m.accesses, MemoryAccess{
							Kind: MemPhi, ID: phiID, Block: b, InstrIndex: phiSlot, Incoming: incoming,
						})
						record(b, phiSlot, phiID)
						changed = true
					} else {
						phi := &m.accesses[phiID]
						for i, p := range preds {
							arm := outDef[p]
							if i >= len(phi.Incoming) {
								phi.Incoming = append(phi.Incoming, arm)
								changed = true
							} else if phi.Incoming[i] != arm {
								phi.Incoming[i] = arm
								changed = true
							}
						}
					}
					inDef = phiID
				}
			}

			curDef := inDef
			for i := range b.Instrs {
				in := &b.Instrs[i]
				existing := lookup(b, i)

				switch {
				case in.Op == ir.Store:
					if existing == 0 {
						curDef = makeAccess(MemDef, b, i, curDef)
						changed = true
					} else {
						acc := &m.accesses[existing]
						if acc.DefiningAccess != curDef {
							acc.DefiningAccess = curDef
							changed = true
						}
						curDef = existing
					}

				case in.Op == ir.Load:
					if existing == 0 {
						useID := makeAccess(MemUse, b, i, curDef)
						m.accesses[curDef].Users = append(m.accesses[curDef].Users, useID)
						changed = true
					} else {
						acc := &m.accesses[existing]
						if acc.DefiningAccess != curDef {
							old := acc.DefiningAccess
							m.accesses[old].Users = removeID(m.accesses[old].Users, existing)
							acc.DefiningAccess = curDef
							m.accesses[curDef].Users = append(m.accesses[curDef].Users, existing)
							changed = true
						}
					}

				case in.Op.IsCall():
					mr := aa.ModRef(in)
					if mr == NoModRef {
						continue
					}
					// Modifying calls define a new version of global memory;
					// reading is implicit in the def's DefiningAccess link.
					// There is one def chain for all locations, so later
					// loads of non-escaping allocas hang off this def too;
					// the dead-store scan below skips calls, which is where
					// they are transparent for such allocas.
					if mr == Mod || mr == ModRef {
						if existing == 0 {
							curDef = makeAccess(MemDef, b, i, curDef)
							changed = true
						} else {
							acc := &m.accesses[existing]
							if acc.DefiningAccess != curDef {
								acc.DefiningAccess = curDef
								changed = true
							}
							curDef = existing
						}
					} else if mr == Ref {
						if existing == 0 {
							useID := makeAccess(MemUse, b, i, curDef)
							m.accesses[curDef].Users = append(m.accesses[curDef].Users, useID)
							changed = true
						} else {
							acc := &m.accesses[existing]
							if acc.DefiningAccess != curDef {
								old := acc.DefiningAccess
								m.accesses[old].Users = removeID(m.accesses[old].Users, existing)
								acc.DefiningAccess = curDef
								m.accesses[curDef].Users = append(m.accesses[curDef].Users, existing)
								changed = true
							}
						}
					}
				}
			}

			if outDef[b] != curDef {
				outDef[b] = curDef
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	m.findDeadStores(fn, aa, cfg, nonEsc)
	return m
}

// findDeadStores runs the precise per-store forward scan. Calls are skipped
// entirely: a non-escaping alloca is invisible to them.
func (m *MemorySSA) findDeadStores(fn *ir.Function, aa *BasicAA, cfg *CFGInfo, nonEsc map[uint32]bool) {
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			in := &b.Instrs[i]
			if in.Op != ir.Store || len(in.Operands) == 0 {
				continue
			}
			ptr := in.Operands[0]
			if ptr.Kind != ir.ValueTemp || !nonEsc[ptr.ID] {
				continue
			}
			storeSize := TypeSizeBytes(in.Type)

			dead := true

			// Remainder of the defining block.
			for j := i + 1; j < len(b.Instrs); j++ {
				next := &b.Instrs[j]
				if next.Op == ir.Load && len(next.Operands) > 0 {
					if aa.AliasSized(next.Operands[0], ptr, TypeSizeBytes(next.Type), storeSize) != NoAlias {
						dead = false
						break
					}
				}
				if next.Op == ir.Store && len(next.Operands) > 0 {
					if aa.AliasSized(next.Operands[0], ptr, TypeSizeBytes(next.Type), storeSize) == MustAlias {
						// A same-block overwrite is the intra-block DSE tier's
						// case, not ours.
						dead = false
						break
					}
				}
			}
			if !dead {
				continue
			}

			// BFS over successor blocks: every path must reach a killing
			// store or a return without passing a load that may alias.
			visited := make(map[string]bool)
			var worklist []string
			if term := b.Terminator(); term != nil {
				worklist = append(worklist, term.Labels...)
			}

			allPathsKillOrExit := true
			for len(worklist) > 0 && allPathsKillOrExit {
				label := worklist[len(worklist)-1]
				worklist = worklist[:len(worklist)-1]
				if visited[label] {
					continue
				}
				visited[label] = true

				succ := cfg.BlockByLabel(label)
				if succ == nil {
					allPathsKillOrExit = false
					continue
				}

				pathKilled := false
				for k := range succ.Instrs {
					next := &succ.Instrs[k]
					if next.Op == ir.Load && len(next.Operands) > 0 {
						if aa.AliasSized(next.Operands[0], ptr, TypeSizeBytes(next.Type), storeSize) != NoAlias {
							allPathsKillOrExit = false
							break
						}
					}
					if next.Op == ir.Store && len(next.Operands) > 0 {
						if aa.AliasSized(next.Operands[0], ptr, TypeSizeBytes(next.Type), storeSize) == MustAlias {
							pathKilled = true
							break
						}
					}
				}
				if !allPathsKillOrExit || pathKilled {
					continue
				}

				term := succ.Terminator()
				if term != nil && term.Op == ir.Ret {
					continue // exits without reading
				}
				if term != nil {
					for _, l := range term.Labels {
						if !visited[l] {
							worklist = append(worklist, l)
						}
					}
				}
			}

			if allPathsKillOrExit && len(visited) > 0 {
				if id := m.lookupAccess(b, i); id != 0 {
					m.deadStores[id] = true
				}
			}
		}
	}
}

func (m *MemorySSA) lookupAccess(b *ir.BasicBlock, idx int) uint32 {
	if ids, ok := m.instrToAccess[b]; ok {
		return ids[idx]
	}
	return 0
}

func removeID(ids []uint32, id uint32) []uint32 {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
