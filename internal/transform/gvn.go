package transform

import (
	"viper/internal/analysis"
	"viper/internal/ir"
)

// GVN with redundant load elimination. Extends the EarlyCSE traversal with a
// per-dominator-path table of available loads keyed by (pointer, type). A
// load first tries an exact pointer match, then falls back to a MustAlias
// scan. Stores invalidate every entry whose pointer may alias theirs;
// modifying calls clear the table, Ref-only calls leave it intact.

type loadKey struct {
	ptr string // canonical encoding of the pointer value
	typ ir.Type
}

type availLoad struct {
	ptr ir.Value
	val ir.Value
}

func runGVN(fn *ir.Function, dom *analysis.DomTree, aa *analysis.BasicAA) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	subst := substMap{}

	// Load availability may only flow into a block with a unique predecessor:
	// that predecessor is exactly its idom, so the inherited table is the
	// true state on every path in. Join blocks restart with nothing —
	// a sibling path may have clobbered memory.
	cfg := analysis.BuildCFG(fn)

	var walk func(b *ir.BasicBlock, exprs map[ValueKey]ir.Value, loads map[loadKey]availLoad)
	walk = func(b *ir.BasicBlock, exprs map[ValueKey]ir.Value, loads map[loadKey]availLoad) {
		for i := 0; i < len(b.Instrs); i++ {
			in := &b.Instrs[i]
			rewriteOperands(in, subst)

			switch {
			case in.Op == ir.Load:
				ptr := in.Operands[0]
				key := loadKey{ptr: encodeValue(ptr), typ: in.Type}
				if hit, ok := loads[key]; ok {
					id, _ := in.ResultID()
					subst[id] = hit.val
					b.Remove(i)
					i--
					continue
				}
				// MustAlias fallback: a load through a differently-spelled
				// pointer to provably the same location.
				size := analysis.TypeSizeBytes(in.Type)
				replaced := false
				for k, hit := range loads {
					if k.typ != in.Type {
						continue
					}
					if aa.AliasSized(ptr, hit.ptr, size, size) == analysis.MustAlias {
						id, _ := in.ResultID()
						subst[id] = hit.val
						b.Remove(i)
						i--
						replaced = true
						break
					}
				}
				if replaced {
					continue
				}
				id, _ := in.ResultID()
				loads[key] = availLoad{ptr: ptr, val: ir.Temp(id)}

			case in.Op == ir.Store:
				ptr := in.Operands[0]
				size := analysis.TypeSizeBytes(in.Type)
				for k, hit := range loads {
					hitSize := analysis.TypeSizeBytes(k.typ)
					if aa.AliasSized(hit.ptr, ptr, hitSize, size) != analysis.NoAlias {
						delete(loads, k)
					}
				}

			case in.Op.IsCall():
				switch aa.ModRef(in) {
				case analysis.Mod, analysis.ModRef:
					for k := range loads {
						delete(loads, k)
					}
				}

			default:
				key, ok := MakeValueKey(in)
				if !ok {
					continue
				}
				if existing, hit := exprs[key]; hit {
					id, _ := in.ResultID()
					subst[id] = existing
					b.Remove(i)
					i--
					continue
				}
				id, hasResult := in.ResultID()
				if hasResult {
					exprs[key] = ir.Temp(id)
				}
			}
		}

		for _, child := range dom.Children[b] {
			childLoads := make(map[loadKey]availLoad)
			if len(cfg.Predecessors[child]) == 1 {
				childLoads = cloneLoadTable(loads)
			}
			walk(child, cloneExprTable(exprs), childLoads)
		}
	}

	walk(fn.Entry(), make(map[ValueKey]ir.Value), make(map[loadKey]availLoad))

	changed := len(subst) > 0
	applySubst(fn, subst)
	return changed
}

func cloneLoadTable(m map[loadKey]availLoad) map[loadKey]availLoad {
	c := make(map[loadKey]availLoad, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
