package passes

import "github.com/cotlang/cotc/internal/ssa"

// schedulePriority buckets a value by its op for the topological sort
// below: phis must sort first (spec §3.3's phis-first invariant), then
// incoming arguments, then call-result projections, then stores, then
// everything else, then the block's own terminator last.
func schedulePriority(op ssa.Op) int {
	switch {
	case op.IsPhi():
		return 0
	case op == ssa.OpArg:
		return 1
	case op == ssa.OpSelectN:
		return 2
	case op == ssa.OpStore, op == ssa.OpFieldStore, op == ssa.OpStoreReg:
		return 3
	case op.IsTerminator():
		return 5
	default:
		return 4
	}
}

// Schedule orders each block's values into a valid topological sort,
// breaking ties by priority bucket and then by original position, so two
// runs over the same (unchanged) function always produce the same order
// (spec §4.3.3, tested as spec §8 property 4).
func Schedule(fn *ssa.Func) {
	if fn.Extern {
		return
	}
	for _, b := range fn.Blocks {
		scheduleBlock(fn, b)
	}
}

func scheduleBlock(fn *ssa.Func, b *ssa.Block) {
	origPos := make(map[int]int, len(b.Values))
	for i, id := range b.Values {
		origPos[id] = i
	}

	// Memory ordering: a store must not be reordered before an earlier
	// store or load it could alias, so every store/load in original
	// sequence order picks up a dependency edge on the previous memory
	// op in that same sequence.
	var lastMem int = -1
	memDep := make(map[int]int, len(b.Values))
	for _, id := range b.Values {
		op := fn.Values[id].Op
		if isMemoryOp(op) {
			if lastMem != -1 {
				memDep[id] = lastMem
			}
			lastMem = id
		}
	}

	inBlock := make(map[int]bool, len(b.Values))
	for _, id := range b.Values {
		inBlock[id] = true
	}

	deps := make(map[int][]int, len(b.Values))
	indeg := make(map[int]int, len(b.Values))
	for _, id := range b.Values {
		indeg[id] = 0
	}
	addDep := func(from, to int) {
		// to must be scheduled before from.
		deps[to] = append(deps[to], from)
		indeg[from]++
	}
	for _, id := range b.Values {
		v := fn.Values[id]
		if !v.Op.IsPhi() {
			for _, a := range v.Args() {
				if inBlock[a] {
					addDep(id, a)
				}
			}
		}
		if m, ok := memDep[id]; ok && inBlock[m] {
			addDep(id, m)
		}
	}

	// Priority queue over a fixed value set: pick the lowest
	// (priority, origPos) ready node each step. Block sizes in this core
	// are small (spec §9), so a linear scan per step is deliberate over a
	// heap.
	scheduled := make([]int, 0, len(b.Values))
	remaining := make(map[int]bool, len(b.Values))
	for _, id := range b.Values {
		remaining[id] = true
	}
	for len(scheduled) < len(b.Values) {
		best := -1
		for id := range remaining {
			if indeg[id] != 0 {
				continue
			}
			if best == -1 || better(fn, origPos, id, best) {
				best = id
			}
		}
		scheduled = append(scheduled, best)
		delete(remaining, best)
		for _, dep := range deps[best] {
			indeg[dep]--
		}
	}
	b.Values = scheduled
}

func better(fn *ssa.Func, origPos map[int]int, a, b int) bool {
	pa, pb := schedulePriority(fn.Values[a].Op), schedulePriority(fn.Values[b].Op)
	if pa != pb {
		return pa < pb
	}
	return origPos[a] < origPos[b]
}

func isMemoryOp(op ssa.Op) bool {
	switch op {
	case ssa.OpLoad, ssa.OpStore, ssa.OpFieldAccess, ssa.OpFieldStore, ssa.OpMove:
		return true
	default:
		return false
	}
}
