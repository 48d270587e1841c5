package ssa

// Doms computes, for every block, the set of blocks that dominate it
// (including itself), via the textbook iterative dataflow fixed point:
// Dom(entry) = {entry}; Dom(n) = {n} ∪ ⋂ Dom(p) for p ∈ preds(n).
// Functions here are small enough that the O(n²) bitset approach is
// simpler and just as fast in practice as a proper Lengauer-Tarjan pass.
func Doms(f *Func) [][]bool {
	n := len(f.Blocks)
	dom := make([][]bool, n)
	all := make([]bool, n)
	for i := range all {
		all[i] = true
	}
	for i := range dom {
		if i == f.Entry {
			row := make([]bool, n)
			row[f.Entry] = true
			dom[i] = row
		} else {
			dom[i] = append([]bool(nil), all...)
		}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range f.Blocks {
			if b.ID == f.Entry {
				continue
			}
			if len(b.Preds) == 0 {
				continue
			}
			next := append([]bool(nil), dom[b.Preds[0]]...)
			for _, p := range b.Preds[1:] {
				for i := range next {
					next[i] = next[i] && dom[p][i]
				}
			}
			next[b.ID] = true
			if !boolsEqual(next, dom[b.ID]) {
				dom[b.ID] = next
				changed = true
			}
		}
	}
	return dom
}

func boolsEqual(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Dominates reports whether block a dominates block b, given the
// dominator sets returned by Doms.
func Dominates(dom [][]bool, a, b int) bool {
	return dom[b][a]
}
