package passes

import "github.com/cotlang/cotc/internal/ssa"

// Lower runs the final machine-facing peephole pass (spec §4.3.4): strength
// reduction of power-of-two multiply to a shift, and identity
// simplifications that collapse to a plain copy. It runs after schedule,
// so it only rewrites values in place — it never needs to reorder or
// insert anything, since every replacement keeps the value's type and
// position: a multiply becomes a shift by swapping Op/Aux, and an identity
// collapses to a one-argument copy.
func Lower(fn *ssa.Func) {
	if fn.Extern {
		return
	}
	for _, b := range fn.Blocks {
		for _, id := range b.Values {
			lowerValue(fn, id)
		}
	}
}

func lowerValue(fn *ssa.Func, id int) {
	v := fn.Values[id]
	if v.Op != ssa.OpBinary {
		return
	}
	args := v.Args()
	if len(args) != 2 {
		return
	}
	rhs := fn.Values[args[1]]

	switch ssa.BinOp(v.Aux) {
	case ssa.BinMul:
		if rhs.Op == ssa.OpConstInt {
			if shift, ok := powerOfTwoShift(rhs.Aux); ok {
				if shift == 0 {
					collapseToCopy(fn, id, args[0])
					return
				}
				if rhs.Uses() == 1 {
					// rhs has no other reader: safe to repurpose it in
					// place as the shift-amount constant.
					v.Aux = int64(ssa.BinShl)
					rhs.Aux = shift
					return
				}
			}
		}
	case ssa.BinAdd:
		if rhs.Op == ssa.OpConstInt && rhs.Aux == 0 {
			collapseToCopy(fn, id, args[0])
			return
		}
	case ssa.BinShl, ssa.BinShr:
		if rhs.Op == ssa.OpConstInt && rhs.Aux == 0 {
			collapseToCopy(fn, id, args[0])
			return
		}
	}
}

// powerOfTwoShift reports the shift amount equivalent to multiplying by n,
// if n is a positive power of two (including 1, whose shift is 0).
func powerOfTwoShift(n int64) (int64, bool) {
	if n <= 0 {
		return 0, false
	}
	shift := int64(0)
	for m := n; m > 1; m >>= 1 {
		if m&1 != 0 {
			return 0, false
		}
		shift++
	}
	return shift, true
}

func collapseToCopy(fn *ssa.Func, id, replacement int) {
	fn.Values[id].Op = ssa.OpCopy
	fn.ResetArgs(id, []int{replacement})
}
