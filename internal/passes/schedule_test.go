package passes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotlang/cotc/internal/passes"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

// TestScheduleKeepsPhisFirstAndTerminatorLast exercises the ordering
// contract schedule.go promises on top of the raw topological sort:
// phis always lead a block and the terminator always ends it.
func TestScheduleKeepsPhisFirstAndTerminatorLast(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	// Build out of order on purpose: terminator first, then a binary op
	// that depends on an arg, then the arg, then a phi.
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	add := fn.NewValue(b, ssa.OpBinary, reg.I64)
	arg := fn.NewValue(b, ssa.OpArg, reg.I64)
	phi := fn.NewValue(b, ssa.OpPhi, reg.I64)
	fn.AddArg(add, arg)
	fn.AddArg(add, phi)
	fn.AddArg(ret, add)

	passes.Schedule(fn)

	order := fn.B(b).Values
	require.Equal(t, ret, order[len(order)-1], "terminator must end the block")

	posPhi := indexOf(order, phi)
	posArg := indexOf(order, arg)
	posAdd := indexOf(order, add)
	require.Less(t, posPhi, posArg, "phi must precede the arg")
	require.Less(t, posArg, posAdd, "arg must precede its use")
	require.Less(t, posAdd, len(order)-1, "add must precede the terminator")
}

// TestScheduleIsStable exercises spec §8 property 4: scheduling an
// already-scheduled function again produces an identical order.
func TestScheduleIsStable(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	arg0 := fn.NewValue(b, ssa.OpArg, reg.I64)
	arg1 := fn.NewValue(b, ssa.OpArg, reg.I64)
	add := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.AddArg(add, arg0)
	fn.AddArg(add, arg1)
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, add)

	passes.Schedule(fn)
	first := append([]int(nil), fn.B(b).Values...)

	passes.Schedule(fn)
	second := fn.B(b).Values

	require.Equal(t, first, second)
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
