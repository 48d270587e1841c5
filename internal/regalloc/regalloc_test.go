package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/regalloc"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

func TestAllocateGivesEveryUsedValueAHome(t *testing.T) {
	reg := types.New()
	rep := diag.NewReporter(zap.NewNop())
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	a := fn.NewValue(b, ssa.OpArg, reg.I64)
	c := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c].Aux = 1
	add := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.AddArg(add, a)
	fn.AddArg(add, c)
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, add)

	frame := regalloc.Allocate(fn, rep)
	require.GreaterOrEqual(t, frame.Size, 0)

	require.Equal(t, ssa.HomeNone, fn.Values[c].Home.Kind, "constants are rematerialized, never homed")
	require.Equal(t, ssa.HomeReg, fn.Values[add].Home.Kind, "add's result is used by the return and needs a register")
}

func TestAllocateSpillsUnderRegisterPressure(t *testing.T) {
	reg := types.New()
	rep := diag.NewReporter(zap.NewNop())
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	// Produce more live non-rematerializable values than NumGPR by
	// chaining successive binary ops that all stay live until a final
	// sum, forcing the allocator to spill at least one.
	n := regalloc.NumGPR + 4
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		arg := fn.NewValue(b, ssa.OpArg, reg.I64)
		v := fn.NewValue(b, ssa.OpUnary, reg.I64)
		fn.Values[v].Aux = int64(ssa.UnNeg)
		fn.AddArg(v, arg)
		ids[i] = v
	}
	sum := ids[0]
	for i := 1; i < n; i++ {
		next := fn.NewValue(b, ssa.OpBinary, reg.I64)
		fn.Values[next].Aux = int64(ssa.BinAdd)
		fn.AddArg(next, sum)
		fn.AddArg(next, ids[i])
		sum = next
	}
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, sum)

	frame := regalloc.Allocate(fn, rep)
	require.Greater(t, frame.Size, 0, "register pressure should have forced at least one spill slot")

	var sawStack bool
	for _, v := range fn.Values {
		if v.Home.Kind == ssa.HomeStack {
			sawStack = true
		}
	}
	require.True(t, sawStack, "expected at least one value to be spilled to the stack")
}

func TestParallelCopyBreaksCycle(t *testing.T) {
	r0 := ssa.Home{Kind: ssa.HomeReg, Reg: 0}
	r1 := ssa.Home{Kind: ssa.HomeReg, Reg: 1}
	moves := []regalloc.PhiMove{
		{From: r0, To: r1},
		{From: r1, To: r0},
	}
	out := regalloc.ParallelCopy(moves)
	require.Len(t, out, 3, "a 2-cycle needs a scratch hop, producing 3 total moves")

	scratchUsed := false
	for _, m := range out {
		if m.To.Reg == regalloc.ScratchReg || m.From.Reg == regalloc.ScratchReg {
			scratchUsed = true
		}
	}
	require.True(t, scratchUsed)
}
