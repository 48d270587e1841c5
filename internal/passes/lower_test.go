package passes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotlang/cotc/internal/passes"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

func TestLowerStrengthReducesPowerOfTwoMultiply(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	x := fn.NewValue(b, ssa.OpArg, reg.I64)
	eight := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[eight].Aux = 8
	mul := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[mul].Aux = int64(ssa.BinMul)
	fn.AddArg(mul, x)
	fn.AddArg(mul, eight)
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Lower(fn)

	v := fn.Values[mul]
	require.EqualValues(t, ssa.BinShl, v.Aux)
	require.EqualValues(t, 3, fn.Values[eight].Aux)
}

func TestLowerCollapsesAddZeroToCopy(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	x := fn.NewValue(b, ssa.OpArg, reg.I64)
	zero := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	add := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[add].Aux = int64(ssa.BinAdd)
	fn.AddArg(add, x)
	fn.AddArg(add, zero)
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Lower(fn)

	v := fn.Values[add]
	require.Equal(t, ssa.OpCopy, v.Op)
	require.Equal(t, []int{x}, v.Args())
}

func TestLowerLeavesNonPowerOfTwoMultiplyAlone(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	x := fn.NewValue(b, ssa.OpArg, reg.I64)
	three := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[three].Aux = 3
	mul := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[mul].Aux = int64(ssa.BinMul)
	fn.AddArg(mul, x)
	fn.AddArg(mul, three)
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Lower(fn)

	require.Equal(t, ssa.OpBinary, fn.Values[mul].Op)
	require.EqualValues(t, ssa.BinMul, fn.Values[mul].Aux)
}
