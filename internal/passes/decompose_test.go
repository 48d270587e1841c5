package passes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotlang/cotc/internal/passes"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

func TestDecomposeRewritesStringLoad(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	addr := fn.NewValue(b, ssa.OpLocalAddr, reg.MakePointer(reg.String))
	ld := fn.NewValue(b, ssa.OpLoad, reg.String)
	fn.AddArg(ld, addr)
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Decompose(fn, reg)

	v := fn.Values[ld]
	require.Equal(t, ssa.OpStringMake, v.Op)
	require.Len(t, v.Args(), 2)

	ptrLoad := fn.Values[v.Args()[0]]
	require.Equal(t, ssa.OpLoad, ptrLoad.Op)
	require.Equal(t, addr, ptrLoad.Args()[0])

	lenLoad := fn.Values[v.Args()[1]]
	require.Equal(t, ssa.OpLoad, lenLoad.Op)
	off := fn.Values[lenLoad.Args()[0]]
	require.Equal(t, ssa.OpOffsetPtr, off.Op)
	require.EqualValues(t, 8, off.Aux)
	require.Equal(t, addr, off.Args()[0])

	// Block's terminator must still be the last value.
	blk := fn.B(b)
	last := fn.Values[blk.Values[len(blk.Values)-1]]
	require.Equal(t, ssa.OpReturn, last.Op)
}

func TestDecomposeRewritesStringStore(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	addr := fn.NewValue(b, ssa.OpLocalAddr, reg.MakePointer(reg.String))
	p := fn.NewValue(b, ssa.OpConstPtr, reg.MakePointer(reg.U8))
	ln := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	mk := fn.NewValue(b, ssa.OpStringMake, reg.String)
	fn.AddArg(mk, p)
	fn.AddArg(mk, ln)
	st := fn.NewValue(b, ssa.OpStore, reg.Void)
	fn.AddArg(st, addr)
	fn.AddArg(st, mk)
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Decompose(fn, reg)

	ptrStore := fn.Values[st]
	require.Equal(t, ssa.OpStore, ptrStore.Op)
	require.Equal(t, []int{addr, p}, ptrStore.Args())

	var lenStore *ssa.Value
	for _, v := range fn.Values {
		if v.Op == ssa.OpStore && v.ID != st && len(v.Args()) == 2 && v.Args()[1] == ln {
			lenStore = v
		}
	}
	require.NotNil(t, lenStore, "expected a second store for the length word")
	off := fn.Values[lenStore.Args()[0]]
	require.Equal(t, ssa.OpOffsetPtr, off.Op)
	require.EqualValues(t, 8, off.Aux)
	require.Equal(t, addr, off.Args()[0])
}

func TestDecomposeRewritesConstString(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	fn.Strings = []string{"hi"}
	b := fn.NewBlock(ssa.BlockRet)

	cs := fn.NewValue(b, ssa.OpConstString, reg.String)
	fn.Values[cs].Aux = 0
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Decompose(fn, reg)

	v := fn.Values[cs]
	require.Equal(t, ssa.OpStringMake, v.Op)
	require.Len(t, v.Args(), 2)

	ptr := fn.Values[v.Args()[0]]
	require.Equal(t, ssa.OpConstPtr, ptr.Op)
	require.EqualValues(t, 0, ptr.Aux)

	ln := fn.Values[v.Args()[1]]
	require.Equal(t, ssa.OpConstInt, ln.Op)
	require.EqualValues(t, 2, ln.Aux)
}

// TestDecomposeIdempotent exercises spec §8 property 3: running decompose
// a second time over its own output must be a no-op.
func TestDecomposeIdempotent(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	fn.Strings = []string{"hi"}
	b := fn.NewBlock(ssa.BlockRet)

	cs := fn.NewValue(b, ssa.OpConstString, reg.String)
	fn.Values[cs].Aux = 0
	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.Decompose(fn, reg)
	countAfterFirst := len(fn.Values)

	passes.Decompose(fn, reg)
	require.Equal(t, countAfterFirst, len(fn.Values), "second decompose pass must not introduce further rewrites")
}
