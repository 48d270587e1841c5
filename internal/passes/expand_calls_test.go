package passes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotlang/cotc/internal/passes"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

// TestExpandCallsRewritesAggregateArgToPointer exercises spec §4.3.1: a
// >16-byte struct argument that arrives as a direct load of its source
// address must be rewritten to pass that address instead, per the ABI's
// hidden-pointer convention.
func TestExpandCallsRewritesAggregateArgToPointer(t *testing.T) {
	reg := types.New()
	big := reg.MakeStruct("Big", []types.Field{
		{Name: "a", Type: reg.I64},
		{Name: "b", Type: reg.I64},
		{Name: "c", Type: reg.I64},
	})
	require.Greater(t, reg.SizeOf(big), 16)

	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	addr := fn.NewValue(b, ssa.OpLocalAddr, reg.MakePointer(big))
	ld := fn.NewValue(b, ssa.OpLoad, big)
	fn.AddArg(ld, addr)

	call := fn.NewValue(b, ssa.OpCall, reg.Void)
	fn.AddArg(call, ld)

	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.ExpandCalls(fn, reg)

	callArgs := fn.Values[call].Args()
	require.Len(t, callArgs, 1)
	require.Equal(t, addr, callArgs[0], "call argument should be rewritten to the load's source address")

	// The original load is now unreferenced, not deleted outright.
	require.Equal(t, 0, fn.Values[ld].Uses())
}

// TestExpandCallsSplitsStringResult exercises spec §4.3.1's multi-register
// result handling: a call returning a string must have its result split
// into two select_n projections and reassembled via string_make, with
// every prior direct user of the call redirected to the reassembled value.
func TestExpandCallsSplitsStringResult(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("f")
	b := fn.NewBlock(ssa.BlockRet)

	call := fn.NewValue(b, ssa.OpCall, reg.String)

	// A user of the call result, e.g. an argument to a later store.
	user := fn.NewValue(b, ssa.OpStore, reg.Void)
	addr := fn.NewValue(b, ssa.OpLocalAddr, reg.MakePointer(reg.String))
	fn.AddArg(user, addr)
	fn.AddArg(user, call)

	fn.NewValue(b, ssa.OpReturn, reg.Void)

	passes.ExpandCalls(fn, reg)

	var selects []*ssa.Value
	var stringMake *ssa.Value
	for _, v := range fn.Values {
		switch v.Op {
		case ssa.OpSelectN:
			if len(v.Args()) == 1 && v.Args()[0] == call {
				selects = append(selects, v)
			}
		case ssa.OpStringMake:
			stringMake = v
		}
	}
	require.Len(t, selects, 2, "expected two select_n projections of the call result")
	require.NotNil(t, stringMake)

	userArgs := fn.Values[user].Args()
	require.Len(t, userArgs, 2)
	require.Equal(t, stringMake.ID, userArgs[1], "the store's value operand should be redirected to the reassembled string")

	// The call itself should no longer be directly referenced by the store.
	for _, a := range userArgs {
		require.NotEqual(t, call, a, "call id must not remain as a direct use after redirection")
	}
}
