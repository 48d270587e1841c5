package ssa_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cotlang/cotc/internal/astfixture"
	"github.com/cotlang/cotc/internal/astiface"
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/ir"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

func build(t *testing.T, fn func(reg *types.Registry, b *astfixture.Builder)) *ssa.Func {
	t.Helper()
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	fn(reg, b)
	tree := b.Build()

	rep := diag.NewReporter(zap.NewNop())
	var ssaFn *ssa.Func
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				require.NoError(t, diag.Recover(rec))
			}
		}()
		lowerer := ir.NewLowerer(reg, rep, tree)
		mod := lowerer.Lower()
		ssaFn = ssa.NewBuilder(reg, rep, mod.Funcs[0]).Build()
	}()
	return ssaFn
}

func TestBuilderReturnConstantVerifies(t *testing.T) {
	fn := build(t, func(reg *types.Registry, b *astfixture.Builder) {
		body := b.Block(b.Return(b.Int(42)))
		b.Func("main", nil, reg.I64, body)
	})
	require.NotNil(t, fn)
	require.NoError(t, ssa.NewVerifier(fn).Verify())
}

// TestBuilderDiamondPhi exercises spec §8 property 2: an if/else that both
// assign to the same local and fall through to a shared merge point must
// produce exactly one arity-2 phi in the merge block, whose arguments
// correspond to predecessor order.
func TestBuilderDiamondPhi(t *testing.T) {
	fn := build(t, func(reg *types.Registry, b *astfixture.Builder) {
		decl := b.VarDecl("x", reg.I64, 0)
		thenBlk := b.Block(b.Assign(b.Ident("x", reg.I64), b.Int(1)))
		elseBlk := b.Block(b.Assign(b.Ident("x", reg.I64), b.Int(2)))
		ifStmt := b.If(b.Bool(true), thenBlk, elseBlk)
		ret := b.Return(b.Ident("x", reg.I64))
		body := b.Block(decl, ifStmt, ret)
		b.Func("f", nil, reg.I64, body)
	})
	require.NoError(t, ssa.NewVerifier(fn).Verify())

	var mergeBlock *ssa.Block
	for _, blk := range fn.Blocks {
		if len(blk.Preds) == 2 {
			mergeBlock = blk
			break
		}
	}
	require.NotNil(t, mergeBlock, "expected a merge block with two predecessors")

	var phis []int
	for _, id := range mergeBlock.Values {
		if fn.Values[id].Op == ssa.OpPhi {
			phis = append(phis, id)
		}
	}
	require.Len(t, phis, 1)
	require.Len(t, fn.Values[phis[0]].Args(), 2)
}

func TestBuilderWhileLoopCarriesPhi(t *testing.T) {
	fn := build(t, func(reg *types.Registry, b *astfixture.Builder) {
		decl := b.VarDecl("i", reg.I64, b.Int(0))
		cond := b.Compare("<", b.Ident("i", reg.I64), b.Int(10), reg)
		inc := b.Assign(b.Ident("i", reg.I64), b.Binary("+", b.Ident("i", reg.I64), b.Int(1), reg.I64))
		loop := b.While(cond, b.Block(inc))
		ret := b.Return(b.Ident("i", reg.I64))
		body := b.Block(decl, loop, ret)
		b.Func("f", nil, reg.I64, body)
	})
	require.NoError(t, ssa.NewVerifier(fn).Verify())
}

func TestBuilderCallArgsDominate(t *testing.T) {
	fn := build(t, func(reg *types.Registry, b *astfixture.Builder) {
		a := astiface.Param{Name: "a", Type: reg.I64}
		bb := astiface.Param{Name: "b", Type: reg.I64}
		body := b.Block(b.Return(b.Binary("+", b.Ident("a", reg.I64), b.Ident("b", reg.I64), reg.I64)))
		b.Func("add", []astiface.Param{a, bb}, reg.I64, body)
	})
	require.NoError(t, ssa.NewVerifier(fn).Verify())
	require.Len(t, fn.Params, 2)
}

func TestBuilderStringParamReassembled(t *testing.T) {
	fn := build(t, func(reg *types.Registry, b *astfixture.Builder) {
		p := astiface.Param{Name: "s", Type: reg.String}
		body := b.Block(b.Return(b.Call("len", reg.I64, b.Ident("s", reg.String))))
		b.Func("f", []astiface.Param{p}, reg.I64, body)
	})
	require.NoError(t, ssa.NewVerifier(fn).Verify())

	var sawStringMake bool
	for _, v := range fn.Values {
		if v.Op == ssa.OpStringMake {
			sawStringMake = true
		}
	}
	require.True(t, sawStringMake)
}
