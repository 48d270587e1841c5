package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cotlang/cotc/internal/astfixture"
	"github.com/cotlang/cotc/internal/astiface"
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/ir"
	"github.com/cotlang/cotc/internal/types"
	"go.uber.org/zap"
)

func newLowerer(t *testing.T, reg *types.Registry, tree astiface.Tree) *ir.Lowerer {
	t.Helper()
	rep := diag.NewReporter(zap.NewNop())
	return ir.NewLowerer(reg, rep, tree)
}

func lowerOK(t *testing.T, reg *types.Registry, tree astiface.Tree) (mod *ir.Module) {
	t.Helper()
	l := newLowerer(t, reg, tree)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err := diag.Recover(rec)
				require.NoError(t, err)
			}
		}()
		mod = l.Lower()
	}()
	return mod
}

func TestLowerReturnConstant(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	ret := b.Return(b.Int(42))
	body := b.Block(ret)
	b.Func("main", nil, reg.I64, body)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	require.Len(t, mod.Funcs, 1)
	fn := mod.Funcs[0]
	require.Equal(t, "main", fn.Name)
	require.Len(t, fn.Blocks, 1)

	last := fn.Nodes[len(fn.Nodes)-1]
	require.Equal(t, ir.OpReturn, last.Op)
	require.Len(t, last.Args, 1)
	require.Equal(t, ir.OpConstInt, fn.NodeAt(last.Args[0]).Op)
	require.EqualValues(t, 42, fn.NodeAt(last.Args[0]).Aux)
}

func TestLowerExternHasNoBody(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	b.Extern("puts", []astiface.Param{{Name: "s", Type: reg.String}}, reg.I32)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	require.Len(t, mod.Funcs, 1)
	fn := mod.Funcs[0]
	require.True(t, fn.Extern)
	require.Empty(t, fn.Nodes)
	require.Empty(t, fn.Blocks)
	require.Len(t, fn.Params, 1)
}

func TestLowerIfElseBothArmsReturnProducesFourBlocks(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	cond := b.Compare("<", b.Int(1), b.Int(2), reg)
	thenBlk := b.Block(b.Return(b.Int(1)))
	elseBlk := b.Block(b.Return(b.Int(0)))
	ifStmt := b.If(cond, thenBlk, elseBlk)
	body := b.Block(ifStmt)
	b.Func("choose", nil, reg.I64, body)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	fn := mod.Funcs[0]
	// entry, then, else, and a trailing dead block (both arms return, so
	// the merge point is never created)
	require.Len(t, fn.Blocks, 4)

	entry := fn.Blocks[0]
	entryLast := fn.Nodes[entry.End-1]
	require.Equal(t, ir.OpBranch, entryLast.Op)

	for _, blk := range fn.Blocks[1:3] {
		last := fn.Nodes[blk.End-1]
		require.Equal(t, ir.OpReturn, last.Op)
	}
}

func TestLowerWhileLoopStructure(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	body := b.Block(b.Return(nil_()))
	cond := b.Bool(true)
	loop := b.While(cond, body)
	fnBody := b.Block(loop, b.Return(nil_()))
	b.Func("spin", nil, reg.Void, fnBody)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	fn := mod.Funcs[0]
	require.Len(t, fn.Blocks, 4) // entry, cond, body, exit

	condBlk := fn.Blocks[1]
	last := fn.Nodes[condBlk.End-1]
	require.Equal(t, ir.OpBranch, last.Op)
}

func TestLowerBreakContinue(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	brk := b.Break()
	cont := b.Continue()
	cond := b.Bool(true)
	loopBody := b.Block(brk, cont)
	loop := b.While(cond, loopBody)
	fnBody := b.Block(loop, b.Return(nil_()))
	b.Func("f", nil, reg.Void, fnBody)
	tree := b.Build()

	lowerOK(t, reg, tree)
}

func TestLowerVarDeclAndAssign(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	decl := b.VarDecl("x", reg.I64, b.Int(10))
	assign := b.Assign(b.Ident("x", reg.I64), b.Int(20))
	ret := b.Return(b.Ident("x", reg.I64))
	body := b.Block(decl, assign, ret)
	b.Func("f", nil, reg.I64, body)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	fn := mod.Funcs[0]
	require.Len(t, fn.Locals, 1)

	var stores int
	for _, n := range fn.Nodes {
		if n.Op == ir.OpStoreLocal {
			stores++
		}
	}
	require.Equal(t, 2, stores) // initializer + assign
}

func TestLowerStringAssignExpandsToPtrLenPair(t *testing.T) {
	reg := types.New()
	b := astfixture.NewBuilder(reg)
	decl := b.VarDecl("s", reg.String, b.Str("hi"))
	ret := b.Return(nil_())
	body := b.Block(decl, ret)
	b.Func("f", nil, reg.Void, body)
	tree := b.Build()

	mod := lowerOK(t, reg, tree)
	fn := mod.Funcs[0]

	var stores int
	for _, n := range fn.Nodes {
		if n.Op == ir.OpStore {
			stores++
		}
	}
	require.Equal(t, 2, stores)
}

// nil_ returns the zero NodeID, which astfixture's Return treats as "no
// value": b.Return(nil_()) builds a bare `return` for void-returning test
// functions.
func nil_() astiface.NodeID { return 0 }
