package vm

import (
	"testing"

	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
	"github.com/stretchr/testify/require"
)

// These tests build ssa.Func values directly rather than going through
// the Lowerer/Builder, the way the scenario table in spec §8 checks each
// function's semantic result without requiring a full source-to-object
// round trip.

func runMain(t *testing.T, reg *types.Registry, funcs map[string]*ssa.Func, args ...Word) int64 {
	t.Helper()
	in := New(&Program{Funcs: funcs, Reg: reg})
	w, err := in.Run(funcs["main"], args...)
	require.NoError(t, err)
	return in.AsInt(w)
}

// scenario 1: return 42
func TestScenarioReturnConstant(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("main")
	b := fn.NewBlock(ssa.BlockRet)
	fn.Entry = b
	c := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c].Aux = 42
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, c)

	got := runMain(t, reg, map[string]*ssa.Func{"main": fn})
	require.Equal(t, int64(42), got)
}

// scenario 2: return 20 + 22
func TestScenarioBinaryAdd(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("main")
	b := fn.NewBlock(ssa.BlockRet)
	fn.Entry = b
	c1 := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c1].Aux = 20
	c2 := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c2].Aux = 22
	add := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[add].Aux = int64(ssa.BinAdd)
	fn.AddArg(add, c1)
	fn.AddArg(add, c2)
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, add)

	got := runMain(t, reg, map[string]*ssa.Func{"main": fn})
	require.Equal(t, int64(42), got)
}

// scenario 3: add(a,b){return a+b}; main(){return add(40,2)}
func TestScenarioCall(t *testing.T) {
	reg := types.New()

	add := ssa.NewFunc("add")
	add.Params = []ssa.ParamInfo{{Name: "a", Type: reg.I64, Size: 8}, {Name: "b", Type: reg.I64, Size: 8}}
	ab := add.NewBlock(ssa.BlockRet)
	add.Entry = ab
	a0 := add.NewValue(ab, ssa.OpArg, reg.I64)
	add.Values[a0].Aux = 0
	a1 := add.NewValue(ab, ssa.OpArg, reg.I64)
	add.Values[a1].Aux = 1
	sum := add.NewValue(ab, ssa.OpBinary, reg.I64)
	add.Values[sum].Aux = int64(ssa.BinAdd)
	add.AddArg(sum, a0)
	add.AddArg(sum, a1)
	aret := add.NewValue(ab, ssa.OpReturn, reg.Void)
	add.AddArg(aret, sum)

	main := ssa.NewFunc("main")
	mb := main.NewBlock(ssa.BlockRet)
	main.Entry = mb
	c40 := main.NewValue(mb, ssa.OpConstInt, reg.I64)
	main.Values[c40].Aux = 40
	c2 := main.NewValue(mb, ssa.OpConstInt, reg.I64)
	main.Values[c2].Aux = 2
	call := main.NewValue(mb, ssa.OpCall, reg.I64)
	main.Values[call].AuxStr = "add"
	main.AddArg(call, c40)
	main.AddArg(call, c2)
	mret := main.NewValue(mb, ssa.OpReturn, reg.Void)
	main.AddArg(mret, call)

	got := runMain(t, reg, map[string]*ssa.Func{"add": add, "main": main})
	require.Equal(t, int64(42), got)
}

// scenario 4: var i=0; while i<10 { i=i+1 } return i+32
func TestScenarioWhileLoop(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("main")
	fn.Locals = []ssa.LocalInfo{{Name: "i", Type: reg.I64, Size: 8}}

	entry := fn.NewBlock(ssa.BlockPlain)
	test := fn.NewBlock(ssa.BlockIf)
	body := fn.NewBlock(ssa.BlockPlain)
	exit := fn.NewBlock(ssa.BlockRet)
	fn.Entry = entry

	zero := fn.NewValue(entry, ssa.OpConstInt, reg.I64)
	fn.Values[zero].Aux = 0
	fn.AddEdge(entry, test)
	jmp0 := fn.NewValue(entry, ssa.OpJump, reg.Void)
	fn.Values[jmp0].Targets[0] = test

	phi := fn.NewValue(test, ssa.OpPhi, reg.I64)
	fn.AddArg(phi, zero) // from entry
	ten := fn.NewValue(test, ssa.OpConstInt, reg.I64)
	fn.Values[ten].Aux = 10
	cmp := fn.NewValue(test, ssa.OpCompare, reg.Bool)
	fn.Values[cmp].Aux = int64(ssa.CmpLt)
	fn.AddArg(cmp, phi)
	fn.AddArg(cmp, ten)
	fn.AddEdge(test, body)
	fn.AddEdge(test, exit)
	br := fn.NewValue(test, ssa.OpBranch, reg.Void)
	fn.AddArg(br, cmp)
	fn.Values[br].Targets[0] = body
	fn.Values[br].Targets[1] = exit

	one := fn.NewValue(body, ssa.OpConstInt, reg.I64)
	fn.Values[one].Aux = 1
	incr := fn.NewValue(body, ssa.OpBinary, reg.I64)
	fn.Values[incr].Aux = int64(ssa.BinAdd)
	fn.AddArg(incr, phi)
	fn.AddArg(incr, one)
	fn.AddEdge(body, test)
	fn.AddArg(phi, incr) // from body, second phi arg
	jmp1 := fn.NewValue(body, ssa.OpJump, reg.Void)
	fn.Values[jmp1].Targets[0] = test

	c32 := fn.NewValue(exit, ssa.OpConstInt, reg.I64)
	fn.Values[c32].Aux = 32
	final := fn.NewValue(exit, ssa.OpBinary, reg.I64)
	fn.Values[final].Aux = int64(ssa.BinAdd)
	fn.AddArg(final, phi)
	fn.AddArg(final, c32)
	ret := fn.NewValue(exit, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, final)

	got := runMain(t, reg, map[string]*ssa.Func{"main": fn})
	require.Equal(t, int64(42), got)
}

// scenario 5: fib(n){ if n<2 {return n} return fib(n-1)+fib(n-2) }; main(){return fib(10)}
func TestScenarioRecursiveFib(t *testing.T) {
	reg := types.New()

	fib := ssa.NewFunc("fib")
	fib.Params = []ssa.ParamInfo{{Name: "n", Type: reg.I64, Size: 8}}
	entry := fib.NewBlock(ssa.BlockIf)
	base := fib.NewBlock(ssa.BlockRet)
	rec := fib.NewBlock(ssa.BlockRet)
	fib.Entry = entry

	n := fib.NewValue(entry, ssa.OpArg, reg.I64)
	fib.Values[n].Aux = 0
	two := fib.NewValue(entry, ssa.OpConstInt, reg.I64)
	fib.Values[two].Aux = 2
	lt := fib.NewValue(entry, ssa.OpCompare, reg.Bool)
	fib.Values[lt].Aux = int64(ssa.CmpLt)
	fib.AddArg(lt, n)
	fib.AddArg(lt, two)
	fib.AddEdge(entry, base)
	fib.AddEdge(entry, rec)
	br := fib.NewValue(entry, ssa.OpBranch, reg.Void)
	fib.AddArg(br, lt)
	fib.Values[br].Targets[0] = base
	fib.Values[br].Targets[1] = rec

	bret := fib.NewValue(base, ssa.OpReturn, reg.Void)
	fib.AddArg(bret, n)

	one := fib.NewValue(rec, ssa.OpConstInt, reg.I64)
	fib.Values[one].Aux = 1
	nm1 := fib.NewValue(rec, ssa.OpBinary, reg.I64)
	fib.Values[nm1].Aux = int64(ssa.BinSub)
	fib.AddArg(nm1, n)
	fib.AddArg(nm1, one)
	call1 := fib.NewValue(rec, ssa.OpCall, reg.I64)
	fib.Values[call1].AuxStr = "fib"
	fib.AddArg(call1, nm1)

	nm2 := fib.NewValue(rec, ssa.OpBinary, reg.I64)
	fib.Values[nm2].Aux = int64(ssa.BinSub)
	fib.AddArg(nm2, n)
	fib.AddArg(nm2, two)
	call2 := fib.NewValue(rec, ssa.OpCall, reg.I64)
	fib.Values[call2].AuxStr = "fib"
	fib.AddArg(call2, nm2)

	sum := fib.NewValue(rec, ssa.OpBinary, reg.I64)
	fib.Values[sum].Aux = int64(ssa.BinAdd)
	fib.AddArg(sum, call1)
	fib.AddArg(sum, call2)
	rret := fib.NewValue(rec, ssa.OpReturn, reg.Void)
	fib.AddArg(rret, sum)

	main := ssa.NewFunc("main")
	mb := main.NewBlock(ssa.BlockRet)
	main.Entry = mb
	c10 := main.NewValue(mb, ssa.OpConstInt, reg.I64)
	main.Values[c10].Aux = 10
	call := main.NewValue(mb, ssa.OpCall, reg.I64)
	main.Values[call].AuxStr = "fib"
	main.AddArg(call, c10)
	mret := main.NewValue(mb, ssa.OpReturn, reg.Void)
	main.AddArg(mret, call)

	got := runMain(t, reg, map[string]*ssa.Func{"fib": fib, "main": main})
	require.Equal(t, int64(55), got)
}

// scenario 6: struct P{x,y i64}; p.x=20; p.y=22; return p.x+p.y
func TestScenarioStructFields(t *testing.T) {
	reg := types.New()
	pt := reg.MakeStruct("P", []types.Field{
		{Name: "x", Type: reg.I64, Offset: 0},
		{Name: "y", Type: reg.I64, Offset: 8},
	})

	fn := ssa.NewFunc("main")
	fn.Locals = []ssa.LocalInfo{{Name: "p", Type: pt, Size: reg.SizeOf(pt)}}
	b := fn.NewBlock(ssa.BlockRet)
	fn.Entry = b

	addr := fn.NewValue(b, ssa.OpLocalAddr, reg.MakePointer(pt))
	fn.Values[addr].Aux = 0

	c20 := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c20].Aux = 20
	setx := fn.NewValue(b, ssa.OpFieldStore, reg.I64)
	fn.Values[setx].Aux = 0
	fn.AddArg(setx, addr)
	fn.AddArg(setx, c20)

	c22 := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c22].Aux = 22
	sety := fn.NewValue(b, ssa.OpFieldStore, reg.I64)
	fn.Values[sety].Aux = 8
	fn.AddArg(sety, addr)
	fn.AddArg(sety, c22)

	gx := fn.NewValue(b, ssa.OpFieldAccess, reg.I64)
	fn.Values[gx].Aux = 0
	fn.AddArg(gx, addr)
	gy := fn.NewValue(b, ssa.OpFieldAccess, reg.I64)
	fn.Values[gy].Aux = 8
	fn.AddArg(gy, addr)

	sum := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[sum].Aux = int64(ssa.BinAdd)
	fn.AddArg(sum, gx)
	fn.AddArg(sum, gy)
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, sum)

	got := runMain(t, reg, map[string]*ssa.Func{"main": fn})
	require.Equal(t, int64(42), got)
}

// scenario 7: let s="hello"; return len(s)+37
func TestScenarioStringLen(t *testing.T) {
	reg := types.New()
	fn := ssa.NewFunc("main")
	fn.Strings = []string{"hello"}
	b := fn.NewBlock(ssa.BlockRet)
	fn.Entry = b

	s := fn.NewValue(b, ssa.OpConstString, reg.String)
	fn.Values[s].Aux = 0
	ln := fn.NewValue(b, ssa.OpStringLen, reg.I64)
	fn.AddArg(ln, s)
	c37 := fn.NewValue(b, ssa.OpConstInt, reg.I64)
	fn.Values[c37].Aux = 37
	sum := fn.NewValue(b, ssa.OpBinary, reg.I64)
	fn.Values[sum].Aux = int64(ssa.BinAdd)
	fn.AddArg(sum, ln)
	fn.AddArg(sum, c37)
	ret := fn.NewValue(b, ssa.OpReturn, reg.Void)
	fn.AddArg(ret, sum)

	got := runMain(t, reg, map[string]*ssa.Func{"main": fn})
	require.Equal(t, int64(42), got)
}
