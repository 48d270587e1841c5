package passes

import (
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

// maxDecomposeIterations bounds the fixed-point loop (spec §4.3.2: "apply
// iteratively... capped at a small iteration bound"). A single round
// clears every pattern the rewrite set below knows about, so further
// rounds only fire if a prior round's rewrite introduced a new
// instance of another pattern; in practice this converges in 1-2 passes.
const maxDecomposeIterations = 8

// Decompose ensures no SSA value has a 16-byte aggregate type (currently
// just `string`) except through a `string_make`, by iteratively rewriting
// loads, stores, constants, and phis of that type (spec §4.3.2). It is
// idempotent: running it again over its own output is a no-op, since every
// rewrite rule's output is expressed purely in terms of patterns the same
// rule set no longer matches.
func Decompose(fn *ssa.Func, reg *types.Registry) {
	if fn.Extern {
		return
	}
	d := &decomposer{fn: fn, reg: reg}
	for i := 0; i < maxDecomposeIterations; i++ {
		if !d.runOnce() {
			return
		}
	}
}

type decomposer struct {
	fn  *ssa.Func
	reg *types.Registry
}

func (d *decomposer) runOnce() bool {
	changed := false
	for _, b := range d.fn.Blocks {
		ids := append([]int(nil), b.Values...)
		for _, id := range ids {
			v := d.fn.Values[id]
			if v.Op == ssa.OpStringMake {
				continue // already decomposed form
			}
			switch v.Op {
			case ssa.OpLoad:
				if v.Type == d.reg.String {
					d.rewriteStringLoad(b.ID, id)
					changed = true
				}
			case ssa.OpStore:
				if d.storesStringMake(v) {
					d.rewriteStringStore(b.ID, id)
					changed = true
				}
			case ssa.OpConstString:
				d.rewriteConstString(b.ID, id)
				changed = true
			case ssa.OpPhi:
				if v.Type == d.reg.String {
					d.rewriteStringPhi(b.ID, id)
					changed = true
				}
			case ssa.OpStringPtr:
				if a := d.fn.Values[v.Args()[0]]; a.Op == ssa.OpStringMake {
					d.collapseToArg(id, a.Args()[0])
					changed = true
				}
			case ssa.OpStringLen:
				if a := d.fn.Values[v.Args()[0]]; a.Op == ssa.OpStringMake {
					d.collapseToArg(id, a.Args()[1])
					changed = true
				}
			}
		}
	}
	return changed
}

func (d *decomposer) storesStringMake(v *ssa.Value) bool {
	if len(v.Args()) != 2 {
		return false
	}
	sv := d.fn.Values[v.Args()[1]]
	return sv.Op == ssa.OpStringMake
}

// rewriteStringLoad turns `load<string>(addr)` into
// `string_make(load<i64>(addr), load<i64>(off_ptr(addr,8)))`.
func (d *decomposer) rewriteStringLoad(block, id int) {
	v := d.fn.Values[id]
	addr := v.Args()[0]
	ptrAddrType := d.reg.MakePointer(d.reg.U8)

	ptrLoad := d.insertBefore(block, id, ssa.OpLoad, ptrAddrType)
	d.fn.AddArg(ptrLoad, addr)

	off := d.insertBefore(block, id, ssa.OpOffsetPtr, d.reg.MakePointer(d.reg.I64))
	d.fn.Values[off].Aux = 8
	d.fn.AddArg(off, addr)

	lenLoad := d.insertBefore(block, id, ssa.OpLoad, d.reg.I64)
	d.fn.AddArg(lenLoad, off)

	d.fn.Values[id].Op = ssa.OpStringMake
	d.fn.ResetArgs(id, []int{ptrLoad, lenLoad})
}

// rewriteStringStore turns `store(addr, string_make(p,l))` into two 8-byte
// stores at offsets 0 and 8.
func (d *decomposer) rewriteStringStore(block, id int) {
	v := d.fn.Values[id]
	addr := v.Args()[0]
	mk := d.fn.Values[v.Args()[1]]
	p, l := mk.Args()[0], mk.Args()[1]

	off := d.insertBefore(block, id, ssa.OpOffsetPtr, d.reg.MakePointer(d.reg.I64))
	d.fn.Values[off].Aux = 8
	d.fn.AddArg(off, addr)

	d.fn.Values[id].Op = ssa.OpStore
	d.fn.ResetArgs(id, []int{addr, p})

	lenStore := d.insertAfter(block, id, ssa.OpStore, d.reg.Void)
	d.fn.AddArg(lenStore, off)
	d.fn.AddArg(lenStore, l)
}

// rewriteConstString turns `const_string(i)` into
// `string_make(const_ptr(L.str.i), const_int(length))`.
func (d *decomposer) rewriteConstString(block, id int) {
	v := d.fn.Values[id]
	idx := v.Aux
	length := 0
	if int(idx) < len(d.fn.Strings) {
		length = len(d.fn.Strings[idx])
	}

	ptr := d.insertBefore(block, id, ssa.OpConstPtr, d.reg.MakePointer(d.reg.U8))
	d.fn.Values[ptr].Aux = idx

	ln := d.insertBefore(block, id, ssa.OpConstInt, d.reg.I64)
	d.fn.Values[ln].Aux = int64(length)

	d.fn.Values[id].Op = ssa.OpStringMake
	d.fn.ResetArgs(id, []int{ptr, ln})
}

// rewriteStringPhi turns `phi<string>(a,b,c)` into a pair of phis over the
// pointer and length components of each argument.
func (d *decomposer) rewriteStringPhi(block, id int) {
	v := d.fn.Values[id]
	args := v.Args()

	ptrPhi := d.insertBefore(block, id, ssa.OpPhi, d.reg.MakePointer(d.reg.U8))
	lenPhi := d.insertBefore(block, id, ssa.OpPhi, d.reg.I64)

	ptrArgs := make([]int, len(args))
	lenArgs := make([]int, len(args))
	for i, a := range args {
		ptrArgs[i] = d.componentOf(block, a, 0)
		lenArgs[i] = d.componentOf(block, a, 1)
	}
	d.fn.ResetArgs(ptrPhi, ptrArgs)
	d.fn.ResetArgs(lenPhi, lenArgs)

	d.fn.Values[id].Op = ssa.OpStringMake
	d.fn.ResetArgs(id, []int{ptrPhi, lenPhi})
}

// componentOf extracts the ptr (slot 0) or len (slot 1) component of a
// string-typed value a, introducing a string_ptr/string_len projection if
// a is not already in string_make form. The projection is spliced in
// immediately before a's owning block's terminator, so it both dominates
// the phi that will consume it and does not land after that block's
// terminator value.
func (d *decomposer) componentOf(block, a, slot int) int {
	av := d.fn.Values[a]
	if av.Op == ssa.OpStringMake {
		return av.Args()[slot]
	}
	op := ssa.OpStringPtr
	t := d.reg.MakePointer(d.reg.U8)
	if slot == 1 {
		op = ssa.OpStringLen
		t = d.reg.I64
	}
	srcBlock := av.Block
	term := d.fn.B(srcBlock).Values[len(d.fn.B(srcBlock).Values)-1]
	id := d.insertBefore(srcBlock, term, op, t)
	d.fn.AddArg(id, a)
	return id
}

func (d *decomposer) collapseToArg(id, replacement int) {
	v := d.fn.Values[id]
	v.Op = ssa.OpCopy
	d.fn.ResetArgs(id, []int{replacement})
}

func (d *decomposer) insertBefore(block, before int, op ssa.Op, t types.ID) int {
	id := d.fn.NewValue(block, op, t)
	b := d.fn.B(block)
	b.Values = b.Values[:len(b.Values)-1]
	for i, v := range b.Values {
		if v == before {
			tail := append([]int{id}, b.Values[i:]...)
			b.Values = append(b.Values[:i], tail...)
			return id
		}
	}
	b.Values = append(b.Values, id)
	return id
}

func (d *decomposer) insertAfter(block, after int, op ssa.Op, t types.ID) int {
	id := d.fn.NewValue(block, op, t)
	b := d.fn.B(block)
	b.Values = b.Values[:len(b.Values)-1]
	for i, v := range b.Values {
		if v == after {
			tail := append([]int{id}, b.Values[i+1:]...)
			b.Values = append(b.Values[:i+1], tail...)
			return id
		}
	}
	b.Values = append(b.Values, id)
	return id
}
