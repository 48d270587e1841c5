package ssa

import (
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/ir"
	"github.com/cotlang/cotc/internal/types"
)

// Builder translates one pre-SSA ir.Func into an ssa.Func, placing phi
// functions on demand per spec §4.2: reads of a not-yet-locally-defined
// local either chase a single predecessor (sealed lookup, the whole CFG
// is known upfront so every block is effectively sealed the moment it is
// visited) or become a forward reference resolved to a phi once every
// block has been translated.
type Builder struct {
	reg *types.Registry
	rep *diag.Reporter

	irFn *ir.Func
	fn   *Func

	// defs[blockID][local] = the ssa value currently standing for local at
	// the end of blockID's processed prefix.
	defs map[int]map[int]int

	fwdRefs []int

	valueMap []int // ir node global index -> ssa value id, or -1
}

// NewBuilder constructs a Builder for one IR function.
func NewBuilder(reg *types.Registry, rep *diag.Reporter, irFn *ir.Func) *Builder {
	return &Builder{reg: reg, rep: rep, irFn: irFn, defs: make(map[int]map[int]int)}
}

// Build runs the full IR → SSA translation, including phi resolution,
// phi-first reordering, and verification.
func (bd *Builder) Build() *Func {
	bd.fn = NewFunc(bd.irFn.Name)
	bd.fn.Extern = bd.irFn.Extern
	bd.fn.Globals = append([]string(nil), bd.irFn.Globals...)
	bd.fn.Strings = append([]string(nil), bd.irFn.Strings...)
	for _, p := range bd.irFn.Params {
		bd.fn.Params = append(bd.fn.Params, ParamInfo{Name: p.Name, Type: p.Type, Size: p.Size})
	}
	for _, l := range bd.irFn.Locals {
		bd.fn.Locals = append(bd.fn.Locals, LocalInfo{Name: l.Name, Type: l.Type, Size: l.Size, IsParam: l.IsParam})
	}

	if bd.irFn.Extern {
		return bd.fn
	}

	for range bd.irFn.Blocks {
		bd.fn.NewBlock(BlockPlain)
	}
	bd.fn.Entry = 0

	bd.valueMap = make([]int, len(bd.irFn.Nodes))
	for i := range bd.valueMap {
		bd.valueMap[i] = -1
	}

	bd.lowerParams()

	for _, irb := range bd.irFn.Blocks {
		bd.translateBlock(irb)
	}

	bd.resolveForwardRefs()
	bd.reorderPhisFirst()

	v := NewVerifier(bd.fn)
	if err := v.Verify(); err != nil {
		bd.rep.Fatalf(diag.KindInternalInvariant, "ssa-build", bd.fn.Name, "%s", err.Error())
	}

	return bd.fn
}

// lowerParams performs the three-phase ABI-aware parameter lowering
// (spec §4.2): capture phase, reassembly phase, spill phase, run strictly
// in that order across ALL parameters so no phase interleaves with
// another and clobbers a still-unread argument register.
func (bd *Builder) lowerParams() {
	entry := 0
	bd.setDef(entry, -1, -1) // ensure defs map entry exists

	type captured struct {
		regs      []int // ssa value ids of OpArg captures, in register order
		byPointer bool
		packed    bool // regCount==2 non-string/slice struct
	}
	caps := make([]captured, len(bd.fn.Params))

	slot := 0
	for i, p := range bd.fn.Params {
		t := p.Type
		k := bd.reg.Kind(t)
		byPointer := bd.reg.IsAggregate(t) && k != types.KindString && k != types.KindSlice && bd.reg.SizeOf(t) > 16
		count := 1
		if !byPointer {
			count = bd.reg.RegisterCountForABI(t)
		}
		regs := make([]int, count)
		for j := 0; j < count; j++ {
			argTy := t
			if byPointer {
				argTy = bd.reg.MakePointer(t)
			} else if k == types.KindString || k == types.KindSlice {
				if j == 0 {
					argTy = bd.reg.MakePointer(bd.reg.U8)
				} else {
					argTy = bd.reg.I64
				}
			}
			id := bd.fn.NewValue(entry, OpArg, argTy)
			bd.fn.Values[id].Aux = int64(slot)
			regs[j] = id
			slot++
		}
		caps[i] = captured{regs: regs, byPointer: byPointer, packed: !byPointer && count == 2 && k != types.KindString && k != types.KindSlice}
	}

	// Phase 2: reassemble string/slice parameters.
	reassembled := make([]int, len(bd.fn.Params))
	for i, p := range bd.fn.Params {
		k := bd.reg.Kind(p.Type)
		c := caps[i]
		if c.byPointer || c.packed {
			continue
		}
		switch k {
		case types.KindString:
			id := bd.fn.NewValue(entry, OpStringMake, bd.reg.String)
			bd.fn.AddArg(id, c.regs[0])
			bd.fn.AddArg(id, c.regs[1])
			reassembled[i] = id
		case types.KindSlice:
			id := bd.fn.NewValue(entry, OpSliceMake, p.Type)
			bd.fn.AddArg(id, c.regs[0])
			bd.fn.AddArg(id, c.regs[1])
			reassembled[i] = id
		default:
			reassembled[i] = c.regs[0]
		}
	}

	// Phase 3: spill into the local slot (or, for by-pointer aggregates, a
	// move of the caller's bytes into our own frame).
	for i, p := range bd.fn.Params {
		c := caps[i]
		localIdx := i // params occupy Locals[0:len(Params)] by construction (Lowerer)

		if c.byPointer {
			addr := bd.fn.NewValue(entry, OpLocalAddr, bd.reg.MakePointer(p.Type))
			bd.fn.Values[addr].Aux = int64(localIdx)
			mv := bd.fn.NewValue(entry, OpMove, bd.reg.Void)
			bd.fn.AddArg(mv, addr)
			bd.fn.AddArg(mv, c.regs[0])
			bd.fn.Values[mv].Aux = int64(bd.reg.SizeOf(p.Type))
			continue
		}

		if c.packed {
			addr := bd.fn.NewValue(entry, OpLocalAddr, bd.reg.MakePointer(p.Type))
			bd.fn.Values[addr].Aux = int64(localIdx)
			for j, r := range c.regs {
				off := bd.fn.NewValue(entry, OpOffsetPtr, bd.reg.MakePointer(bd.reg.I64))
				bd.fn.Values[off].Aux = int64(j * 8)
				bd.fn.AddArg(off, addr)
				st := bd.fn.NewValue(entry, OpStore, bd.reg.Void)
				bd.fn.AddArg(st, off)
				bd.fn.AddArg(st, r)
			}
			continue
		}

		val := reassembled[i]
		addr := bd.fn.NewValue(entry, OpLocalAddr, bd.reg.MakePointer(p.Type))
		bd.fn.Values[addr].Aux = int64(localIdx)
		st := bd.fn.NewValue(entry, OpStore, bd.reg.Void)
		bd.fn.AddArg(st, addr)
		bd.fn.AddArg(st, val)

		bd.setDef(entry, localIdx, val)
	}
}

func (bd *Builder) setDef(block, local, val int) {
	m, ok := bd.defs[block]
	if !ok {
		m = make(map[int]int)
		bd.defs[block] = m
	}
	if local >= 0 {
		m[local] = val
	}
}

func (bd *Builder) readLocal(block, local int) int {
	if m, ok := bd.defs[block]; ok {
		if v, ok := m[local]; ok {
			return v
		}
	}
	preds := bd.fn.Blocks[block].Preds
	if len(preds) == 1 {
		v := bd.readLocal(preds[0], local)
		bd.setDef(block, local, v)
		return v
	}
	if len(preds) == 0 {
		// Unreachable or truly undefined read. Entry-block parameter reads
		// are always pre-seeded by lowerParams, so this path is either dead
		// code (a block nothing jumps to) or a lowerer/checker bug; treat it
		// as dead code and materialize a harmless zero value rather than
		// aborting compilation over unreachable IR.
		t := bd.fn.Locals[local].Type
		id := bd.fn.NewValue(block, zeroOpFor(bd.reg, t), t)
		bd.setDef(block, local, id)
		return id
	}
	id := bd.fn.NewValue(block, OpFwdRef, bd.fn.Locals[local].Type)
	bd.fn.Values[id].FwdLocal = local
	bd.setDef(block, local, id)
	bd.fwdRefs = append(bd.fwdRefs, id)
	return id
}

func zeroOpFor(reg *types.Registry, t types.ID) Op {
	switch reg.Kind(t) {
	case types.KindBool:
		return OpConstBool
	case types.KindF32, types.KindF64:
		return OpConstFloat
	case types.KindPointer:
		return OpConstNil
	default:
		return OpConstInt
	}
}

func (bd *Builder) translateBlock(irb ir.Block) {
	block := irb.ID
	for gi := irb.Start; gi < irb.End; gi++ {
		n := bd.irFn.Nodes[gi]
		bd.translateNode(block, gi, n)
	}
}

func (bd *Builder) arg(irb *ir.Func, gi int, slot int) int {
	node := irb.Nodes[gi]
	return bd.valueMap[node.Args[slot]]
}

func (bd *Builder) translateNode(block, gi int, n ir.Node) {
	irf := bd.irFn
	switch n.Op {
	case ir.OpConstInt:
		id := bd.fn.NewValue(block, OpConstInt, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.valueMap[gi] = id
	case ir.OpConstBool:
		id := bd.fn.NewValue(block, OpConstBool, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.valueMap[gi] = id
	case ir.OpConstNil:
		bd.valueMap[gi] = bd.fn.NewValue(block, OpConstNil, n.Type)
	case ir.OpConstString:
		id := bd.fn.NewValue(block, OpConstString, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.valueMap[gi] = id
	case ir.OpConstFloat:
		id := bd.fn.NewValue(block, OpConstFloat, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.valueMap[gi] = id

	case ir.OpLoadLocal:
		bd.valueMap[gi] = bd.readLocal(block, int(n.Aux))
	case ir.OpStoreLocal:
		bd.setDef(block, int(n.Aux), bd.arg(irf, gi, 0))

	case ir.OpLocalAddr:
		id := bd.fn.NewValue(block, OpLocalAddr, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.valueMap[gi] = id
	case ir.OpGlobalAddr:
		id := bd.fn.NewValue(block, OpGlobalAddr, n.Type)
		bd.fn.Values[id].AuxStr = n.AuxStr
		bd.valueMap[gi] = id

	case ir.OpOffsetPtr:
		id := bd.fn.NewValue(block, OpOffsetPtr, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpIndexPtr:
		id := bd.fn.NewValue(block, OpIndexPtr, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id
	case ir.OpFieldAccess:
		id := bd.fn.NewValue(block, OpFieldAccess, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpFieldStore:
		id := bd.fn.NewValue(block, OpFieldStore, bd.reg.Void)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))

	case ir.OpLoad:
		id := bd.fn.NewValue(block, OpLoad, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpStore:
		id := bd.fn.NewValue(block, OpStore, bd.reg.Void)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))

	case ir.OpBinary:
		id := bd.fn.NewValue(block, OpBinary, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id
	case ir.OpUnary:
		id := bd.fn.NewValue(block, OpUnary, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpCompare:
		id := bd.fn.NewValue(block, OpCompare, n.Type)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id

	case ir.OpCall:
		id := bd.fn.NewValue(block, OpCall, n.Type)
		bd.fn.Values[id].AuxStr = n.AuxStr
		for _, a := range n.Args {
			bd.fn.AddArg(id, bd.valueMap[a])
		}
		bd.valueMap[gi] = id
	case ir.OpCallIndirect:
		id := bd.fn.NewValue(block, OpCallIndirect, n.Type)
		for _, a := range n.Args {
			bd.fn.AddArg(id, bd.valueMap[a])
		}
		bd.valueMap[gi] = id

	case ir.OpSliceMake:
		id := bd.fn.NewValue(block, OpSliceMake, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id
	case ir.OpSlicePtr:
		id := bd.fn.NewValue(block, OpSlicePtr, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpSliceLen:
		id := bd.fn.NewValue(block, OpSliceLen, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id

	case ir.OpStringMake:
		id := bd.fn.NewValue(block, OpStringMake, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id
	case ir.OpStringPtr:
		id := bd.fn.NewValue(block, OpStringPtr, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpStringLen:
		id := bd.fn.NewValue(block, OpStringLen, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpStringConcat:
		id := bd.fn.NewValue(block, OpStringConcat, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.valueMap[gi] = id

	case ir.OpMove:
		id := bd.fn.NewValue(block, OpMove, bd.reg.Void)
		bd.fn.Values[id].Aux = n.Aux
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
	case ir.OpConvert:
		id := bd.fn.NewValue(block, OpConvert, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.valueMap[gi] = id
	case ir.OpFuncAddr:
		id := bd.fn.NewValue(block, OpFuncAddr, n.Type)
		bd.fn.Values[id].AuxStr = n.AuxStr
		bd.valueMap[gi] = id
	case ir.OpSelect:
		id := bd.fn.NewValue(block, OpSelect, n.Type)
		bd.fn.AddArg(id, bd.arg(irf, gi, 0))
		bd.fn.AddArg(id, bd.arg(irf, gi, 1))
		bd.fn.AddArg(id, bd.arg(irf, gi, 2))
		bd.valueMap[gi] = id

	case ir.OpJump:
		target := n.Targets[0]
		bd.fn.AddEdge(block, target)
		id := bd.fn.NewValue(block, OpJump, bd.reg.Void)
		bd.fn.Values[id].Targets = [2]int{target, -1}
		bd.fn.Blocks[block].Kind = BlockPlain
	case ir.OpBranch:
		then, els := n.Targets[0], n.Targets[1]
		bd.fn.AddEdge(block, then)
		bd.fn.AddEdge(block, els)
		cond := bd.arg(irf, gi, 0)
		id := bd.fn.NewValue(block, OpBranch, bd.reg.Void)
		bd.fn.AddArg(id, cond)
		bd.fn.Values[id].Targets = [2]int{then, els}
		bd.fn.Blocks[block].Kind = BlockIf
		bd.fn.Blocks[block].Control[0] = cond
	case ir.OpReturn:
		id := bd.fn.NewValue(block, OpReturn, bd.reg.Void)
		bd.fn.Blocks[block].Kind = BlockRet
		if len(n.Args) > 0 {
			rv := bd.arg(irf, gi, 0)
			bd.fn.AddArg(id, rv)
			bd.fn.Blocks[block].Control[1] = rv
		}

	default:
		bd.rep.Fatalf(diag.KindInternalInvariant, "ssa-build", bd.fn.Name, "unhandled ir op %d", n.Op)
	}
}

// resolveForwardRefs iteratively turns every OpFwdRef into a phi (or a
// copy, if every predecessor supplies the same value), per spec §4.2 step
// 3. New FwdRefs can be discovered while resolving existing ones (a
// predecessor's own on-demand lookup may itself allocate one), so this
// runs to a fixed point.
func (bd *Builder) resolveForwardRefs() {
	for {
		pending := bd.fwdRefs
		bd.fwdRefs = nil
		if len(pending) == 0 {
			return
		}
		for _, id := range pending {
			bd.resolveOne(id)
		}
	}
}

func (bd *Builder) resolveOne(id int) {
	v := bd.fn.Values[id]
	if v.Op != OpFwdRef {
		return // already resolved as part of another local's chain
	}
	local := v.FwdLocal
	block := v.Block
	preds := bd.fn.Blocks[block].Preds

	args := make([]int, len(preds))
	for i, p := range preds {
		args[i] = bd.readLocal(p, local)
	}

	allSame := true
	for _, a := range args {
		if a != args[0] {
			allSame = false
			break
		}
	}

	v.Op = OpPhi
	if allSame && len(args) > 0 {
		v.Op = OpCopy
		args = args[:1]
	}
	for _, a := range args {
		bd.fn.AddArg(id, a)
	}
}

// reorderPhisFirst stable-sorts each block's value list so every phi
// precedes every non-phi value, per spec §4.2 step 4 / §3.3 invariant 2.
func (bd *Builder) reorderPhisFirst() {
	for _, b := range bd.fn.Blocks {
		phis := make([]int, 0, len(b.Values))
		rest := make([]int, 0, len(b.Values))
		for _, id := range b.Values {
			if bd.fn.Values[id].Op == OpPhi {
				phis = append(phis, id)
			} else {
				rest = append(rest, id)
			}
		}
		b.Values = append(phis, rest...)
	}
}
