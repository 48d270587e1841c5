package codegen

import (
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/regalloc"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

// ARM64 register numbers. X10, X13 and X14 are deliberately left outside
// the generic register pool (see armPhys) as codegen-private staging
// registers; X16 doubles as both the regalloc scratch register and a
// second staging register, since instruction emission for one value never
// interleaves with a pending parallel copy.
const (
	aX0  = 0
	aFP  = 29
	aLR  = 30
	aSP  = 31
	aXZR = 31

	aTmpA = 13 // X13: first operand-staging register
	aTmpB = 16 // X16: second operand-staging register (== ScratchReg's physical home)
)

const (
	aCondEQ = 0x0
	aCondNE = 0x1
	aCondLT = 0xB
	aCondLE = 0xD
	aCondGT = 0xC
	aCondGE = 0xA
)

// armGPR maps a regalloc-assigned generic register (0..NumGPR-1) to its
// physical X register.
var armGPR = [regalloc.NumGPR]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 11, 12}

func armPhys(r int) int {
	if r == regalloc.ScratchReg {
		return aTmpB
	}
	return armGPR[r]
}

// armArgReg returns the physical register the ARM64 ABI places argument
// slot s in. Only register-passed arguments (the first 8) are modeled;
// a real stack-passed-argument path is out of scope here, matching the
// teacher's own simplified operand-stack parameter passing.
func armArgReg(s int) int { return s }

func armRetReg(slot int) int { return slot }

// CompileARM64 emits AArch64 machine code for fn (spec §4.5).
func CompileARM64(fn *ssa.Func, reg *types.Registry, frame regalloc.Frame, rep *diag.Reporter) FuncCode {
	e := &arm64Emitter{fn: fn, reg: reg, rep: rep, blockOff: make(map[int]int)}
	e.run(frame)
	return FuncCode{Name: fn.Name, Code: e.code, Calls: e.calls, Addrs: e.addrs, Strings: fn.Strings}
}

type arm64Emitter struct {
	fn  *ssa.Func
	reg *types.Registry
	rep *diag.Reporter

	code  []byte
	calls []CallRef
	addrs []AddrRef

	blockOff   map[int]int
	fixups     []blockFixup
	frameTotal int
}

func (e *arm64Emitter) run(frame regalloc.Frame) {
	if e.fn.Extern {
		return
	}
	e.prologue(frame.Size)
	for _, b := range e.fn.Blocks {
		e.blockOff[b.ID] = len(e.code)
		for _, id := range b.Values {
			e.emitValue(id)
		}
	}
	for _, fx := range e.fixups {
		target := e.blockOff[fx.target]
		if fx.cond {
			e.patchBCond(fx.codeOffset, target)
		} else {
			e.patchB(fx.codeOffset, target)
		}
	}
}

func (e *arm64Emitter) prologue(frameSize int) {
	e.frameTotal = alignUp(frameSize+16, 16)
	e.stp(aFP, aLR, aSP, -e.frameTotal)
	e.movReg(aFP, aSP)
}

func (e *arm64Emitter) epilogue() {
	e.ldp(aFP, aLR, aSP, e.frameTotal)
	e.ret()
}

func (e *arm64Emitter) localFPOff(offset int) int { return -(offset + 16) }

// ensureReg materializes v's value into a register, returning which one.
// Non-rematerializable values already carry a Home from regalloc; constants,
// addresses, and arguments are recomputed here on demand (spec §4.4
// "Rematerialization" / §4.5 "ensure_in_reg").
func (e *arm64Emitter) ensureReg(id, prefer int) int {
	v := e.fn.Values[id]
	switch v.Op {
	case ssa.OpConstInt, ssa.OpConstBool:
		e.loadImm(prefer, v.Aux)
		return prefer
	case ssa.OpConstPtr:
		// Produced only by decompose's string-literal rewrite: Aux indexes
		// fn.Strings, not a raw immediate (spec §4.3.2/§4.6 "L.str.<n>").
		e.addrOf(prefer, stringSymbol(v.Aux), true)
		return prefer
	case ssa.OpConstNil:
		e.loadImm(prefer, 0)
		return prefer
	case ssa.OpLocalAddr:
		e.leaLocal(prefer, int(v.Aux))
		return prefer
	case ssa.OpGlobalAddr:
		e.addrOf(prefer, v.AuxStr, false)
		return prefer
	case ssa.OpFuncAddr:
		e.addrOf(prefer, v.AuxStr, false)
		return prefer
	case ssa.OpArg:
		return armArgReg(int(v.Aux))
	}
	switch v.Home.Kind {
	case ssa.HomeReg:
		return armPhys(v.Home.Reg)
	case ssa.HomeStack:
		e.ldr(prefer, aFP, e.localFPOff(v.Home.Offset))
		return prefer
	default:
		e.rep.Fatalf(diag.KindInternalInvariant, "codegen-arm64", e.fn.Name, "value %d has no home and is not rematerializable", id)
		return prefer
	}
}

// destReg returns the register id's producing instruction should write
// into: its own assigned register, or a staging register if it's homed on
// the stack or not read by anything.
func (e *arm64Emitter) destReg(id int) int {
	v := e.fn.Values[id]
	if v.Home.Kind == ssa.HomeReg {
		return armPhys(v.Home.Reg)
	}
	return aTmpA
}

func (e *arm64Emitter) maybeSpill(id, d int) {
	v := e.fn.Values[id]
	if v.Home.Kind == ssa.HomeStack {
		e.str(d, aFP, e.localFPOff(v.Home.Offset))
	}
}

func (e *arm64Emitter) emitValue(id int) {
	v := e.fn.Values[id]
	switch v.Op {
	case ssa.OpConstInt, ssa.OpConstBool, ssa.OpConstNil, ssa.OpConstPtr,
		ssa.OpLocalAddr, ssa.OpGlobalAddr, ssa.OpFuncAddr, ssa.OpArg, ssa.OpPhi:
		// Rematerialized at each use site, or (phi) resolved by the
		// predecessor-edge parallel copy; no def-site instruction here.
		return
	case ssa.OpCopy:
		args := v.Args()
		d := e.destReg(id)
		src := e.ensureReg(args[0], d)
		if src != d {
			e.movReg(d, src)
		}
		e.maybeSpill(id, d)
	case ssa.OpBinary:
		e.emitBinary(id)
	case ssa.OpUnary:
		e.emitUnary(id)
	case ssa.OpCompare:
		e.emitCompare(id)
	case ssa.OpLoad:
		args := v.Args()
		d := e.destReg(id)
		addr := e.ensureReg(args[0], aTmpA)
		e.ldr(d, addr, 0)
		e.maybeSpill(id, d)
	case ssa.OpStore:
		args := v.Args()
		addr := e.ensureReg(args[0], aTmpA)
		val := e.ensureReg(args[1], aTmpB)
		e.str(val, addr, 0)
	case ssa.OpFieldAccess:
		args := v.Args()
		d := e.destReg(id)
		addr := e.ensureReg(args[0], aTmpA)
		e.ldr(d, addr, int(v.Aux))
		e.maybeSpill(id, d)
	case ssa.OpFieldStore:
		args := v.Args()
		addr := e.ensureReg(args[0], aTmpA)
		val := e.ensureReg(args[1], aTmpB)
		e.str(val, addr, int(v.Aux))
	case ssa.OpOffsetPtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.ensureReg(args[0], d)
		if base != d {
			e.movReg(d, base)
		}
		e.addImm(d, d, uint32(v.Aux))
		e.maybeSpill(id, d)
	case ssa.OpIndexPtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.ensureReg(args[0], d)
		idx := e.ensureReg(args[1], aTmpA)
		scaled := idx
		if v.Aux > 1 {
			e.loadImm(aTmpB, v.Aux)
			e.mul(aTmpA, idx, aTmpB)
			scaled = aTmpA
		}
		if base != d {
			e.movReg(d, base)
		}
		e.addRR(d, d, scaled)
		e.maybeSpill(id, d)
	case ssa.OpMove:
		args := v.Args()
		dst := e.ensureReg(args[0], aTmpA)
		src := e.ensureReg(args[1], aTmpB)
		size := e.reg.SizeOf(e.fn.Values[args[1]].Type)
		for off := 0; off+8 <= size; off += 8 {
			e.ldr(aTmpB, src, off)
			e.str(aTmpB, dst, off)
		}
	case ssa.OpConvert:
		args := v.Args()
		d := e.destReg(id)
		src := e.ensureReg(args[0], d)
		if src != d {
			e.movReg(d, src)
		}
		e.maybeSpill(id, d)
	case ssa.OpStringMake, ssa.OpSliceMake:
		args := v.Args()
		ptr := e.ensureReg(args[0], aTmpA)
		ln := e.ensureReg(args[1], aTmpB)
		off := e.localFPOff(v.Home.Offset)
		e.str(ptr, aFP, off)
		e.str(ln, aFP, off+8)
	case ssa.OpStringPtr, ssa.OpSlicePtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.fn.Values[args[0]]
		e.ldr(d, aFP, e.localFPOff(base.Home.Offset))
		e.maybeSpill(id, d)
	case ssa.OpStringLen, ssa.OpSliceLen:
		args := v.Args()
		d := e.destReg(id)
		base := e.fn.Values[args[0]]
		e.ldr(d, aFP, e.localFPOff(base.Home.Offset)+8)
		e.maybeSpill(id, d)
	case ssa.OpCall:
		e.emitCall(id)
	case ssa.OpCallIndirect:
		args := v.Args()
		target := e.ensureReg(args[0], aTmpA)
		e.emitArgs(args[1:])
		e.blr(target)
		e.storeCallResult(id)
	case ssa.OpSelectN:
		args := v.Args()
		_ = args
		d := e.destReg(id)
		src := armRetReg(int(v.Aux))
		if src != d {
			e.movReg(d, src)
		}
		e.maybeSpill(id, d)
	case ssa.OpJump:
		fx := blockFixup{codeOffset: e.b(), target: v.Targets[0]}
		e.fixups = append(e.fixups, fx)
	case ssa.OpBranch:
		args := v.Args()
		cond := e.ensureReg(args[0], aTmpA)
		e.cmpImm(cond, 0)
		fx := blockFixup{codeOffset: e.bCond(aCondNE), target: v.Targets[0], cond: true}
		e.fixups = append(e.fixups, fx)
		fx2 := blockFixup{codeOffset: e.b(), target: v.Targets[1]}
		e.fixups = append(e.fixups, fx2)
	case ssa.OpReturn:
		args := v.Args()
		if len(args) > 0 {
			rv := e.fn.Values[args[0]]
			if rv.Op == ssa.OpStringMake || rv.Op == ssa.OpSliceMake {
				// Two-register return: ptr/len occupy the wide stack
				// home regalloc gave string_make/slice_make (spec §4.5
				// "for slice/string return both ptr and len").
				off := e.localFPOff(rv.Home.Offset)
				e.ldr(armRetReg(0), aFP, off)
				e.ldr(armRetReg(1), aFP, off+8)
			} else {
				r := e.ensureReg(args[0], aX0)
				if r != aX0 {
					e.movReg(aX0, r)
				}
			}
		}
		e.epilogue()
	case ssa.OpLoadReg:
		d := e.destReg(id)
		e.ldr(d, aFP, e.localFPOff(int(v.Aux)))
		e.maybeSpill(id, d)
	case ssa.OpStoreReg:
		args := v.Args()
		val := e.ensureReg(args[0], aTmpA)
		e.str(val, aFP, e.localFPOff(int(v.Aux)))
	default:
		e.rep.Fatalf(diag.KindUnsupportedConstruct, "codegen-arm64", e.fn.Name, "no lowering for op %d", v.Op)
	}
}

func (e *arm64Emitter) emitBinary(id int) {
	v := e.fn.Values[id]
	args := v.Args()
	lhs, rhs := args[0], args[1]
	op := ssa.BinOp(v.Aux)
	if isCommutative(op) && e.alreadyInReg(rhs) && !e.alreadyInReg(lhs) {
		lhs, rhs = rhs, lhs
	}
	d := e.destReg(id)
	l := e.ensureReg(lhs, d)
	if l != d {
		e.movReg(d, l)
	}
	r := e.ensureReg(rhs, aTmpA)
	switch op {
	case ssa.BinAdd:
		e.addRR(d, d, r)
	case ssa.BinSub:
		e.subRR(d, d, r)
	case ssa.BinMul:
		e.mul(d, d, r)
	case ssa.BinDiv:
		e.sdiv(d, d, r)
	case ssa.BinMod:
		e.sdiv(aTmpB, d, r)
		e.msub(d, aTmpB, r, d)
	case ssa.BinAnd:
		e.andRR(d, d, r)
	case ssa.BinOr:
		e.orrRR(d, d, r)
	case ssa.BinXor:
		e.eorRR(d, d, r)
	case ssa.BinShl:
		e.lslRR(d, d, r)
	case ssa.BinShr:
		e.asrRR(d, d, r)
	}
	e.maybeSpill(id, d)
}

func (e *arm64Emitter) emitUnary(id int) {
	v := e.fn.Values[id]
	args := v.Args()
	d := e.destReg(id)
	src := e.ensureReg(args[0], d)
	switch ssa.UnOp(v.Aux) {
	case ssa.UnNeg:
		e.neg(d, src)
	case ssa.UnNot:
		e.eorImm1(d, src)
	}
	e.maybeSpill(id, d)
}

func (e *arm64Emitter) emitCompare(id int) {
	v := e.fn.Values[id]
	args := v.Args()
	d := e.destReg(id)
	l := e.ensureReg(args[0], aTmpA)
	r := e.ensureReg(args[1], aTmpB)
	e.cmpRR(l, r)
	cond := aCondEQ
	switch ssa.CmpOp(v.Aux) {
	case ssa.CmpEq:
		cond = aCondEQ
	case ssa.CmpNe:
		cond = aCondNE
	case ssa.CmpLt:
		cond = aCondLT
	case ssa.CmpLe:
		cond = aCondLE
	case ssa.CmpGt:
		cond = aCondGT
	case ssa.CmpGe:
		cond = aCondGE
	}
	e.cset(d, cond)
	e.maybeSpill(id, d)
}

func (e *arm64Emitter) emitCall(id int) {
	v := e.fn.Values[id]
	e.emitArgs(v.Args())
	callOff := len(e.code)
	e.bl()
	e.calls = append(e.calls, CallRef{CodeOffset: callOff, Callee: v.AuxStr})
	e.storeCallResult(id)
}

// emitArgs moves each call argument into its ABI register, in order.
func (e *arm64Emitter) emitArgs(args []int) {
	for i, a := range args {
		if i >= 8 {
			break // stack-passed arguments beyond the register file: unsupported here
		}
		r := e.ensureReg(a, armArgReg(i))
		if r != armArgReg(i) {
			e.movReg(armArgReg(i), r)
		}
	}
}

func (e *arm64Emitter) storeCallResult(id int) {
	v := e.fn.Values[id]
	if v.Type == e.reg.Void || v.Uses() == 0 {
		return
	}
	if e.reg.RegisterCountForABI(v.Type) == 2 {
		// A two-register (string/slice) result was split into select_n
		// projections right after the call; every direct use of the call
		// itself was redirected to their string_make/slice_make by
		// expand_calls. Nothing reads the call's own Home, and giving it
		// one here would risk a spurious mov into X1 that clobbers the
		// second half before the select_n(1) can read it.
		return
	}
	// A call's direct result (not yet split by select_n, i.e. a
	// single-register return) lands in X0.
	d := e.destReg(id)
	if d != aX0 {
		e.movReg(d, aX0)
	}
	e.maybeSpill(id, d)
}

func (e *arm64Emitter) alreadyInReg(id int) bool {
	return e.fn.Values[id].Home.Kind == ssa.HomeReg
}

// === instruction encoding, adapted from the teacher's AArch64 assembler ===

func (e *arm64Emitter) emit(inst uint32) {
	e.code = append(e.code, byte(inst), byte(inst>>8), byte(inst>>16), byte(inst>>24))
}

func (e *arm64Emitter) loadImm(rd int, val int64) {
	u := uint64(val)
	e.movz(rd, uint16(u), 0)
	if u>>16 != 0 {
		e.movk(rd, uint16(u>>16), 16)
	}
	if u>>32 != 0 {
		e.movk(rd, uint16(u>>32), 32)
	}
	if u>>48 != 0 {
		e.movk(rd, uint16(u>>48), 48)
	}
}

func (e *arm64Emitter) movz(rd int, imm16 uint16, shift int) {
	e.emit(uint32(0xD2800000) | (uint32(shift/16) << 21) | (uint32(imm16) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) movk(rd int, imm16 uint16, shift int) {
	e.emit(uint32(0xF2800000) | (uint32(shift/16) << 21) | (uint32(imm16) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) addRR(rd, rn, rm int) {
	e.emit(uint32(0x8B000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) subRR(rd, rn, rm int) {
	e.emit(uint32(0xCB000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) addImm(rd, rn int, imm12 uint32) {
	e.emit(uint32(0x91000000) | ((imm12 & 0xFFF) << 10) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) subImm(rd, rn int, imm12 uint32) {
	e.emit(uint32(0xD1000000) | ((imm12 & 0xFFF) << 10) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) mul(rd, rn, rm int) {
	e.emit(uint32(0x9B007C00) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) sdiv(rd, rn, rm int) {
	e.emit(uint32(0x9AC00C00) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) msub(rd, rn, rm, ra int) {
	e.emit(uint32(0x9B008000) | (uint32(rm&0x1f) << 16) | (uint32(ra&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) neg(rd, rm int) { e.subRR(rd, aXZR, rm) }

func (e *arm64Emitter) andRR(rd, rn, rm int) {
	e.emit(uint32(0x8A000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) orrRR(rd, rn, rm int) {
	e.emit(uint32(0xAA000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) eorRR(rd, rn, rm int) {
	e.emit(uint32(0xCA000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) lslRR(rd, rn, rm int) {
	e.emit(uint32(0x9AC02000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) asrRR(rd, rn, rm int) {
	e.emit(uint32(0x9AC02800) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

func (e *arm64Emitter) cmpRR(rn, rm int) {
	e.emit(uint32(0xEB000000) | (uint32(rm&0x1f) << 16) | (uint32(rn&0x1f) << 5) | uint32(aXZR&0x1f))
}

func (e *arm64Emitter) cmpImm(rn int, imm12 uint32) {
	e.emit(uint32(0xF1000000) | ((imm12 & 0xFFF) << 10) | (uint32(rn&0x1f) << 5) | uint32(aXZR&0x1f))
}

func (e *arm64Emitter) cset(rd, cond int) {
	inv := uint32(cond ^ 1)
	e.emit(uint32(0x9A9F07E0) | (inv << 12) | uint32(rd&0x1f))
}

func (e *arm64Emitter) eorImm1(rd, rn int) {
	e.emit(uint32(0xD2400000) | (uint32(rn&0x1f) << 5) | uint32(rd&0x1f))
}

// ldr/str use the unscaled signed 9-bit (LDUR/STUR) form for offsets that
// fit, falling back to materializing the offset through aTmpB otherwise —
// adequate for the small fixed frames this core produces.
func (e *arm64Emitter) ldr(rt, rn, offset int) {
	if offset >= -256 && offset <= 255 {
		e.emit(uint32(0xF8400000) | ((uint32(offset) & 0x1FF) << 12) | (uint32(rn&0x1f) << 5) | uint32(rt&0x1f))
		return
	}
	e.loadImm(aTmpB, int64(offset))
	e.addRR(aTmpB, rn, aTmpB)
	e.emit(uint32(0xF9400000) | (uint32(aTmpB&0x1f) << 5) | uint32(rt&0x1f))
}

func (e *arm64Emitter) str(rt, rn, offset int) {
	if offset >= -256 && offset <= 255 {
		e.emit(uint32(0xF8000000) | ((uint32(offset) & 0x1FF) << 12) | (uint32(rn&0x1f) << 5) | uint32(rt&0x1f))
		return
	}
	e.loadImm(aTmpB, int64(offset))
	e.addRR(aTmpB, rn, aTmpB)
	e.emit(uint32(0xF9000000) | (uint32(aTmpB&0x1f) << 5) | uint32(rt&0x1f))
}

func (e *arm64Emitter) stp(rt1, rt2, rn, offset int) {
	imm7 := uint32(offset/8) & 0x7F
	e.emit(uint32(0xA9800000) | (imm7 << 15) | (uint32(rt2&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rt1&0x1f))
}

func (e *arm64Emitter) ldp(rt1, rt2, rn, offset int) {
	imm7 := uint32(offset/8) & 0x7F
	e.emit(uint32(0xA8C00000) | (imm7 << 15) | (uint32(rt2&0x1f) << 10) | (uint32(rn&0x1f) << 5) | uint32(rt1&0x1f))
}

func (e *arm64Emitter) b() int {
	off := len(e.code)
	e.emit(0x14000000)
	return off
}

func (e *arm64Emitter) bl() int {
	off := len(e.code)
	e.emit(0x94000000)
	return off
}

func (e *arm64Emitter) bCond(cond int) int {
	off := len(e.code)
	e.emit(uint32(0x54000000) | uint32(cond&0xF))
	return off
}

func (e *arm64Emitter) blr(rn int) {
	e.emit(uint32(0xD63F0000) | (uint32(rn&0x1f) << 5))
}

func (e *arm64Emitter) ret() { e.emit(0xD65F03C0) }

func (e *arm64Emitter) movReg(rd, rm int) {
	if rd == aSP || rm == aSP {
		e.addImm(rd, rm, 0)
		return
	}
	e.orrRR(rd, aXZR, rm)
}

func (e *arm64Emitter) leaLocal(rd, offset int) {
	off := e.localFPOff(offset)
	if off <= 0 && -off < 4096 {
		e.addImm(rd, aFP, uint32(-off))
		return
	}
	e.loadImm(rd, int64(off))
	e.addRR(rd, aFP, rd)
}

func (e *arm64Emitter) addrOf(rd int, symbol string, isString bool) {
	off := len(e.code)
	e.emit(uint32(0x90000000) | uint32(rd&0x1f)) // ADRP Xd, #0 (placeholder page)
	e.addImm(rd, rd, 0)                           // ADD Xd, Xd, #0 (placeholder page offset)
	e.addrs = append(e.addrs, AddrRef{CodeOffset: off, Symbol: symbol, IsString: isString})
}

func (e *arm64Emitter) patchB(codeOffset, target int) {
	delta := (target - codeOffset) / 4
	existing := getU32(e.code[codeOffset:])
	e.putU32(codeOffset, (existing&0xFC000000)|(uint32(delta)&0x03FFFFFF))
}

func (e *arm64Emitter) patchBCond(codeOffset, target int) {
	delta := (target - codeOffset) / 4
	existing := getU32(e.code[codeOffset:])
	cond := existing & 0xF
	e.putU32(codeOffset, 0x54000000|((uint32(delta)&0x7FFFF)<<5)|cond)
}

func (e *arm64Emitter) putU32(off int, v uint32) {
	e.code[off] = byte(v)
	e.code[off+1] = byte(v >> 8)
	e.code[off+2] = byte(v >> 16)
	e.code[off+3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
