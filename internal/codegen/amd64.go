package codegen

import (
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/regalloc"
	"github.com/cotlang/cotc/internal/ssa"
	"github.com/cotlang/cotc/internal/types"
)

// AMD64 register numbers (RAX=0 .. R15=15). R15 is deliberately left
// outside the generic register pool (see amdGPR) as a codegen-private
// staging register; R14 doubles as both the regalloc scratch register and
// a second staging register, for the same reason noted in arm64.go.
const (
	amdRAX = 0
	amdRCX = 1
	amdRDX = 2
	amdRBX = 3
	amdRSP = 4
	amdRBP = 5
	amdRSI = 6
	amdRDI = 7
	amdR8  = 8
	amdR9  = 9

	amdTmpA = 15 // R15
	amdTmpB = 14 // R14 (== ScratchReg's physical home)
)

const (
	amdCCE  = 0x84
	amdCCNE = 0x85
	amdCCL  = 0x8C
	amdCCGE = 0x8D
	amdCCLE = 0x8E
	amdCCG  = 0x8F
)

var amdGPR = [regalloc.NumGPR]int{amdRAX, amdRCX, amdRDX, amdRBX, amdRSI, amdRDI, amdR8, amdR9, 10, 11, 12, 13}

func amdPhys(r int) int {
	if r == regalloc.ScratchReg {
		return amdTmpB
	}
	return amdGPR[r]
}

var amdArgRegs = [6]int{amdRDI, amdRSI, amdRDX, amdRCX, amdR8, amdR9}

func amdArgReg(s int) int { return amdArgRegs[s] }

func amdRetReg(slot int) int {
	if slot == 0 {
		return amdRAX
	}
	return amdRDX
}

// CompileAMD64 emits x86-64 machine code for fn (spec §4.5).
func CompileAMD64(fn *ssa.Func, reg *types.Registry, frame regalloc.Frame, rep *diag.Reporter) FuncCode {
	e := &amd64Emitter{fn: fn, reg: reg, rep: rep, blockOff: make(map[int]int)}
	e.run(frame)
	return FuncCode{Name: fn.Name, Code: e.code, Calls: e.calls, Addrs: e.addrs, Strings: fn.Strings}
}

type amd64Emitter struct {
	fn  *ssa.Func
	reg *types.Registry
	rep *diag.Reporter

	code  []byte
	calls []CallRef
	addrs []AddrRef

	blockOff   map[int]int
	fixups     []blockFixup
	frameBytes int
}

func (e *amd64Emitter) run(frame regalloc.Frame) {
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
		e.patchRel32(fx.codeOffset, e.blockOff[fx.target])
	}
}

func (e *amd64Emitter) prologue(frameSize int) {
	e.frameBytes = alignUp(frameSize, 16)
	e.pushR(amdRBP)
	e.movRR(amdRBP, amdRSP)
	if e.frameBytes > 0 {
		e.subRI(amdRSP, int32(e.frameBytes))
	}
}

func (e *amd64Emitter) epilogue() {
	e.movRR(amdRSP, amdRBP)
	e.popR(amdRBP)
	e.ret()
}

func (e *amd64Emitter) rbpOff(offset int) int { return -(offset + 8) }

func (e *amd64Emitter) ensureReg(id, prefer int) int {
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
		e.xorRR(prefer, prefer)
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
		return amdArgReg(int(v.Aux))
	}
	switch v.Home.Kind {
	case ssa.HomeReg:
		return amdPhys(v.Home.Reg)
	case ssa.HomeStack:
		e.loadMem(prefer, amdRBP, e.rbpOff(v.Home.Offset))
		return prefer
	default:
		e.rep.Fatalf(diag.KindInternalInvariant, "codegen-amd64", e.fn.Name, "value %d has no home and is not rematerializable", id)
		return prefer
	}
}

func (e *amd64Emitter) destReg(id int) int {
	v := e.fn.Values[id]
	if v.Home.Kind == ssa.HomeReg {
		return amdPhys(v.Home.Reg)
	}
	return amdTmpA
}

func (e *amd64Emitter) maybeSpill(id, d int) {
	v := e.fn.Values[id]
	if v.Home.Kind == ssa.HomeStack {
		e.storeMem(amdRBP, e.rbpOff(v.Home.Offset), d)
	}
}

func (e *amd64Emitter) alreadyInReg(id int) bool {
	return e.fn.Values[id].Home.Kind == ssa.HomeReg
}

func (e *amd64Emitter) emitValue(id int) {
	v := e.fn.Values[id]
	switch v.Op {
	case ssa.OpConstInt, ssa.OpConstBool, ssa.OpConstNil, ssa.OpConstPtr,
		ssa.OpLocalAddr, ssa.OpGlobalAddr, ssa.OpFuncAddr, ssa.OpArg, ssa.OpPhi:
		return
	case ssa.OpCopy:
		args := v.Args()
		d := e.destReg(id)
		src := e.ensureReg(args[0], d)
		if src != d {
			e.movRR(d, src)
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
		addr := e.ensureReg(args[0], amdTmpA)
		e.loadMem(d, addr, 0)
		e.maybeSpill(id, d)
	case ssa.OpStore:
		args := v.Args()
		addr := e.ensureReg(args[0], amdTmpA)
		val := e.ensureReg(args[1], amdTmpB)
		e.storeMem(addr, 0, val)
	case ssa.OpFieldAccess:
		args := v.Args()
		d := e.destReg(id)
		addr := e.ensureReg(args[0], amdTmpA)
		e.loadMem(d, addr, int(v.Aux))
		e.maybeSpill(id, d)
	case ssa.OpFieldStore:
		args := v.Args()
		addr := e.ensureReg(args[0], amdTmpA)
		val := e.ensureReg(args[1], amdTmpB)
		e.storeMem(addr, int(v.Aux), val)
	case ssa.OpOffsetPtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.ensureReg(args[0], d)
		if base != d {
			e.movRR(d, base)
		}
		e.addRI(d, int32(v.Aux))
		e.maybeSpill(id, d)
	case ssa.OpIndexPtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.ensureReg(args[0], d)
		idx := e.ensureReg(args[1], amdTmpA)
		scaled := idx
		if v.Aux > 1 {
			e.imulRRI32(amdTmpA, idx, int32(v.Aux))
			scaled = amdTmpA
		}
		if base != d {
			e.movRR(d, base)
		}
		e.addRR(d, scaled)
		e.maybeSpill(id, d)
	case ssa.OpMove:
		args := v.Args()
		dst := e.ensureReg(args[0], amdTmpA)
		src := e.ensureReg(args[1], amdTmpB)
		size := e.reg.SizeOf(e.fn.Values[args[1]].Type)
		for off := 0; off+8 <= size; off += 8 {
			e.loadMem(amdTmpB, src, off)
			e.storeMem(dst, off, amdTmpB)
		}
	case ssa.OpConvert:
		args := v.Args()
		d := e.destReg(id)
		src := e.ensureReg(args[0], d)
		if src != d {
			e.movRR(d, src)
		}
		e.maybeSpill(id, d)
	case ssa.OpStringMake, ssa.OpSliceMake:
		args := v.Args()
		ptr := e.ensureReg(args[0], amdTmpA)
		ln := e.ensureReg(args[1], amdTmpB)
		off := e.rbpOff(v.Home.Offset)
		e.storeMem(amdRBP, off, ptr)
		e.storeMem(amdRBP, off+8, ln)
	case ssa.OpStringPtr, ssa.OpSlicePtr:
		args := v.Args()
		d := e.destReg(id)
		base := e.fn.Values[args[0]]
		e.loadMem(d, amdRBP, e.rbpOff(base.Home.Offset))
		e.maybeSpill(id, d)
	case ssa.OpStringLen, ssa.OpSliceLen:
		args := v.Args()
		d := e.destReg(id)
		base := e.fn.Values[args[0]]
		e.loadMem(d, amdRBP, e.rbpOff(base.Home.Offset)+8)
		e.maybeSpill(id, d)
	case ssa.OpCall:
		e.emitCall(id)
	case ssa.OpCallIndirect:
		args := v.Args()
		target := e.ensureReg(args[0], amdTmpA)
		e.emitArgs(args[1:])
		e.callR(target)
		e.storeCallResult(id)
	case ssa.OpSelectN:
		d := e.destReg(id)
		src := amdRetReg(int(v.Aux))
		if src != d {
			e.movRR(d, src)
		}
		e.maybeSpill(id, d)
	case ssa.OpJump:
		fx := blockFixup{codeOffset: e.jmp(), target: v.Targets[0]}
		e.fixups = append(e.fixups, fx)
	case ssa.OpBranch:
		args := v.Args()
		cond := e.ensureReg(args[0], amdTmpA)
		e.cmpRI(cond, 0)
		fx := blockFixup{codeOffset: e.jcc(amdCCNE), target: v.Targets[0]}
		e.fixups = append(e.fixups, fx)
		fx2 := blockFixup{codeOffset: e.jmp(), target: v.Targets[1]}
		e.fixups = append(e.fixups, fx2)
	case ssa.OpReturn:
		args := v.Args()
		if len(args) > 0 {
			rv := e.fn.Values[args[0]]
			if rv.Op == ssa.OpStringMake || rv.Op == ssa.OpSliceMake {
				// Two-register return: ptr/len occupy the wide stack
				// home regalloc gave string_make/slice_make (spec §4.5
				// "for slice/string return both ptr and len").
				off := e.rbpOff(rv.Home.Offset)
				e.loadMem(amdRetReg(0), amdRBP, off)
				e.loadMem(amdRetReg(1), amdRBP, off+8)
			} else {
				r := e.ensureReg(args[0], amdRAX)
				if r != amdRAX {
					e.movRR(amdRAX, r)
				}
			}
		}
		e.epilogue()
	case ssa.OpLoadReg:
		d := e.destReg(id)
		e.loadMem(d, amdRBP, e.rbpOff(int(v.Aux)))
		e.maybeSpill(id, d)
	case ssa.OpStoreReg:
		args := v.Args()
		val := e.ensureReg(args[0], amdTmpA)
		e.storeMem(amdRBP, e.rbpOff(int(v.Aux)), val)
	default:
		e.rep.Fatalf(diag.KindUnsupportedConstruct, "codegen-amd64", e.fn.Name, "no lowering for op %d", v.Op)
	}
}

func (e *amd64Emitter) emitBinary(id int) {
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
		e.movRR(d, l)
	}
	r := e.ensureReg(rhs, amdTmpA)
	switch op {
	case ssa.BinAdd:
		e.addRR(d, r)
	case ssa.BinSub:
		e.subRR(d, r)
	case ssa.BinMul:
		e.imulRR(d, r)
	case ssa.BinDiv, ssa.BinMod:
		// idiv splits rax:rdx; shuffle the dividend into rax, divisor
		// into a scratch register to avoid clobbering it, then move the
		// quotient/remainder back into d.
		if d != amdRAX {
			e.movRR(amdRAX, d)
		}
		if r == amdRDX {
			e.movRR(amdTmpB, r)
			r = amdTmpB
		}
		e.cqo()
		e.idivR(r)
		if op == ssa.BinDiv {
			e.movRR(d, amdRAX)
		} else {
			e.movRR(d, amdRDX)
		}
	case ssa.BinAnd:
		e.andRR(d, r)
	case ssa.BinOr:
		e.orRR(d, r)
	case ssa.BinXor:
		e.xorRR(d, r)
	case ssa.BinShl:
		e.shiftByReg(d, r, true)
	case ssa.BinShr:
		e.shiftByReg(d, r, false)
	}
	e.maybeSpill(id, d)
}

// shiftByReg emits a variable shift, routing the shift count through RCX
// (the only register SHL/SAR's CL form can read from) and restoring RCX
// around the shift if it held something else.
func (e *amd64Emitter) shiftByReg(d, count int, left bool) {
	saveRCX := count != amdRCX && d != amdRCX
	if saveRCX {
		e.pushR(amdRCX)
	}
	if count != amdRCX {
		e.movRR(amdRCX, count)
	}
	if left {
		e.shlCl(d)
	} else {
		e.sarCl(d)
	}
	if saveRCX {
		e.popR(amdRCX)
	}
}

func (e *amd64Emitter) emitUnary(id int) {
	v := e.fn.Values[id]
	args := v.Args()
	d := e.destReg(id)
	src := e.ensureReg(args[0], d)
	if src != d {
		e.movRR(d, src)
	}
	switch ssa.UnOp(v.Aux) {
	case ssa.UnNeg:
		e.negR(d)
	case ssa.UnNot:
		e.xorRI8(d, 1)
	}
	e.maybeSpill(id, d)
}

func (e *amd64Emitter) emitCompare(id int) {
	v := e.fn.Values[id]
	args := v.Args()
	d := e.destReg(id)
	l := e.ensureReg(args[0], amdTmpA)
	r := e.ensureReg(args[1], amdTmpB)
	e.cmpRR(l, r)
	cc := byte(amdCCE)
	switch ssa.CmpOp(v.Aux) {
	case ssa.CmpEq:
		cc = amdCCE
	case ssa.CmpNe:
		cc = amdCCNE
	case ssa.CmpLt:
		cc = amdCCL
	case ssa.CmpLe:
		cc = amdCCLE
	case ssa.CmpGt:
		cc = amdCCG
	case ssa.CmpGe:
		cc = amdCCGE
	}
	e.xorRR(d, d)
	e.setcc(cc, d)
	e.maybeSpill(id, d)
}

func (e *amd64Emitter) emitCall(id int) {
	v := e.fn.Values[id]
	e.emitArgs(v.Args())
	e.emitByte(0xe8)
	callOff := len(e.code)
	e.emitU32(0)
	e.calls = append(e.calls, CallRef{CodeOffset: callOff, Callee: v.AuxStr})
	e.storeCallResult(id)
}

func (e *amd64Emitter) emitArgs(args []int) {
	for i, a := range args {
		if i >= len(amdArgRegs) {
			break
		}
		r := e.ensureReg(a, amdArgReg(i))
		if r != amdArgReg(i) {
			e.movRR(amdArgReg(i), r)
		}
	}
}

func (e *amd64Emitter) storeCallResult(id int) {
	v := e.fn.Values[id]
	if v.Type == e.reg.Void || v.Uses() == 0 {
		return
	}
	if e.reg.RegisterCountForABI(v.Type) == 2 {
		// A two-register (string/slice) result was split into select_n
		// projections right after the call; every direct use of the call
		// itself was redirected to their string_make/slice_make by
		// expand_calls. Nothing reads the call's own Home, and giving it
		// one here would risk a spurious mov into RDX that clobbers the
		// second half before the select_n(1) can read it.
		return
	}
	d := e.destReg(id)
	if d != amdRAX {
		e.movRR(d, amdRAX)
	}
	e.maybeSpill(id, d)
}

// === instruction encoding, adapted from the teacher's x86-64 assembler ===

func (e *amd64Emitter) emitByte(b byte)       { e.code = append(e.code, b) }
func (e *amd64Emitter) emitBytes(bs ...byte)  { e.code = append(e.code, bs...) }
func (e *amd64Emitter) emitU32(v uint32) {
	e.code = append(e.code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
func (e *amd64Emitter) emitU64(v uint64) {
	for i := 0; i < 8; i++ {
		e.code = append(e.code, byte(v>>(8*uint(i))))
	}
}

func (e *amd64Emitter) loadImm(reg int, val int64) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x49
	}
	e.emitByte(rex)
	e.emitByte(byte(0xb8 + (reg & 7)))
	e.emitU64(uint64(val))
}

func rexRR(dst, src int) byte {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x04
	}
	if src >= 8 {
		rex |= 0x01
	}
	return rex
}

func modrmRR(dst, src int) byte {
	return byte(0xc0 | ((dst & 7) << 3) | (src & 7))
}

func (e *amd64Emitter) movRR(dst, src int)  { e.emitBytes(rexRR(src, dst), 0x89, modrmRR(src, dst)) }
func (e *amd64Emitter) addRR(dst, src int)  { e.emitBytes(rexRR(src, dst), 0x01, modrmRR(src, dst)) }
func (e *amd64Emitter) subRR(dst, src int)  { e.emitBytes(rexRR(src, dst), 0x29, modrmRR(src, dst)) }
func (e *amd64Emitter) andRR(dst, src int)  { e.emitBytes(rexRR(src, dst), 0x21, modrmRR(src, dst)) }
func (e *amd64Emitter) orRR(dst, src int)   { e.emitBytes(rexRR(src, dst), 0x09, modrmRR(src, dst)) }
func (e *amd64Emitter) xorRR(dst, src int)  { e.emitBytes(rexRR(src, dst), 0x31, modrmRR(src, dst)) }
func (e *amd64Emitter) cmpRR(a, b int)      { e.emitBytes(rexRR(b, a), 0x39, modrmRR(b, a)) }
func (e *amd64Emitter) imulRR(dst, src int) { e.emitBytes(rexRR(dst, src), 0x0f, 0xaf, modrmRR(dst, src)) }

func (e *amd64Emitter) negR(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	e.emitBytes(rex, 0xf7, byte(0xd8|(reg&7)))
}

func (e *amd64Emitter) cqo() { e.emitBytes(0x48, 0x99) }

func (e *amd64Emitter) idivR(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	e.emitBytes(rex, 0xf7, byte(0xf8|(reg&7)))
}

func (e *amd64Emitter) shlCl(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	e.emitBytes(rex, 0xd3, byte(0xe0|(reg&7)))
}

func (e *amd64Emitter) sarCl(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	e.emitBytes(rex, 0xd3, byte(0xf8|(reg&7)))
}

func (e *amd64Emitter) pushR(reg int) {
	if reg >= 8 {
		e.emitBytes(0x41, byte(0x50+(reg&7)))
	} else {
		e.emitByte(byte(0x50 + reg))
	}
}

func (e *amd64Emitter) popR(reg int) {
	if reg >= 8 {
		e.emitBytes(0x41, byte(0x58+(reg&7)))
	} else {
		e.emitByte(byte(0x58 + reg))
	}
}

func (e *amd64Emitter) addRI(reg int, val int32) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	if val >= -128 && val <= 127 {
		e.emitBytes(rex, 0x83, byte(0xc0|(reg&7)), byte(val))
		return
	}
	e.emitBytes(rex, 0x81, byte(0xc0|(reg&7)))
	e.emitU32(uint32(val))
}

func (e *amd64Emitter) subRI(reg int, val int32) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	if val >= -128 && val <= 127 {
		e.emitBytes(rex, 0x83, byte(0xe8|(reg&7)), byte(val))
		return
	}
	e.emitBytes(rex, 0x81, byte(0xe8|(reg&7)))
	e.emitU32(uint32(val))
}

func (e *amd64Emitter) cmpRI(reg int, val int32) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	if val >= -128 && val <= 127 {
		e.emitBytes(rex, 0x83, byte(0xf8|(reg&7)), byte(val))
		return
	}
	e.emitBytes(rex, 0x81, byte(0xf8|(reg&7)))
	e.emitU32(uint32(val))
}

func (e *amd64Emitter) xorRI8(reg int, val byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	e.emitBytes(rex, 0x83, byte(0xf0|(reg&7)), val)
}

func (e *amd64Emitter) imulRRI32(dst, src int, val int32) {
	e.emitBytes(rexRR(dst, src), 0x69, modrmRR(dst, src))
	e.emitU32(uint32(val))
}

func (e *amd64Emitter) loadMem(dst, base, off int) {
	rex := rexRR(dst, base)
	if off == 0 && (base&7) != amdRBP {
		e.emitBytes(rex, 0x8b, byte((dst&7)<<3|(base&7)))
		if (base & 7) == amdRSP {
			e.emitByte(0x24)
		}
		return
	}
	if off >= -128 && off <= 127 {
		e.emitBytes(rex, 0x8b, byte(0x40|(dst&7)<<3|(base&7)), byte(off))
		if (base & 7) == amdRSP {
			e.code = e.code[:len(e.code)-1]
			e.emitBytes(0x24, byte(off))
		}
		return
	}
	e.emitBytes(rex, 0x8b, byte(0x80|(dst&7)<<3|(base&7)))
	if (base & 7) == amdRSP {
		e.code = e.code[:len(e.code)-1]
		e.emitByte(0x24)
	}
	e.emitU32(uint32(int32(off)))
}

func (e *amd64Emitter) storeMem(base, off, src int) {
	rex := rexRR(src, base)
	if off == 0 && (base&7) != amdRBP {
		e.emitBytes(rex, 0x89, byte((src&7)<<3|(base&7)))
		if (base & 7) == amdRSP {
			e.emitByte(0x24)
		}
		return
	}
	if off >= -128 && off <= 127 {
		e.emitBytes(rex, 0x89, byte(0x40|(src&7)<<3|(base&7)), byte(off))
		if (base & 7) == amdRSP {
			e.code = e.code[:len(e.code)-1]
			e.emitBytes(0x24, byte(off))
		}
		return
	}
	e.emitBytes(rex, 0x89, byte(0x80|(src&7)<<3|(base&7)))
	if (base & 7) == amdRSP {
		e.code = e.code[:len(e.code)-1]
		e.emitByte(0x24)
	}
	e.emitU32(uint32(int32(off)))
}

func (e *amd64Emitter) setcc(cc byte, reg int) {
	op := byte(0x90 | (cc & 0x0f))
	if reg >= 8 {
		e.emitBytes(0x41, 0x0f, op, byte(0xc0|(reg&7)))
		return
	}
	e.emitBytes(0x0f, op, byte(0xc0|(reg&7)))
}

func (e *amd64Emitter) leaLocal(reg, offset int) {
	off := e.rbpOff(offset)
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4c
	}
	negOff := -off
	if negOff >= -128 && negOff <= 127 {
		e.emitBytes(rex, 0x8d, byte(0x45|(reg&7)<<3), byte(negOff))
		return
	}
	e.emitBytes(rex, 0x8d, byte(0x85|(reg&7)<<3))
	e.emitU32(uint32(int32(negOff)))
}

// addrOf emits a RIP-relative `lea reg, [rip+disp32]` with a placeholder
// displacement; the object writer patches the 4-byte field at
// CodeOffset+3 once it knows the symbol's final address (spec §4.6).
func (e *amd64Emitter) addrOf(reg int, symbol string, isString bool) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4c
	}
	off := len(e.code)
	e.emitBytes(rex, 0x8d, byte(0x05|(reg&7)<<3))
	e.emitU32(0)
	e.addrs = append(e.addrs, AddrRef{CodeOffset: off, Symbol: symbol, IsString: isString})
}

// jmp and jcc emit a branch with a zero rel32 and return the offset of
// that displacement field, which patchRel32 fills in later.
func (e *amd64Emitter) jmp() int {
	e.emitByte(0xe9)
	off := len(e.code)
	e.emitU32(0)
	return off
}

func (e *amd64Emitter) jcc(cc byte) int {
	e.emitBytes(0x0f, cc)
	off := len(e.code)
	e.emitU32(0)
	return off
}

func (e *amd64Emitter) callR(reg int) {
	if reg >= 8 {
		e.emitByte(0x41)
	}
	e.emitBytes(0xff, byte(0xd0|(reg&7)))
}

func (e *amd64Emitter) ret() { e.emitByte(0xc3) }

// patchRel32 patches the 4-byte displacement ending at codeOffset+4 so the
// instruction's next-IP-relative jump lands on target.
func (e *amd64Emitter) patchRel32(codeOffset, target int) {
	rel := int32(target - (codeOffset + 4))
	e.code[codeOffset] = byte(rel)
	e.code[codeOffset+1] = byte(rel >> 8)
	e.code[codeOffset+2] = byte(rel >> 16)
	e.code[codeOffset+3] = byte(rel >> 24)
}
