// Package codegen emits machine code for one function at a time (spec
// §4.5), consuming the scheduled, register-allocated ssa.Func the passes
// and regalloc packages produce. Grounded on the teacher's own backend
// split: one encoder file per architecture (aarch64.go, x64.go) and one
// function-level driver per architecture (backend_aarch64.go,
// backend_x64.go), rather than a shared interface — arm64.go and amd64.go
// each implement a complete, independent per-function entry point
// (CompileARM64, CompileAMD64).
package codegen

import (
	"strconv"

	"github.com/cotlang/cotc/internal/ssa"
)

// Arch selects which architecture's emitter to run.
type Arch int

const (
	ARM64 Arch = iota
	AMD64
)

// CallRef records one direct-call instruction whose target is another
// function, resolved by the object writer once every function's section
// offset is known (spec §4.6).
type CallRef struct {
	CodeOffset int
	Callee     string
}

// AddrRef records one instruction sequence that materializes the address
// of a string literal or a global variable. CodeOffset is the offset, in
// Code, of the first instruction of the sequence.
type AddrRef struct {
	CodeOffset int
	Symbol     string
	IsString   bool
}

// FuncCode is the emitted machine code for one function, plus every
// unresolved reference the object writer must patch or relocate.
type FuncCode struct {
	Name  string
	Code  []byte
	Calls []CallRef
	Addrs []AddrRef

	// Strings is fn.Strings, carried along so the object writer can
	// resolve an AddrRef.IsString symbol ("L.str.<n>", n local to this
	// function) back to its literal content for cross-function
	// deduplication (spec §4.6).
	Strings []string
}

// blockFixup is a not-yet-resolved local branch: the SSA block id it
// targets, and codeOffset, which is the branch instruction's own offset on
// ARM64 and the offset of its rel32 displacement field on AMD64.
type blockFixup struct {
	codeOffset int
	target     int
	cond       bool
}

// isCommutative reports whether swapping a binary op's operands is safe,
// used by the per-architecture emitters to favor an already-homed operand
// as the left-hand side and cut down on register moves.
func isCommutative(op ssa.BinOp) bool {
	switch op {
	case ssa.BinAdd, ssa.BinMul, ssa.BinAnd, ssa.BinOr, ssa.BinXor:
		return true
	default:
		return false
	}
}

// stringSymbol names the string literal at index i of the emitting
// function's own Strings table. The object writer maps the name back to the
// literal's content and assigns the module-wide deduplicated `L.str.<n>`
// symbol (spec §4.6).
func stringSymbol(i int64) string {
	return "L.str." + strconv.FormatInt(i, 10)
}

func alignUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}
