// Package ir is the named-local intermediate representation produced by
// the Lowerer (spec §3.2, §4.1): a flat array of IR nodes per function,
// with reads/writes to locals still expressed as explicit load_local /
// store_local nodes — no SSA numbering yet. This mirrors the teacher's
// `IRFunc`/`Inst` model in `std/compiler/ir.go`, generalized from a
// stack-machine instruction stream to a node graph with explicit operand
// references, since the SSA Builder (§4.2) needs real block predecessor
// structure rather than labels and jumps.
package ir

import "github.com/cotlang/cotc/internal/types"

// Op tags the operation of one IR node.
type Op int

const (
	OpConstInt Op = iota
	OpConstBool
	OpConstNil
	OpConstString // Aux indexes Func.Strings
	OpConstFloat  // Aux carries math.Float64bits(value)

	OpBinary // Aux holds a BinOp tag
	OpUnary  // Aux holds a UnOp tag
	OpCompare

	OpLoadLocal  // Aux = local index
	OpStoreLocal // Aux = local index, Args[0] = value

	OpLocalAddr  // Aux = local index
	OpGlobalAddr // AuxStr = global name

	OpOffsetPtr // Args[0] = base ptr, Aux = byte offset
	OpIndexPtr  // Args[0] = base ptr, Args[1] = index, Aux = element size

	OpFieldAccess // Args[0] = base addr, Aux = field byte offset -- loads the field
	OpFieldStore  // Args[0] = base addr, Args[1] = value, Aux = field byte offset

	OpLoad  // Args[0] = addr
	OpStore // Args[0] = addr, Args[1] = value

	OpCall         // AuxStr = callee name, Args = arguments
	OpCallIndirect // Args[0] = function value, Args[1:] = arguments

	OpSliceMake // Args[0] = ptr, Args[1] = len
	OpSlicePtr  // Args[0] = slice value
	OpSliceLen  // Args[0] = slice value

	OpStringMake   // Args[0] = ptr, Args[1] = len
	OpStringPtr    // Args[0] = string value
	OpStringLen    // Args[0] = string value
	OpStringConcat // Args[0], Args[1]

	OpMove // Args[0] = dst addr, Args[1] = src addr, Aux = byte size

	OpConvert // Args[0] = value; Type holds the target type

	OpFuncAddr // AuxStr = function name

	OpSelect // Args[0] = cond, Args[1] = then value, Args[2] = else value

	// Block terminators. Every block ends with exactly one of these.
	OpJump   // Targets[0] = successor block id
	OpBranch // Args[0] = condition, Targets[0] = then block id, Targets[1] = else block id
	OpReturn // Args[0] = return value, if any
)

// IsTerminator reports whether op ends a block.
func (op Op) IsTerminator() bool {
	return op == OpJump || op == OpBranch || op == OpReturn
}

// BinOp enumerates the arithmetic/bitwise binary operators.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
)

// CmpOp enumerates comparison operators.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// UnOp enumerates unary operators.
type UnOp int

const (
	UnNeg UnOp = iota
	UnNot
)

// Position is a source position, carried through for diagnostics.
type Position struct {
	File string
	Line int
	Col  int
}

// Node is one IR instruction: an operation, its static type, its source
// position, a small operand list, and an optional 64-bit / string
// auxiliary (spec §3.2).
type Node struct {
	Op   Op
	Type types.ID
	Pos  Position

	Args []int // operand indices into the owning Func.Nodes

	Aux    int64
	AuxStr string

	// Targets holds successor block ids for OpJump (Targets[0] only) and
	// OpBranch (Targets[0] = then, Targets[1] = else).
	Targets [2]int
}

// Local describes one function-local slot: a parameter or a plain local.
type Local struct {
	Name    string
	Type    types.ID
	Size    int
	IsParam bool
}

// Block is a contiguous run of nodes within Func.Nodes, terminated by
// exactly one of OpJump/OpBranch/OpReturn (spec §3.2).
type Block struct {
	ID         int
	Start, End int // half-open range into Func.Nodes
}

// Func is one lowered function: its parameters, locals, referenced
// globals, per-function string-literal table, and its basic blocks.
type Func struct {
	Name   string
	Params []Local
	Locals []Local

	Globals []string
	Strings []string

	Nodes  []Node
	Blocks []Block

	// Extern marks a declaration with no body: only an undefined external
	// symbol is produced, per spec §4.1.
	Extern bool
}

// NodeAt returns the node at position idx.
func (f *Func) NodeAt(idx int) *Node { return &f.Nodes[idx] }

// Module holds every function lowered from one typed AST (spec §4.1:
// "one IR function per source function").
type Module struct {
	Funcs []*Func
}
