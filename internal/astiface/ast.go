// Package astiface defines the narrow interface the Lowerer (§4.1) uses to
// consume a typed AST. Parsing, name resolution, and type checking are all
// out of scope for this repository (spec §1) and owned by an external
// collaborator; this package only pins down the contract that collaborator
// must satisfy, per spec §6: "a typed AST data structure ... accessed only
// through an interface that yields root declarations, node-by-index
// retrieval, and checker-cached per-node types."
package astiface

import "github.com/cotlang/cotc/internal/types"

// NodeID indexes a node within a Tree. Zero is never a valid node.
type NodeID int

// DeclID indexes one of the tree's root declarations.
type DeclID int

// Kind tags the syntactic form of a node. The set is closed and small,
// matching spec §4.1's statement/expression coverage; an AST form outside
// this set is an UnsupportedConstruct (§7) for the Lowerer to reject.
type Kind int

const (
	KindFuncDecl Kind = iota
	KindExternDecl
	KindParam
	KindStructDecl
	KindEnumDecl

	KindBlock
	KindVarDecl
	KindAssign
	KindCompoundAssign
	KindIf
	KindWhile
	KindForIn
	KindReturn
	KindBreak
	KindContinue
	KindDefer
	KindExprStmt

	KindIntLit
	KindBoolLit
	KindNilLit
	KindStringLit
	KindFloatLit
	KindIdent
	KindBinary
	KindUnary
	KindCompare
	KindCall
	KindIndex
	KindField
	KindSelect // ternary cond ? a : b
	KindStructInit
	KindArrayInit
	KindAddrOf
	KindDeref
)

// Node is the read-only view of one AST node. Implementations may embed
// richer internal state; only this surface is visible to the Lowerer.
type Node struct {
	Kind Kind
	Pos  Position

	Name string // identifier, field name, call target, binary/unary op spelling

	Children []NodeID // operands, statements, struct/array init elements
	Type     NodeID   // child 0's declared type node, where applicable (params, var decls)

	// Literal payloads; exactly one is meaningful per Kind.
	IntVal    int64
	BoolVal   bool
	StringVal string
	FloatVal  float64
}

// Position is a source position, opaque beyond printing (see diag.Position).
type Position struct {
	File string
	Line int
	Col  int
}

// Param describes one function parameter as seen by the Lowerer.
type Param struct {
	Name string
	Type types.ID
}

// FuncDecl is the root-declaration view the Lowerer walks.
type FuncDecl struct {
	Name    string
	Params  []Param
	Ret     types.ID
	Body    NodeID // KindBlock, or 0 for an extern declaration
	IsExtern bool
	Pos     Position
}

// Tree is the full external-AST contract. An implementation is produced by
// the (out-of-scope) parser/checker and handed to the Lowerer already type
// checked: TypeOf must return a resolved, registered type for every node
// the Lowerer asks about.
type Tree interface {
	// Decls returns every root declaration, in source order.
	Decls() []DeclID
	// Func resolves a root declaration to its function view. ok is false
	// if decl does not name a function (e.g. a struct or enum decl).
	Func(decl DeclID) (FuncDecl, bool)
	// Node retrieves a node by id.
	Node(id NodeID) Node
	// TypeOf returns the checker-cached type of a node, or false if the
	// node carries no static type (e.g. a statement).
	TypeOf(id NodeID) (types.ID, bool)
}
