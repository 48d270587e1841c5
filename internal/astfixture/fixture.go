// Package astfixture is a small in-memory implementation of astiface.Tree.
// It exists purely so the Lowerer has something concrete to consume in
// tests (this repository has no CLI driver); it is not a parser and never
// will be — parsing and checking stay out of scope
// (spec §1).
package astfixture

import (
	"github.com/cotlang/cotc/internal/astiface"
	"github.com/cotlang/cotc/internal/types"
)

// Builder accumulates nodes and root declarations for one Tree.
type Builder struct {
	reg   *types.Registry
	nodes []astiface.Node // index 0 unused; NodeID 0 is invalid
	decls []astiface.DeclID
	funcs map[astiface.DeclID]astiface.FuncDecl
	tys   map[astiface.NodeID]types.ID
}

// NewBuilder starts a fixture against the given type registry.
func NewBuilder(reg *types.Registry) *Builder {
	return &Builder{
		reg:   reg,
		nodes: make([]astiface.Node, 1),
		funcs: make(map[astiface.DeclID]astiface.FuncDecl),
		tys:   make(map[astiface.NodeID]types.ID),
	}
}

func (b *Builder) add(n astiface.Node, t types.ID) astiface.NodeID {
	id := astiface.NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)
	b.tys[id] = t
	return id
}

// Typed overrides the type recorded for id with t and returns id (test
// helper).
func (b *Builder) Typed(id astiface.NodeID, t types.ID) astiface.NodeID {
	b.tys[id] = t
	return id
}

// --- expressions ---

func (b *Builder) Int(v int64) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindIntLit, IntVal: v}, b.reg.I64)
}

func (b *Builder) Bool(v bool) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindBoolLit, BoolVal: v}, b.reg.Bool)
}

func (b *Builder) Str(v string) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindStringLit, StringVal: v}, b.reg.String)
}

func (b *Builder) Ident(name string, t types.ID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindIdent, Name: name}, t)
}

func (b *Builder) Binary(op string, x, y astiface.NodeID, t types.ID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindBinary, Name: op, Children: []astiface.NodeID{x, y}}, t)
}

func (b *Builder) Compare(op string, x, y astiface.NodeID, reg *types.Registry) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindCompare, Name: op, Children: []astiface.NodeID{x, y}}, reg.Bool)
}

func (b *Builder) Call(name string, t types.ID, args ...astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindCall, Name: name, Children: args}, t)
}

func (b *Builder) Field(recv astiface.NodeID, name string, t types.ID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindField, Name: name, Children: []astiface.NodeID{recv}}, t)
}

// --- statements ---

func (b *Builder) Block(stmts ...astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindBlock, Children: stmts}, 0)
}

func (b *Builder) VarDecl(name string, t types.ID, init astiface.NodeID) astiface.NodeID {
	n := astiface.Node{Kind: astiface.KindVarDecl, Name: name}
	if init != 0 {
		n.Children = []astiface.NodeID{init}
	}
	return b.add(n, t)
}

func (b *Builder) Assign(lhs, rhs astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindAssign, Children: []astiface.NodeID{lhs, rhs}}, 0)
}

func (b *Builder) CompoundAssign(op string, lhs, rhs astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindCompoundAssign, Name: op, Children: []astiface.NodeID{lhs, rhs}}, 0)
}

func (b *Builder) If(cond, then, els astiface.NodeID) astiface.NodeID {
	kids := []astiface.NodeID{cond, then}
	if els != 0 {
		kids = append(kids, els)
	}
	return b.add(astiface.Node{Kind: astiface.KindIf, Children: kids}, 0)
}

func (b *Builder) While(cond, body astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindWhile, Children: []astiface.NodeID{cond, body}}, 0)
}

func (b *Builder) Return(val astiface.NodeID) astiface.NodeID {
	n := astiface.Node{Kind: astiface.KindReturn}
	if val != 0 {
		n.Children = []astiface.NodeID{val}
	}
	return b.add(n, 0)
}

func (b *Builder) ExprStmt(e astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindExprStmt, Children: []astiface.NodeID{e}}, 0)
}

func (b *Builder) Break() astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindBreak}, 0)
}

func (b *Builder) Continue() astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindContinue}, 0)
}

func (b *Builder) Defer(e astiface.NodeID) astiface.NodeID {
	return b.add(astiface.Node{Kind: astiface.KindDefer, Children: []astiface.NodeID{e}}, 0)
}

// --- declarations ---

// Func registers a root function declaration with the given body, built
// from the statement nodes added via the statement helpers above.
func (b *Builder) Func(name string, params []astiface.Param, ret types.ID, body astiface.NodeID) astiface.DeclID {
	d := astiface.DeclID(len(b.decls) + 1)
	b.decls = append(b.decls, d)
	b.funcs[d] = astiface.FuncDecl{Name: name, Params: params, Ret: ret, Body: body}
	return d
}

// Extern registers a root declaration with no body (spec §4.1: "extern
// declarations produce only undefined external symbols; no IR body").
func (b *Builder) Extern(name string, params []astiface.Param, ret types.ID) astiface.DeclID {
	d := astiface.DeclID(len(b.decls) + 1)
	b.decls = append(b.decls, d)
	b.funcs[d] = astiface.FuncDecl{Name: name, Params: params, Ret: ret, IsExtern: true}
	return d
}

// Build finalizes the fixture into an astiface.Tree.
func (b *Builder) Build() astiface.Tree {
	return &tree{nodes: b.nodes, decls: b.decls, funcs: b.funcs, tys: b.tys}
}

type tree struct {
	nodes []astiface.Node
	decls []astiface.DeclID
	funcs map[astiface.DeclID]astiface.FuncDecl
	tys   map[astiface.NodeID]types.ID
}

func (t *tree) Decls() []astiface.DeclID { return t.decls }

func (t *tree) Func(d astiface.DeclID) (astiface.FuncDecl, bool) {
	f, ok := t.funcs[d]
	return f, ok
}

func (t *tree) Node(id astiface.NodeID) astiface.Node { return t.nodes[id] }

func (t *tree) TypeOf(id astiface.NodeID) (types.ID, bool) {
	ty, ok := t.tys[id]
	if !ok || (ty == 0 && id != 0) {
		// Zero is a legitimate type id (KindVoid) only for statement nodes
		// that were never assigned a type; distinguish via presence in map.
		_, present := t.tys[id]
		return ty, present
	}
	return ty, true
}
