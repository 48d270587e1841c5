package ir

import (
	"math"

	"github.com/cotlang/cotc/internal/astiface"
	"github.com/cotlang/cotc/internal/diag"
	"github.com/cotlang/cotc/internal/types"
)

// Lowerer translates one typed AST (astiface.Tree) into a Module of
// named-local IR functions (spec §4.1). It never retries: any
// inconsistency it cannot resolve against the type registry is reported as
// a fatal UnsupportedConstruct or MissingType error.
type Lowerer struct {
	reg  *types.Registry
	rep  *diag.Reporter
	tree astiface.Tree

	fn     *Func
	blocks []blockBuf
	cur    int

	scopes []map[string]int // name -> local index, innermost last

	deferStack []astiface.NodeID
	loopBreak  []int
	loopCont   []int
	loopFloor  []int

	stringIndex map[string]int
}

type blockBuf struct {
	nodes []Node
	done  bool
}

// NewLowerer builds a Lowerer over a type registry, error reporter, and
// typed AST.
func NewLowerer(reg *types.Registry, rep *diag.Reporter, tree astiface.Tree) *Lowerer {
	return &Lowerer{reg: reg, rep: rep, tree: tree}
}

// Lower translates every root declaration into IR, producing one Module.
// Extern declarations produce a body-less Func (spec §4.1).
func (l *Lowerer) Lower() *Module {
	mod := &Module{}
	for _, d := range l.tree.Decls() {
		fd, ok := l.tree.Func(d)
		if !ok {
			continue
		}
		mod.Funcs = append(mod.Funcs, l.lowerFunc(fd))
	}
	return mod
}

func (l *Lowerer) lowerFunc(fd astiface.FuncDecl) *Func {
	l.fn = &Func{Name: fd.Name, Extern: fd.IsExtern}
	l.blocks = nil
	l.cur = 0
	l.scopes = nil
	l.deferStack = nil
	l.loopBreak = nil
	l.loopCont = nil
	l.loopFloor = nil
	l.stringIndex = make(map[string]int)

	for _, p := range fd.Params {
		l.fn.Params = append(l.fn.Params, Local{Name: p.Name, Type: p.Type, Size: l.reg.SizeOf(p.Type), IsParam: true})
	}
	l.fn.Locals = append(l.fn.Locals, l.fn.Params...)

	if fd.IsExtern {
		return l.fn
	}

	l.pushScope()
	for i, p := range fd.Params {
		l.scopes[0][p.Name] = i
	}
	l.newBlock() // entry block, id 0

	l.compileBlockStmts(fd.Body)
	if !l.blocks[l.cur].done {
		l.emitDefersDownTo(0)
		l.terminate(Node{Op: OpReturn})
	}
	l.popScope()

	return l.finish()
}

// finish flattens the per-block node buffers into Func.Nodes, rewriting
// block-local argument indices to global positions.
func (l *Lowerer) finish() *Func {
	starts := make([]int, len(l.blocks))
	pos := 0
	for i, b := range l.blocks {
		starts[i] = pos
		pos += len(b.nodes)
	}
	l.fn.Nodes = make([]Node, 0, pos)
	l.fn.Blocks = make([]Block, len(l.blocks))
	for i, b := range l.blocks {
		for _, n := range b.nodes {
			for j := range n.Args {
				n.Args[j] += starts[i]
			}
			l.fn.Nodes = append(l.fn.Nodes, n)
		}
		l.fn.Blocks[i] = Block{ID: i, Start: starts[i], End: starts[i] + len(b.nodes)}
	}
	return l.fn
}

func (l *Lowerer) newBlock() int {
	id := len(l.blocks)
	l.blocks = append(l.blocks, blockBuf{})
	return id
}

// emit appends a node to the current block and returns its block-local
// position (rewritten to a global position by finish). Nodes emitted after
// the block has already been given a terminator are dropped: that source
// is unreachable and the spec requires exactly one terminator per block.
func (l *Lowerer) emit(n Node) int {
	b := &l.blocks[l.cur]
	if b.done {
		return -1
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, n)
	return idx
}

func (l *Lowerer) terminate(n Node) {
	b := &l.blocks[l.cur]
	if b.done {
		return
	}
	b.nodes = append(b.nodes, n)
	b.done = true
}

func (l *Lowerer) pushScope() {
	l.scopes = append(l.scopes, make(map[string]int))
}

func (l *Lowerer) addLocal(name string, t types.ID) int {
	idx := len(l.fn.Locals)
	l.fn.Locals = append(l.fn.Locals, Local{Name: name, Type: t, Size: l.reg.SizeOf(t)})
	if len(l.scopes) > 0 {
		l.scopes[len(l.scopes)-1][name] = idx
	}
	return idx
}

func (l *Lowerer) lookupLocal(name string) (int, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if idx, ok := l.scopes[i][name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func (l *Lowerer) internString(s string) int {
	if idx, ok := l.stringIndex[s]; ok {
		return idx
	}
	idx := len(l.fn.Strings)
	l.fn.Strings = append(l.fn.Strings, s)
	l.stringIndex[s] = idx
	return idx
}

func (l *Lowerer) typeOf(id astiface.NodeID) types.ID {
	t, ok := l.tree.TypeOf(id)
	if !ok {
		l.rep.Fatalf(diag.KindSource, "lower", l.fn.Name, "MissingType for node %d", id)
	}
	return t
}

// emitDefersDownTo runs every deferred expression pushed at index >= floor,
// in LIFO order, without mutating the defer stack: other exit paths
// through the same enclosing scopes (e.g. the block's own normal-end path
// after an inner `if` branch returns) still need to see it. The stack is
// only actually trimmed when its owning scope is popped.
func (l *Lowerer) emitDefersDownTo(floor int) {
	for i := len(l.deferStack) - 1; i >= floor; i-- {
		l.compileExpr(l.deferStack[i])
	}
}

// === statements ===

// compileBlockStmts compiles a KindBlock node's statements into the
// current block, in a fresh scope, running that scope's own defers on
// normal fall-through (spec §4.1).
func (l *Lowerer) compileBlockStmts(id astiface.NodeID) {
	node := l.tree.Node(id)
	l.pushScope()
	floor := len(l.deferStack)
	for _, stmtID := range node.Children {
		if l.blocks[l.cur].done {
			break
		}
		l.compileStmt(stmtID)
	}
	if !l.blocks[l.cur].done {
		l.emitDefersDownTo(floor)
	}
	if len(l.deferStack) > floor {
		l.deferStack = l.deferStack[:floor]
	}
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *Lowerer) compileStmt(id astiface.NodeID) {
	node := l.tree.Node(id)
	switch node.Kind {
	case astiface.KindVarDecl:
		l.compileVarDecl(id, node)
	case astiface.KindAssign:
		l.compileAssign(node)
	case astiface.KindCompoundAssign:
		l.compileCompoundAssign(node)
	case astiface.KindIf:
		l.compileIf(node)
	case astiface.KindWhile:
		l.compileWhile(node)
	case astiface.KindForIn:
		l.compileForIn(id, node)
	case astiface.KindReturn:
		l.compileReturn(node)
	case astiface.KindBreak:
		l.compileBreak()
	case astiface.KindContinue:
		l.compileContinue()
	case astiface.KindDefer:
		l.deferStack = append(l.deferStack, node.Children[0])
	case astiface.KindExprStmt:
		l.compileExpr(node.Children[0])
	case astiface.KindBlock:
		l.compileBlockStmts(id)
	default:
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "statement kind %d", node.Kind)
	}
}

func (l *Lowerer) compileVarDecl(id astiface.NodeID, node astiface.Node) {
	t := l.typeOf(id)
	idx := l.addLocal(node.Name, t)
	if len(node.Children) == 0 {
		return
	}
	init := node.Children[0]
	initNode := l.tree.Node(init)
	if initNode.Kind == astiface.KindStructInit || initNode.Kind == astiface.KindArrayInit {
		l.compileAggregateInitInto(idx, t, initNode)
		return
	}
	if t == l.reg.String {
		l.storeStringInto(l.localAddr(idx), init)
		return
	}
	val := l.compileExpr(init)
	l.emit(Node{Op: OpStoreLocal, Type: t, Aux: int64(idx), Args: []int{val}})
}

// compileAggregateInitInto lowers a struct/array composite literal
// directly into field-by-field (or element-by-element) stores against the
// destination local's address: per spec §4.1 this never materializes an
// intermediate aggregate SSA value.
func (l *Lowerer) compileAggregateInitInto(localIdx int, t types.ID, init astiface.Node) {
	base := l.localAddr(localIdx)
	switch l.reg.Kind(t) {
	case types.KindStruct:
		fields := l.reg.Fields(t)
		for i, fieldInit := range init.Children {
			if i >= len(fields) {
				break
			}
			f := fields[i]
			if f.Type == l.reg.String {
				l.storeStringInto(l.emit1(Node{Op: OpOffsetPtr, Type: l.reg.MakePointer(f.Type), Args: []int{base}, Aux: int64(f.Offset)}), fieldInit)
				continue
			}
			val := l.compileExpr(fieldInit)
			l.emit(Node{Op: OpFieldStore, Type: f.Type, Args: []int{base, val}, Aux: int64(f.Offset)})
		}
	case types.KindArray:
		elem := l.reg.ElementOf(t)
		elemSize := l.reg.SizeOf(elem)
		for i, elemInit := range init.Children {
			val := l.compileExpr(elemInit)
			addr := l.emit1(Node{Op: OpOffsetPtr, Type: l.reg.MakePointer(elem), Args: []int{base}, Aux: int64(i * elemSize)})
			l.emit(Node{Op: OpStore, Args: []int{addr, val}})
		}
	default:
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "composite literal for non-aggregate type")
	}
}

// storeStringInto expands `dst = <string expr>` into the two (ptr, len)
// loads-and-stores mandated by spec §4.1, rather than a single whole-value
// store_local.
func (l *Lowerer) storeStringInto(destAddr int, srcExprID astiface.NodeID) {
	srcVal := l.compileExpr(srcExprID)
	ptr := l.emit1(Node{Op: OpStringPtr, Type: l.reg.U8, Args: []int{srcVal}})
	ln := l.emit1(Node{Op: OpStringLen, Type: l.reg.I64, Args: []int{srcVal}})
	ptrAddr := l.emit1(Node{Op: OpOffsetPtr, Args: []int{destAddr}, Aux: 0})
	lenAddr := l.emit1(Node{Op: OpOffsetPtr, Args: []int{destAddr}, Aux: 8})
	l.emit(Node{Op: OpStore, Args: []int{ptrAddr, ptr}})
	l.emit(Node{Op: OpStore, Args: []int{lenAddr, ln}})
}

func (l *Lowerer) localAddr(idx int) int {
	return l.emit1(Node{Op: OpLocalAddr, Type: l.reg.MakePointer(l.fn.Locals[idx].Type), Aux: int64(idx)})
}

// emit1 is emit for nodes that always produce a value used immediately.
func (l *Lowerer) emit1(n Node) int { return l.emit(n) }

func (l *Lowerer) compileAssign(node astiface.Node) {
	lhsID, rhsID := node.Children[0], node.Children[1]
	lhs := l.tree.Node(lhsID)
	lt := l.typeOf(lhsID)

	if lt == l.reg.String {
		l.storeStringInto(l.addrOf(lhsID), rhsID)
		return
	}

	if lhs.Kind == astiface.KindIdent {
		if idx, ok := l.lookupLocal(lhs.Name); ok {
			val := l.compileExpr(rhsID)
			l.emit(Node{Op: OpStoreLocal, Type: lt, Aux: int64(idx), Args: []int{val}})
			return
		}
	}

	val := l.compileExpr(rhsID)
	addr := l.addrOf(lhsID)
	l.emit(Node{Op: OpStore, Type: lt, Args: []int{addr, val}})
}

func (l *Lowerer) compileCompoundAssign(node astiface.Node) {
	lhsID, rhsID := node.Children[0], node.Children[1]
	lt := l.typeOf(lhsID)
	cur := l.compileExpr(lhsID)
	rhs := l.compileExpr(rhsID)
	op := mapBinOp(node.Name)
	result := l.emit1(Node{Op: OpBinary, Type: lt, Aux: int64(op), Args: []int{cur, rhs}})

	lhs := l.tree.Node(lhsID)
	if lhs.Kind == astiface.KindIdent {
		if idx, ok := l.lookupLocal(lhs.Name); ok {
			l.emit(Node{Op: OpStoreLocal, Type: lt, Aux: int64(idx), Args: []int{result}})
			return
		}
	}
	addr := l.addrOf(lhsID)
	l.emit(Node{Op: OpStore, Type: lt, Args: []int{addr, result}})
}

// compileIf allocates the merge block lazily: when both arms terminate
// (e.g. every arm returns) the merge point is never reached by a jump and
// is never created, avoiding an unterminated dead block (spec §3.2: every
// block ends with exactly one terminator). Code following the if still
// needs a live current block to emit into, so a fresh one is opened for
// it even when unreachable; that block stays in the function with no
// predecessors, since no later pass removes unreachable blocks.
func (l *Lowerer) compileIf(node astiface.Node) {
	cond := l.compileExpr(node.Children[0])
	thenID := node.Children[1]
	var elseID astiface.NodeID
	if len(node.Children) > 2 {
		elseID = node.Children[2]
	}

	thenBlk := l.newBlock()
	var elseBlk int
	if elseID != 0 {
		elseBlk = l.newBlock()
	}

	mergeBlk := -1
	ensureMerge := func() int {
		if mergeBlk == -1 {
			mergeBlk = l.newBlock()
		}
		return mergeBlk
	}
	if elseID == 0 {
		elseBlk = ensureMerge()
	}

	l.terminate(Node{Op: OpBranch, Args: []int{cond}, Targets: [2]int{thenBlk, elseBlk}})

	reachable := elseID == 0 // the implicit-else path always reaches merge

	l.cur = thenBlk
	l.compileBlockStmts(thenID)
	if !l.blocks[l.cur].done {
		l.terminate(Node{Op: OpJump, Targets: [2]int{ensureMerge()}})
		reachable = true
	}

	if elseID != 0 {
		l.cur = elseBlk
		l.compileBlockStmts(elseID)
		if !l.blocks[l.cur].done {
			l.terminate(Node{Op: OpJump, Targets: [2]int{ensureMerge()}})
			reachable = true
		}
	}

	if reachable {
		l.cur = ensureMerge()
	} else {
		l.cur = l.newBlock()
	}
}

func (l *Lowerer) compileWhile(node astiface.Node) {
	condBlk := l.newBlock()
	bodyBlk := l.newBlock()
	exitBlk := l.newBlock()

	l.terminate(Node{Op: OpJump, Targets: [2]int{condBlk}})

	l.cur = condBlk
	cond := l.compileExpr(node.Children[0])
	l.terminate(Node{Op: OpBranch, Args: []int{cond}, Targets: [2]int{bodyBlk, exitBlk}})

	l.loopBreak = append(l.loopBreak, exitBlk)
	l.loopCont = append(l.loopCont, condBlk)
	l.loopFloor = append(l.loopFloor, len(l.deferStack))

	l.cur = bodyBlk
	l.compileBlockStmts(node.Children[1])
	if !l.blocks[l.cur].done {
		l.terminate(Node{Op: OpJump, Targets: [2]int{condBlk}})
	}

	l.loopBreak = l.loopBreak[:len(l.loopBreak)-1]
	l.loopCont = l.loopCont[:len(l.loopCont)-1]
	l.loopFloor = l.loopFloor[:len(l.loopFloor)-1]

	l.cur = exitBlk
}

// compileForIn desugars `for x in iter { body }` into idx/len/body/incr
// blocks (spec §4.1), using the compile-time array length for arrays and a
// runtime slice_len for slices.
func (l *Lowerer) compileForIn(id astiface.NodeID, node astiface.Node) {
	collID := node.Children[0]
	bodyID := node.Children[1]
	collType := l.typeOf(collID)

	idxLocal := l.addLocal("$idx"+itoa(int(id)), l.reg.I64)
	zero := l.emit1(Node{Op: OpConstInt, Type: l.reg.I64})
	l.emit(Node{Op: OpStoreLocal, Aux: int64(idxLocal), Args: []int{zero}})

	condBlk := l.newBlock()
	bodyBlk := l.newBlock()
	incrBlk := l.newBlock()
	exitBlk := l.newBlock()
	l.terminate(Node{Op: OpJump, Targets: [2]int{condBlk}})

	l.cur = condBlk
	idxVal := l.emit1(Node{Op: OpLoadLocal, Type: l.reg.I64, Aux: int64(idxLocal)})
	var lenVal int
	if l.reg.Kind(collType) == types.KindArray {
		lenVal = l.emit1(Node{Op: OpConstInt, Type: l.reg.I64, Aux: int64(l.reg.ArrayLen(collType))})
	} else {
		collVal := l.compileExpr(collID)
		lenVal = l.emit1(Node{Op: OpSliceLen, Type: l.reg.I64, Args: []int{collVal}})
	}
	cond := l.emit1(Node{Op: OpCompare, Type: l.reg.Bool, Aux: int64(CmpLt), Args: []int{idxVal, lenVal}})
	l.terminate(Node{Op: OpBranch, Args: []int{cond}, Targets: [2]int{bodyBlk, exitBlk}})

	l.loopBreak = append(l.loopBreak, exitBlk)
	l.loopCont = append(l.loopCont, incrBlk)
	l.loopFloor = append(l.loopFloor, len(l.deferStack))

	l.cur = bodyBlk
	elem := l.reg.ElementOf(collType)
	elemSize := l.reg.SizeOf(elem)
	base := l.addrOf(collID)
	idxVal2 := l.emit1(Node{Op: OpLoadLocal, Type: l.reg.I64, Aux: int64(idxLocal)})
	elemAddr := l.emit1(Node{Op: OpIndexPtr, Type: l.reg.MakePointer(elem), Args: []int{base, idxVal2}, Aux: int64(elemSize)})
	elemLocal := l.addLocal(elemVarName(node), elem)
	loaded := l.emit1(Node{Op: OpLoad, Type: elem, Args: []int{elemAddr}})
	l.emit(Node{Op: OpStoreLocal, Aux: int64(elemLocal), Args: []int{loaded}})
	l.compileBlockStmts(bodyID)
	if !l.blocks[l.cur].done {
		l.terminate(Node{Op: OpJump, Targets: [2]int{incrBlk}})
	}

	l.loopBreak = l.loopBreak[:len(l.loopBreak)-1]
	l.loopCont = l.loopCont[:len(l.loopCont)-1]
	l.loopFloor = l.loopFloor[:len(l.loopFloor)-1]

	l.cur = incrBlk
	cur := l.emit1(Node{Op: OpLoadLocal, Type: l.reg.I64, Aux: int64(idxLocal)})
	one := l.emit1(Node{Op: OpConstInt, Type: l.reg.I64, Aux: 1})
	next := l.emit1(Node{Op: OpBinary, Type: l.reg.I64, Aux: int64(BinAdd), Args: []int{cur, one}})
	l.emit(Node{Op: OpStoreLocal, Aux: int64(idxLocal), Args: []int{next}})
	l.terminate(Node{Op: OpJump, Targets: [2]int{condBlk}})

	l.cur = exitBlk
}

func elemVarName(node astiface.Node) string {
	if node.Name != "" {
		return node.Name
	}
	return "$elem"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (l *Lowerer) compileReturn(node astiface.Node) {
	var args []int
	if len(node.Children) > 0 {
		// The return value is evaluated before defers run (spec §4.1).
		args = []int{l.compileExpr(node.Children[0])}
	}
	l.emitDefersDownTo(0)
	l.terminate(Node{Op: OpReturn, Args: args})
}

func (l *Lowerer) compileBreak() {
	if len(l.loopBreak) == 0 {
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "break outside loop")
	}
	l.emitDefersDownTo(l.loopFloor[len(l.loopFloor)-1])
	l.terminate(Node{Op: OpJump, Targets: [2]int{l.loopBreak[len(l.loopBreak)-1]}})
}

func (l *Lowerer) compileContinue() {
	if len(l.loopCont) == 0 {
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "continue outside loop")
	}
	l.emitDefersDownTo(l.loopFloor[len(l.loopFloor)-1])
	l.terminate(Node{Op: OpJump, Targets: [2]int{l.loopCont[len(l.loopCont)-1]}})
}

// === expressions ===

func (l *Lowerer) compileExpr(id astiface.NodeID) int {
	node := l.tree.Node(id)
	t, _ := l.tree.TypeOf(id)
	switch node.Kind {
	case astiface.KindIntLit:
		return l.emit1(Node{Op: OpConstInt, Type: t, Aux: node.IntVal})
	case astiface.KindBoolLit:
		v := int64(0)
		if node.BoolVal {
			v = 1
		}
		return l.emit1(Node{Op: OpConstBool, Type: l.reg.Bool, Aux: v})
	case astiface.KindNilLit:
		return l.emit1(Node{Op: OpConstNil, Type: t})
	case astiface.KindStringLit:
		idx := l.internString(node.StringVal)
		return l.emit1(Node{Op: OpConstString, Type: l.reg.String, Aux: int64(idx)})
	case astiface.KindFloatLit:
		return l.emit1(Node{Op: OpConstFloat, Type: t, Aux: int64(math.Float64bits(node.FloatVal))})
	case astiface.KindIdent:
		if idx, ok := l.lookupLocal(node.Name); ok {
			return l.emit1(Node{Op: OpLoadLocal, Type: l.fn.Locals[idx].Type, Aux: int64(idx)})
		}
		addr := l.emit1(Node{Op: OpGlobalAddr, Type: l.reg.MakePointer(t), AuxStr: node.Name})
		l.addGlobal(node.Name)
		return l.emit1(Node{Op: OpLoad, Type: t, Args: []int{addr}})
	case astiface.KindBinary:
		x := l.compileExpr(node.Children[0])
		y := l.compileExpr(node.Children[1])
		return l.emit1(Node{Op: OpBinary, Type: t, Aux: int64(mapBinOp(node.Name)), Args: []int{x, y}})
	case astiface.KindCompare:
		x := l.compileExpr(node.Children[0])
		y := l.compileExpr(node.Children[1])
		return l.emit1(Node{Op: OpCompare, Type: l.reg.Bool, Aux: int64(mapCmpOp(node.Name)), Args: []int{x, y}})
	case astiface.KindUnary:
		x := l.compileExpr(node.Children[0])
		return l.emit1(Node{Op: OpUnary, Type: t, Aux: int64(mapUnOp(node.Name)), Args: []int{x}})
	case astiface.KindCall:
		args := make([]int, len(node.Children))
		for i, c := range node.Children {
			args[i] = l.compileExpr(c)
		}
		return l.emit1(Node{Op: OpCall, Type: t, AuxStr: node.Name, Args: args})
	case astiface.KindIndex:
		base := l.addrOf(node.Children[0])
		idxv := l.compileExpr(node.Children[1])
		elemSize := l.reg.SizeOf(t)
		addr := l.emit1(Node{Op: OpIndexPtr, Type: l.reg.MakePointer(t), Args: []int{base, idxv}, Aux: int64(elemSize)})
		return l.emit1(Node{Op: OpLoad, Type: t, Args: []int{addr}})
	case astiface.KindField:
		base := l.addrOf(node.Children[0])
		_, offset, ft, ok := l.reg.FieldOf(l.typeOf(node.Children[0]), node.Name)
		if !ok {
			l.rep.Fatalf(diag.KindSource, "lower", l.fn.Name, "unknown field %q", node.Name)
		}
		return l.emit1(Node{Op: OpFieldAccess, Type: ft, Args: []int{base}, Aux: int64(offset)})
	case astiface.KindSelect:
		cond := l.compileExpr(node.Children[0])
		thenV := l.compileExpr(node.Children[1])
		elseV := l.compileExpr(node.Children[2])
		return l.emit1(Node{Op: OpSelect, Type: t, Args: []int{cond, thenV, elseV}})
	case astiface.KindAddrOf:
		return l.addrOf(node.Children[0])
	case astiface.KindDeref:
		addr := l.compileExpr(node.Children[0])
		return l.emit1(Node{Op: OpLoad, Type: t, Args: []int{addr}})
	case astiface.KindStructInit, astiface.KindArrayInit:
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "composite literal used outside a variable initializer")
		return -1
	default:
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "expression kind %d", node.Kind)
		return -1
	}
}

func (l *Lowerer) addGlobal(name string) {
	for _, g := range l.fn.Globals {
		if g == name {
			return
		}
	}
	l.fn.Globals = append(l.fn.Globals, name)
}

// addrOf computes the address of an lvalue expression.
func (l *Lowerer) addrOf(id astiface.NodeID) int {
	node := l.tree.Node(id)
	switch node.Kind {
	case astiface.KindIdent:
		if idx, ok := l.lookupLocal(node.Name); ok {
			return l.emit1(Node{Op: OpLocalAddr, Type: l.reg.MakePointer(l.fn.Locals[idx].Type), Aux: int64(idx)})
		}
		t, _ := l.tree.TypeOf(id)
		addr := l.emit1(Node{Op: OpGlobalAddr, Type: l.reg.MakePointer(t), AuxStr: node.Name})
		l.addGlobal(node.Name)
		return addr
	case astiface.KindField:
		base := l.addrOf(node.Children[0])
		_, offset, ft, ok := l.reg.FieldOf(l.typeOf(node.Children[0]), node.Name)
		if !ok {
			l.rep.Fatalf(diag.KindSource, "lower", l.fn.Name, "unknown field %q", node.Name)
		}
		return l.emit1(Node{Op: OpOffsetPtr, Type: l.reg.MakePointer(ft), Args: []int{base}, Aux: int64(offset)})
	case astiface.KindIndex:
		base := l.addrOf(node.Children[0])
		idxv := l.compileExpr(node.Children[1])
		t, _ := l.tree.TypeOf(id)
		elemSize := l.reg.SizeOf(t)
		return l.emit1(Node{Op: OpIndexPtr, Type: l.reg.MakePointer(t), Args: []int{base, idxv}, Aux: int64(elemSize)})
	case astiface.KindDeref:
		return l.compileExpr(node.Children[0])
	default:
		l.rep.Fatalf(diag.KindUnsupportedConstruct, "lower", l.fn.Name, "expression is not addressable (kind %d)", node.Kind)
		return -1
	}
}

func mapBinOp(name string) BinOp {
	switch name {
	case "+":
		return BinAdd
	case "-":
		return BinSub
	case "*":
		return BinMul
	case "/":
		return BinDiv
	case "%":
		return BinMod
	case "&":
		return BinAnd
	case "|":
		return BinOr
	case "^":
		return BinXor
	case "<<":
		return BinShl
	case ">>":
		return BinShr
	default:
		return BinAdd
	}
}

func mapCmpOp(name string) CmpOp {
	switch name {
	case "==":
		return CmpEq
	case "!=":
		return CmpNe
	case "<":
		return CmpLt
	case "<=":
		return CmpLe
	case ">":
		return CmpGt
	case ">=":
		return CmpGe
	default:
		return CmpEq
	}
}

func mapUnOp(name string) UnOp {
	if name == "!" {
		return UnNot
	}
	return UnNeg
}

