// Package compiler walks a parsed AST once and emits a chunk.Chunk: bytecode,
// a constant pool, and a per-byte line map, tracking a compile-time stack of
// declared locals and their lexical scope depths.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/songforthemute/zua/ast"
	"github.com/songforthemute/zua/chunk"
	"github.com/songforthemute/zua/token"
	"github.com/songforthemute/zua/value"
)

// ErrorKind classifies a compile-time failure.
type ErrorKind int

const (
	_ ErrorKind = iota
	TooManyConstants
	TooManyLocals
	InvalidJumpOffset
)

func (k ErrorKind) String() string {
	switch k {
	case TooManyConstants:
		return "TooManyConstants"
	case TooManyLocals:
		return "TooManyLocals"
	case InvalidJumpOffset:
		return "InvalidJumpOffset"
	default:
		return "UnknownCompileError"
	}
}

// Error is returned by Compile on the first compile-time failure.
type Error struct {
	Kind   ErrorKind
	Line   int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at line %d: %s", e.Kind, e.Line, e.Detail)
	}
	return fmt.Sprintf("%s at line %d", e.Kind, e.Line)
}

// maxLocals bounds the local stack: slot indices are encoded as u8.
const maxLocals = 256

type local struct {
	name  string
	depth int
}

// Compile walks block once and returns the emitted chunk, or the first
// compile-time error.
func Compile(block ast.Block) (*chunk.Chunk, error) {
	c := &compiler{chunk: &chunk.Chunk{}}
	if err := c.block(block); err != nil {
		return nil, err
	}
	c.chunk.WriteOp(chunk.OpReturn, lastLine(block))
	return c.chunk, nil
}

func lastLine(b ast.Block) int {
	if len(b.Stmts) == 0 {
		return 0
	}
	return stmtLine(b.Stmts[len(b.Stmts)-1])
}

type loopState struct {
	start      int
	breakSites []int
}

type compiler struct {
	chunk *chunk.Chunk
	locals []local
	depth  int
	loops  []*loopState
}

func (c *compiler) errorf(kind ErrorKind, line int, format string, args ...interface{}) error {
	return &Error{Kind: kind, Line: line, Detail: fmt.Sprintf(format, args...)}
}

// ---- scopes and locals ----

func (c *compiler) beginScope() { c.depth++ }

func (c *compiler) endScope(line int) {
	c.depth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.depth {
		c.locals = c.locals[:len(c.locals)-1]
		c.chunk.WriteOp(chunk.OpPop, line)
	}
}

func (c *compiler) addLocal(name string, line int) (int, error) {
	if len(c.locals) >= maxLocals {
		return 0, c.errorf(TooManyLocals, line, "more than %d locals in scope", maxLocals)
	}
	c.locals = append(c.locals, local{name: name, depth: c.depth})
	return len(c.locals) - 1, nil
}

// resolveLocal scans from innermost outward, returning the slot of the
// first name match, or -1 if name is not a local.
func (c *compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

// ---- jump patching ----

func (c *compiler) emitJump(op chunk.Op, line int) int {
	c.chunk.WriteOp(op, line)
	c.chunk.WriteU16(0xFFFF, line)
	return len(c.chunk.Code) - 2
}

func (c *compiler) patchJump(offset int, line int) error {
	dest := len(c.chunk.Code)
	delta := dest - offset - 2
	if delta < 0 || delta > 0xFFFF {
		return c.errorf(InvalidJumpOffset, line, "jump offset %d out of range", delta)
	}
	c.chunk.PatchU16(offset, uint16(delta))
	return nil
}

func (c *compiler) emitLoop(loopStart int, line int) error {
	c.chunk.WriteOp(chunk.OpLoop, line)
	delta := (len(c.chunk.Code) + 2) - loopStart
	if delta < 0 || delta > 0xFFFF {
		return c.errorf(InvalidJumpOffset, line, "loop offset %d out of range", delta)
	}
	c.chunk.WriteU16(uint16(delta), line)
	return nil
}

// ---- constants ----

func (c *compiler) constant(v value.Value, line int) (uint16, error) {
	idx, err := c.chunk.AddConstant(v)
	if err != nil {
		return 0, c.errorf(TooManyConstants, line, "%v", err)
	}
	return idx, nil
}

// ---- statements ----

func (c *compiler) block(b ast.Block) error {
	for _, s := range b.Stmts {
		if err := c.statement(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) statement(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.LocalDecl:
		return c.localDecl(n)
	case *ast.Assign:
		return c.assign(n)
	case *ast.If:
		return c.ifStmt(n)
	case *ast.While:
		return c.whileStmt(n)
	case *ast.NumericFor:
		return c.numericFor(n)
	case *ast.Repeat:
		return c.repeatStmt(n)
	case *ast.Do:
		c.beginScope()
		if err := c.block(n.Body); err != nil {
			return err
		}
		c.endScope(n.Line)
		return nil
	case *ast.Return:
		return c.returnStmt(n)
	case *ast.Break:
		return c.breakStmt(n)
	case *ast.ExprStmt:
		return c.exprStmt(n)
	default:
		return c.errorf(0, 0, "unknown statement type %T", s)
	}
}

func (c *compiler) localDecl(n *ast.LocalDecl) error {
	for i, name := range n.Names {
		if i < len(n.Inits) {
			if err := c.expr(n.Inits[i]); err != nil {
				return err
			}
		} else {
			c.chunk.WriteOp(chunk.OpPushNil, n.Line)
		}
	}
	// Evaluate any initializers beyond the name count for their side effects,
	// then drop the extra values: names and inits may differ in length.
	for i := len(n.Names); i < len(n.Inits); i++ {
		if err := c.expr(n.Inits[i]); err != nil {
			return err
		}
		c.chunk.WriteOp(chunk.OpPop, n.Line)
	}
	for _, name := range n.Names {
		if _, err := c.addLocal(name, n.Line); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) assign(n *ast.Assign) error {
	for _, v := range n.Values {
		if err := c.expr(v); err != nil {
			return err
		}
	}
	// Targets and values are assumed matched in length; only a local
	// declaration tolerates a length mismatch.
	for i := len(n.Targets) - 1; i >= 0; i-- {
		if err := c.assignTarget(n.Targets[i], n.Line); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) assignTarget(target ast.Expr, line int) error {
	id, ok := target.(*ast.Ident)
	if !ok {
		return c.errorf(0, line, "invalid assignment target")
	}
	if slot := c.resolveLocal(id.Name); slot >= 0 {
		c.chunk.WriteOp(chunk.OpSetLocal, line)
		c.chunk.WriteByte(byte(slot), line)
		return nil
	}
	idx, err := c.constant(value.String(id.Name), line)
	if err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpSetGlobal, line)
	c.chunk.WriteU16(idx, line)
	return nil
}

func (c *compiler) ifStmt(n *ast.If) error {
	var endJumps []int
	for i, cond := range n.Conds {
		if err := c.expr(cond); err != nil {
			return err
		}
		falseJump := c.emitJump(chunk.OpJumpIfFalse, n.Line)
		c.chunk.WriteOp(chunk.OpPop, n.Line) // discard condition on true path
		c.beginScope()
		if err := c.block(n.Bodies[i]); err != nil {
			return err
		}
		c.endScope(n.Line)
		endJumps = append(endJumps, c.emitJump(chunk.OpJump, n.Line))
		if err := c.patchJump(falseJump, n.Line); err != nil {
			return err
		}
		c.chunk.WriteOp(chunk.OpPop, n.Line) // discard condition on false path
	}
	if n.Else != nil {
		c.beginScope()
		if err := c.block(*n.Else); err != nil {
			return err
		}
		c.endScope(n.Line)
	}
	for _, j := range endJumps {
		if err := c.patchJump(j, n.Line); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) pushLoop() *loopState {
	ls := &loopState{start: len(c.chunk.Code)}
	c.loops = append(c.loops, ls)
	return ls
}

func (c *compiler) popLoop(line int) error {
	ls := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, site := range ls.breakSites {
		if err := c.patchJump(site, line); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) whileStmt(n *ast.While) error {
	ls := c.pushLoop()
	if err := c.expr(n.Cond); err != nil {
		return err
	}
	exitJump := c.emitJump(chunk.OpJumpIfFalse, n.Line)
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	c.beginScope()
	if err := c.block(n.Body); err != nil {
		return err
	}
	c.endScope(n.Line)
	if err := c.emitLoop(ls.start, n.Line); err != nil {
		return err
	}
	if err := c.patchJump(exitJump, n.Line); err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	return c.popLoop(n.Line)
}

func (c *compiler) repeatStmt(n *ast.Repeat) error {
	ls := c.pushLoop()
	c.beginScope()
	if err := c.block(n.Body); err != nil {
		return err
	}
	// The condition is compiled before the scope closes: it may reference
	// locals declared in the body.
	if err := c.expr(n.Cond); err != nil {
		return err
	}
	exitJump := c.emitJump(chunk.OpJumpIfTrue, n.Line)
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	if err := c.emitLoop(ls.start, n.Line); err != nil {
		return err
	}
	if err := c.patchJump(exitJump, n.Line); err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	c.endScope(n.Line)
	return c.popLoop(n.Line)
}

// numericFor compiles `for name = start, limit [, step] do body end`. It
// allocates three internal slots (start, limit, step) plus the user-visible
// loop variable, and emits a runtime sign check on step to choose between
// `<=` (non-negative step) and `>=` (negative step), so the same bytecode
// shape works whether step is a constant or a computed expression.
func (c *compiler) numericFor(n *ast.NumericFor) error {
	c.beginScope()

	if err := c.expr(n.Start); err != nil {
		return err
	}
	startSlot, err := c.addLocal("", n.Line)
	if err != nil {
		return err
	}

	if err := c.expr(n.Limit); err != nil {
		return err
	}
	limitSlot, err := c.addLocal("", n.Line)
	if err != nil {
		return err
	}

	if n.Step != nil {
		if err := c.expr(n.Step); err != nil {
			return err
		}
	} else {
		idx, err := c.constant(value.Int(1), n.Line)
		if err != nil {
			return err
		}
		c.chunk.WriteOp(chunk.OpPushConstant, n.Line)
		c.chunk.WriteU16(idx, n.Line)
	}
	stepSlot, err := c.addLocal("", n.Line)
	if err != nil {
		return err
	}

	ls := c.pushLoop()

	c.emitGetLocal(startSlot, n.Line)
	c.emitGetLocal(limitSlot, n.Line)

	c.emitGetLocal(stepSlot, n.Line)
	zeroIdx, err := c.constant(value.Int(0), n.Line)
	if err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPushConstant, n.Line)
	c.chunk.WriteU16(zeroIdx, n.Line)
	c.chunk.WriteOp(chunk.OpLt, n.Line) // step < 0

	negJump := c.emitJump(chunk.OpJumpIfFalse, n.Line)
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	c.chunk.WriteOp(chunk.OpGe, n.Line) // negative step: start >= limit
	doneJump := c.emitJump(chunk.OpJump, n.Line)
	if err := c.patchJump(negJump, n.Line); err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	c.chunk.WriteOp(chunk.OpLe, n.Line) // non-negative step: start <= limit
	if err := c.patchJump(doneJump, n.Line); err != nil {
		return err
	}

	exitJump := c.emitJump(chunk.OpJumpIfFalse, n.Line)
	c.chunk.WriteOp(chunk.OpPop, n.Line)

	c.beginScope()
	c.emitGetLocal(startSlot, n.Line)
	if _, err := c.addLocal(n.Name, n.Line); err != nil {
		return err
	}
	if err := c.block(n.Body); err != nil {
		return err
	}
	c.endScope(n.Line)

	c.emitGetLocal(startSlot, n.Line)
	c.emitGetLocal(stepSlot, n.Line)
	c.chunk.WriteOp(chunk.OpAdd, n.Line)
	c.chunk.WriteOp(chunk.OpSetLocal, n.Line)
	c.chunk.WriteByte(byte(startSlot), n.Line)

	if err := c.emitLoop(ls.start, n.Line); err != nil {
		return err
	}
	if err := c.patchJump(exitJump, n.Line); err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	if err := c.popLoop(n.Line); err != nil {
		return err
	}

	c.endScope(n.Line)
	return nil
}

func (c *compiler) emitGetLocal(slot int, line int) {
	c.chunk.WriteOp(chunk.OpGetLocal, line)
	c.chunk.WriteByte(byte(slot), line)
}

func (c *compiler) returnStmt(n *ast.Return) error {
	if len(n.Values) > 0 {
		if err := c.expr(n.Values[0]); err != nil {
			return err
		}
	}
	c.chunk.WriteOp(chunk.OpReturn, n.Line)
	return nil
}

func (c *compiler) breakStmt(n *ast.Break) error {
	if len(c.loops) == 0 {
		return c.errorf(0, n.Line, "break outside of a loop")
	}
	site := c.emitJump(chunk.OpJump, n.Line)
	ls := c.loops[len(c.loops)-1]
	ls.breakSites = append(ls.breakSites, site)
	return nil
}

func (c *compiler) exprStmt(n *ast.ExprStmt) error {
	if call, ok := n.X.(*ast.Call); ok && isPrintCall(call) {
		return c.printCall(call)
	}
	if err := c.expr(n.X); err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	return nil
}

func isPrintCall(call *ast.Call) bool {
	id, ok := call.Callee.(*ast.Ident)
	return ok && id.Name == "print"
}

func (c *compiler) printCall(call *ast.Call) error {
	for _, a := range call.Args {
		if err := c.expr(a); err != nil {
			return err
		}
	}
	c.chunk.WriteOp(chunk.OpPrint, call.Line)
	c.chunk.WriteByte(byte(len(call.Args)), call.Line)
	return nil
}

// ---- expressions ----

func (c *compiler) expr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Literal:
		return c.literal(n)
	case *ast.Ident:
		return c.ident(n)
	case *ast.Unary:
		return c.unary(n)
	case *ast.Binary:
		return c.binary(n)
	case *ast.Call:
		return c.call(n)
	default:
		return c.errorf(0, 0, "unknown expression type %T", e)
	}
}

func (c *compiler) literal(n *ast.Literal) error {
	switch n.Kind {
	case token.Nil:
		c.chunk.WriteOp(chunk.OpPushNil, n.Line)
		return nil
	case token.True:
		c.chunk.WriteOp(chunk.OpPushTrue, n.Line)
		return nil
	case token.False:
		c.chunk.WriteOp(chunk.OpPushFalse, n.Line)
		return nil
	case token.Int:
		v, err := parseInt(n.Lexeme)
		if err != nil {
			return c.errorf(0, n.Line, "%v", err)
		}
		return c.pushConstant(value.Int(v), n.Line)
	case token.Float:
		v, err := parseFloat(n.Lexeme)
		if err != nil {
			return c.errorf(0, n.Line, "%v", err)
		}
		return c.pushConstant(value.Float(v), n.Line)
	case token.String:
		return c.pushConstant(value.String(n.Lexeme), n.Line)
	default:
		return c.errorf(0, n.Line, "unhandled literal kind %v", n.Kind)
	}
}

func (c *compiler) pushConstant(v value.Value, line int) error {
	idx, err := c.constant(v, line)
	if err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpPushConstant, line)
	c.chunk.WriteU16(idx, line)
	return nil
}

func (c *compiler) ident(n *ast.Ident) error {
	if slot := c.resolveLocal(n.Name); slot >= 0 {
		c.emitGetLocal(slot, n.Line)
		return nil
	}
	idx, err := c.constant(value.String(n.Name), n.Line)
	if err != nil {
		return err
	}
	c.chunk.WriteOp(chunk.OpGetGlobal, n.Line)
	c.chunk.WriteU16(idx, n.Line)
	return nil
}

func (c *compiler) unary(n *ast.Unary) error {
	if err := c.expr(n.Operand); err != nil {
		return err
	}
	switch n.Op {
	case token.Minus:
		c.chunk.WriteOp(chunk.OpNegate, n.Line)
	case token.Not:
		c.chunk.WriteOp(chunk.OpNot, n.Line)
	case token.Tilde:
		c.chunk.WriteOp(chunk.OpBNot, n.Line)
	case token.Hash:
		c.chunk.WriteOp(chunk.OpLen, n.Line)
	default:
		return c.errorf(0, n.Line, "unhandled unary operator %v", n.Op)
	}
	return nil
}

func (c *compiler) binary(n *ast.Binary) error {
	switch n.Op {
	case token.And:
		return c.shortCircuit(n, chunk.OpJumpIfFalse)
	case token.Or:
		return c.shortCircuit(n, chunk.OpJumpIfTrue)
	}
	if err := c.expr(n.Left); err != nil {
		return err
	}
	if err := c.expr(n.Right); err != nil {
		return err
	}
	op, err := binOp(n.Op)
	if err != nil {
		return c.errorf(0, n.Line, "%v", err)
	}
	c.chunk.WriteOp(op, n.Line)
	return nil
}

// shortCircuit compiles `and`/`or`: the left operand, a conditional jump
// over the right operand on the short-circuiting outcome, a pop that
// discards the left operand when the right is evaluated, the right
// operand, and the jump patch. The stack always ends with exactly one
// value: either the left operand (when it determines the result) or the
// right operand.
func (c *compiler) shortCircuit(n *ast.Binary, jump chunk.Op) error {
	if err := c.expr(n.Left); err != nil {
		return err
	}
	site := c.emitJump(jump, n.Line)
	c.chunk.WriteOp(chunk.OpPop, n.Line)
	if err := c.expr(n.Right); err != nil {
		return err
	}
	return c.patchJump(site, n.Line)
}

func binOp(k token.Kind) (chunk.Op, error) {
	switch k {
	case token.Plus:
		return chunk.OpAdd, nil
	case token.Minus:
		return chunk.OpSub, nil
	case token.Star:
		return chunk.OpMul, nil
	case token.Slash:
		return chunk.OpDiv, nil
	case token.DSlash:
		return chunk.OpIDiv, nil
	case token.Percent:
		return chunk.OpMod, nil
	case token.Caret:
		return chunk.OpPow, nil
	case token.Amp:
		return chunk.OpBAnd, nil
	case token.Pipe:
		return chunk.OpBOr, nil
	case token.Tilde:
		return chunk.OpBXor, nil
	case token.LShift:
		return chunk.OpShl, nil
	case token.RShift:
		return chunk.OpShr, nil
	case token.Eq:
		return chunk.OpEq, nil
	case token.NotEq:
		return chunk.OpNe, nil
	case token.Less:
		return chunk.OpLt, nil
	case token.LessEq:
		return chunk.OpLe, nil
	case token.Greater:
		return chunk.OpGt, nil
	case token.GreaterEq:
		return chunk.OpGe, nil
	case token.Concat:
		return chunk.OpConcat, nil
	default:
		return 0, fmt.Errorf("unhandled binary operator %v", k)
	}
}

func (c *compiler) call(n *ast.Call) error {
	if isPrintCall(n) {
		return c.printCall(n)
	}
	if err := c.expr(n.Callee); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.expr(a); err != nil {
			return err
		}
	}
	c.chunk.WriteOp(chunk.OpCall, n.Line)
	c.chunk.WriteByte(byte(len(n.Args)), n.Line)
	return nil
}

func stmtLine(s ast.Stmt) int {
	switch n := s.(type) {
	case *ast.LocalDecl:
		return n.Line
	case *ast.Assign:
		return n.Line
	case *ast.If:
		return n.Line
	case *ast.While:
		return n.Line
	case *ast.NumericFor:
		return n.Line
	case *ast.Repeat:
		return n.Line
	case *ast.Do:
		return n.Line
	case *ast.Return:
		return n.Line
	case *ast.Break:
		return n.Line
	case *ast.ExprStmt:
		return n.Line
	default:
		return 0
	}
}

func parseInt(lexeme string) (int64, error) {
	if len(lexeme) > 1 && lexeme[0] == '0' && (lexeme[1] == 'x' || lexeme[1] == 'X') {
		v, err := strconv.ParseUint(lexeme[2:], 16, 64)
		return int64(v), err
	}
	return strconv.ParseInt(lexeme, 10, 64)
}

func parseFloat(lexeme string) (float64, error) {
	return strconv.ParseFloat(lexeme, 64)
}
