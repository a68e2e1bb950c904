// Package ast defines the abstract syntax tree produced by the parser.
//
// Every node is exclusively owned by its parent; the root Block of a parse
// owns its entire subtree. Go's garbage collector removes the need for an
// explicit release traversal, but the ownership discipline still governs
// sharing: nodes are never aliased across two parents.
package ast

import "github.com/songforthemute/zua/token"

// Expr is the sum type of expression nodes.
type Expr interface{ exprNode() }

// Literal is one of the five literal value kinds.
type Literal struct {
	Kind   token.Kind // one of Nil, True, False, Int, Float, String
	Lexeme string     // source text for Int/Float, unquoted content for String; unused otherwise
	Line   int
}

// Ident references a variable by name, resolved at compile time to a local
// slot or a global.
type Ident struct {
	Name string
	Line int
}

// Unary is a prefix unary operation.
type Unary struct {
	Op      token.Kind // Minus, Not, Tilde, Hash
	Operand Expr
	Line    int
}

// Binary is an infix binary operation.
type Binary struct {
	Op    token.Kind
	Left  Expr
	Right Expr
	Line  int
}

// Call is a function (or builtin) invocation.
type Call struct {
	Callee Expr
	Args   []Expr
	Line   int
}

func (*Literal) exprNode() {}
func (*Ident) exprNode()   {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*Call) exprNode()    {}

// Stmt is the sum type of statement nodes.
type Stmt interface{ stmtNode() }

// LocalDecl declares local variables, optionally initializing them.
// Names and Inits may differ in length; missing initializers become nil.
type LocalDecl struct {
	Names []string
	Inits []Expr
	Line  int
}

// Assign assigns Values to Targets, matched by index.
type Assign struct {
	Targets []Expr
	Values  []Expr
	Line    int
}

// If is an if/elseif*/else chain: Conds[i] gates Bodies[i]; Else is optional.
type If struct {
	Conds  []Expr
	Bodies []Block
	Else   *Block
	Line   int
}

// While is a condition-guarded loop.
type While struct {
	Cond Expr
	Body Block
	Line int
}

// NumericFor is a `for name = start, limit [, step] do ... end` loop.
type NumericFor struct {
	Name  string
	Start Expr
	Limit Expr
	Step  Expr // nil if omitted; compiler defaults to integer(1)
	Body  Block
	Line  int
}

// Repeat is a `repeat ... until cond` loop; Cond may reference locals
// declared in Body.
type Repeat struct {
	Body Block
	Cond Expr
	Line int
}

// Do is a scoped block with no looping or branching semantics of its own.
type Do struct {
	Body Block
	Line int
}

// Return yields at most one value in this core.
type Return struct {
	Values []Expr
	Line   int
}

// Break exits the nearest enclosing loop.
type Break struct{ Line int }

// ExprStmt is a bare expression evaluated for effect (typically a call).
type ExprStmt struct {
	X    Expr
	Line int
}

func (*LocalDecl) stmtNode()  {}
func (*Assign) stmtNode()     {}
func (*If) stmtNode()         {}
func (*While) stmtNode()      {}
func (*NumericFor) stmtNode() {}
func (*Repeat) stmtNode()     {}
func (*Do) stmtNode()         {}
func (*Return) stmtNode()     {}
func (*Break) stmtNode()      {}
func (*ExprStmt) stmtNode()   {}

// Block is an ordered sequence of statements.
type Block struct {
	Stmts []Stmt
}
