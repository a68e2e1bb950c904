package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songforthemute/zua/ast"
	"github.com/songforthemute/zua/scanner"
	"github.com/songforthemute/zua/token"
)

func parseSrc(t *testing.T, src string) ast.Block {
	t.Helper()
	toks, err := scanner.Scan([]byte(src))
	require.NoError(t, err)
	block, err := Parse(toks)
	require.NoError(t, err)
	return block
}

func Test_Parse_statements(t *testing.T) {
	for _, tc := range []struct {
		name  string
		src   string
		check func(t *testing.T, b ast.Block)
	}{
		{"local decl", "local x, y = 1, 2", func(t *testing.T, b ast.Block) {
			require.Len(t, b.Stmts, 1)
			decl, ok := b.Stmts[0].(*ast.LocalDecl)
			require.True(t, ok)
			assert.Equal(t, []string{"x", "y"}, decl.Names)
			assert.Len(t, decl.Inits, 2)
		}},
		{"assignment", "x = 1", func(t *testing.T, b ast.Block) {
			require.Len(t, b.Stmts, 1)
			_, ok := b.Stmts[0].(*ast.Assign)
			assert.True(t, ok)
		}},
		{"expr statement (print call)", "print(1)", func(t *testing.T, b ast.Block) {
			require.Len(t, b.Stmts, 1)
			stmt, ok := b.Stmts[0].(*ast.ExprStmt)
			require.True(t, ok)
			call, ok := stmt.X.(*ast.Call)
			require.True(t, ok)
			callee, ok := call.Callee.(*ast.Ident)
			require.True(t, ok)
			assert.Equal(t, "print", callee.Name)
		}},
		{"if elseif else", "if a then b = 1 elseif c then b = 2 else b = 3 end", func(t *testing.T, b ast.Block) {
			n, ok := b.Stmts[0].(*ast.If)
			require.True(t, ok)
			assert.Len(t, n.Conds, 2)
			assert.Len(t, n.Bodies, 2)
			assert.NotNil(t, n.Else)
		}},
		{"while", "while x do x = x - 1 end", func(t *testing.T, b ast.Block) {
			_, ok := b.Stmts[0].(*ast.While)
			assert.True(t, ok)
		}},
		{"numeric for with step", "for i = 1, 10, 2 do end", func(t *testing.T, b ast.Block) {
			n, ok := b.Stmts[0].(*ast.NumericFor)
			require.True(t, ok)
			assert.Equal(t, "i", n.Name)
			assert.NotNil(t, n.Step)
		}},
		{"numeric for no step", "for i = 1, 10 do end", func(t *testing.T, b ast.Block) {
			n, ok := b.Stmts[0].(*ast.NumericFor)
			require.True(t, ok)
			assert.Nil(t, n.Step)
		}},
		{"repeat until", "repeat x = x + 1 until x > 10", func(t *testing.T, b ast.Block) {
			_, ok := b.Stmts[0].(*ast.Repeat)
			assert.True(t, ok)
		}},
		{"do block", "do local x = 1 end", func(t *testing.T, b ast.Block) {
			_, ok := b.Stmts[0].(*ast.Do)
			assert.True(t, ok)
		}},
		{"return with values", "return 1, 2", func(t *testing.T, b ast.Block) {
			n, ok := b.Stmts[0].(*ast.Return)
			require.True(t, ok)
			assert.Len(t, n.Values, 2)
		}},
		{"bare return", "return", func(t *testing.T, b ast.Block) {
			n, ok := b.Stmts[0].(*ast.Return)
			require.True(t, ok)
			assert.Empty(t, n.Values)
		}},
		{"break", "while true do break end", func(t *testing.T, b ast.Block) {
			n := b.Stmts[0].(*ast.While)
			_, ok := n.Body.Stmts[0].(*ast.Break)
			assert.True(t, ok)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, parseSrc(t, tc.src))
		})
	}
}

func Test_Parse_precedence(t *testing.T) {
	// 2^3^4 is right-associative: ^(2, ^(3, 4))
	b := parseSrc(t, "x = 2^3^4")
	assign := b.Stmts[0].(*ast.Assign)
	top := assign.Values[0].(*ast.Binary)
	assert.Equal(t, token.Caret, top.Op)
	assert.Equal(t, "2", top.Left.(*ast.Literal).Lexeme)
	inner := top.Right.(*ast.Binary)
	assert.Equal(t, token.Caret, inner.Op)
	assert.Equal(t, "3", inner.Left.(*ast.Literal).Lexeme)
	assert.Equal(t, "4", inner.Right.(*ast.Literal).Lexeme)
}

func Test_Parse_unaryBindsTighterThanBinaryExceptPow(t *testing.T) {
	// -2^2 is -(2^2): unary binds looser than '^'.
	b := parseSrc(t, "x = -2^2")
	assign := b.Stmts[0].(*ast.Assign)
	u := assign.Values[0].(*ast.Unary)
	assert.Equal(t, token.Minus, u.Op)
	pow, ok := u.Operand.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, token.Caret, pow.Op)
}

func Test_Parse_stringEscapes(t *testing.T) {
	b := parseSrc(t, `x = "a\nb"`)
	assign := b.Stmts[0].(*ast.Assign)
	lit := assign.Values[0].(*ast.Literal)
	assert.Equal(t, "a\nb", lit.Lexeme)
}

func Test_Parse_longBracketString(t *testing.T) {
	b := parseSrc(t, "x = [[hello]]")
	assign := b.Stmts[0].(*ast.Assign)
	lit := assign.Values[0].(*ast.Literal)
	assert.Equal(t, "hello", lit.Lexeme)
}

func Test_Parse_errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"missing then", "if x end", ExpectedToken},
		{"missing expression", "x = ", ExpectedExpression},
		{"unmatched end", "end", UnexpectedToken},
	} {
		t.Run(tc.name, func(t *testing.T) {
			toks, err := scanner.Scan([]byte(tc.src))
			require.NoError(t, err)
			_, err = Parse(toks)
			require.Error(t, err)
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.kind, perr.Kind)
		})
	}
}
