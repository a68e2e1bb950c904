package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songforthemute/zua/chunk"
	"github.com/songforthemute/zua/compiler"
	"github.com/songforthemute/zua/parser"
	"github.com/songforthemute/zua/scanner"
	"github.com/songforthemute/zua/value"
)

func runSrc(t *testing.T, src string) (string, error) {
	t.Helper()
	toks, err := scanner.Scan([]byte(src))
	require.NoError(t, err)
	block, err := parser.Parse(toks)
	require.NoError(t, err)
	c, err := compiler.Compile(block)
	require.NoError(t, err)
	m := New(c)
	if err := m.Run(); err != nil {
		return "", err
	}
	return string(m.Output()), nil
}

func Test_Run_arithmeticPromotion(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want string
	}{
		{"int add stays int", "print(1 + 2)", "3\n"},
		{"div always float", "print(4 / 2)", "2.0\n"},
		{"pow always float", "print(2 ^ 3)", "8.0\n"},
		{"idiv int floor", "print(7 // 2)", "3\n"},
		{"idiv negative floors toward -inf", "print(-7 // 2)", "-4\n"},
		{"mod sign follows divisor", "print(-1 % 3)", "2\n"},
		{"mixed add promotes to float", "print(1 + 2.0)", "3.0\n"},
		{"string concat", `print("a" .. "b")`, "ab\n"},
		{"length of string", `print(#"abcd")`, "4\n"},
		{"not truthy", "print(not nil)", "true\n"},
		{"and short circuits to left", "print(false and 1)", "false\n"},
		{"or short circuits to left", "print(1 or 2)", "1\n"},
		{"bitwise and", "print(6 & 3)", "2\n"},
		{"shift left", "print(1 << 4)", "16\n"},
		{"shift by >=64 is zero", "print(1 << 64)", "0\n"},
		{"negative shift reverses direction", "print(16 >> -2)", "64\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runSrc(t, tc.src)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func Test_Run_strictEquality(t *testing.T) {
	out, err := runSrc(t, "print(1 == 1.0)")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out, "integer and float never compare equal even with the same mathematical value")
}

func Test_Run_integerComparisonStaysExactPastFloat64Precision(t *testing.T) {
	// 9007199254740993 and 9007199254740992 are adjacent int64s that both
	// round to the same float64 (2^53), so a float-promoting comparison
	// would wrongly call them equal.
	out, err := runSrc(t, "print(9007199254740993 > 9007199254740992)")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = runSrc(t, "print(9007199254740993 < 9007199254740992)")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func Test_Run_locals(t *testing.T) {
	out, err := runSrc(t, "local x = 10 local y = 20 print(x + y)")
	require.NoError(t, err)
	assert.Equal(t, "30\n", out)
}

func Test_Run_globals(t *testing.T) {
	out, err := runSrc(t, "x = 5 print(x)")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)
}

func Test_Run_ifElseif(t *testing.T) {
	out, err := runSrc(t, `
x = 2
if x == 1 then
  print("one")
elseif x == 2 then
  print("two")
else
  print("other")
end`)
	require.NoError(t, err)
	assert.Equal(t, "two\n", out)
}

func Test_Run_whileLoop(t *testing.T) {
	out, err := runSrc(t, `
local i = 0
while i < 3 do
  print(i)
  i = i + 1
end`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func Test_Run_numericForAscending(t *testing.T) {
	out, err := runSrc(t, "for i = 1, 3 do print(i) end")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func Test_Run_numericForDescending(t *testing.T) {
	out, err := runSrc(t, "for i = 3, 1, -1 do print(i) end")
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)
}

func Test_Run_repeatUntil(t *testing.T) {
	out, err := runSrc(t, `
local i = 0
repeat
  print(i)
  i = i + 1
until i >= 3`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func Test_Run_breakExitsLoop(t *testing.T) {
	out, err := runSrc(t, `
local i = 0
while true do
  if i == 2 then break end
  print(i)
  i = i + 1
end`)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n", out)
}

func Test_Run_typeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"add string", `print(1 + "x")`, TypeError},
		{"concat number", `print(1 .. 2)`, TypeError},
		{"divide by zero int", "print(1 // 0)", DivisionByZero},
		{"divide by zero float", "print(1 / 0)", DivisionByZero},
		{"undefined global", "print(nope)", UndefinedVariable},
		{"call non-function", "local f = 1 f()", TypeError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runSrc(t, tc.src)
			require.Error(t, err)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.kind, verr.Kind)
		})
	}
}

func Test_VM_stackOverflow(t *testing.T) {
	m := New(&chunk.Chunk{})
	for i := 0; i < StackCapacity; i++ {
		m.push(value.Int(int64(i)))
	}
	assert.Panics(t, func() { m.push(value.Int(0)) })
}

func Test_VM_SetTrace(t *testing.T) {
	var c chunk.Chunk
	c.WriteOp(chunk.OpPushNil, 1)
	c.WriteOp(chunk.OpPop, 1)
	c.WriteOp(chunk.OpReturn, 1)
	m := New(&c)
	var lines []int
	m.SetTrace(func(line int, op chunk.Op) { lines = append(lines, line) })
	require.NoError(t, m.Run())
	assert.Equal(t, []int{1, 1, 1}, lines)
}
