package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) Node {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	return prog.Statements[0]
}

func TestParsePrecedence(t *testing.T) {
	n := parseOne(t, "1 + 2 * 3")
	bin := n.(*Binary)
	assert.Equal(t, "+", bin.Op)
	assert.Equal(t, float64(1), bin.Left.(*Literal).Value)
	rhs := bin.Right.(*Binary)
	assert.Equal(t, "*", rhs.Op)
}

func TestParseLogicalPrecedence(t *testing.T) {
	// && binds tighter than ||
	n := parseOne(t, "false && 5 || 4")
	lg := n.(*Logical)
	assert.Equal(t, "||", lg.Op)
	left := lg.Left.(*Logical)
	assert.Equal(t, "&&", left.Op)
}

func TestParseTernary(t *testing.T) {
	n := parseOne(t, "a ? 1 : 2")
	cond := n.(*Conditional)
	assert.IsType(t, &Identifier{}, cond.Cond)
}

func TestParseAssignment(t *testing.T) {
	n := parseOne(t, "a.b.c = 1")
	assign := n.(*Assign)
	assert.IsType(t, &Member{}, assign.Target)
}

func TestParseFilterPipe(t *testing.T) {
	n := parseOne(t, `arr | filter:"a":true`)
	call := n.(*Call)
	assert.Equal(t, "filter", call.Filter)
	require.Len(t, call.Args, 3)
	assert.IsType(t, &Identifier{}, call.Args[0])
}

func TestParseMemberAndCallSuffixes(t *testing.T) {
	n := parseOne(t, `a.b["c"].d(1, 2)`)
	call := n.(*Call)
	require.Len(t, call.Args, 2)
	m1 := call.Callee.(*Member)
	assert.False(t, m1.Computed)
	assert.Equal(t, "d", m1.Property.(*Literal).Value)
}

func TestParseArrayAndObjectLiteralsTrailingComma(t *testing.T) {
	n := parseOne(t, "[1, 2, 3,]")
	arr := n.(*ArrayLit)
	assert.Len(t, arr.Elements, 3)

	n = parseOne(t, `{a: 1, "b": 2, 3: "x",}`)
	obj := n.(*ObjectLit)
	require.Len(t, obj.Properties, 3)
	assert.Equal(t, "a", obj.Properties[0].Key)
	assert.Equal(t, "b", obj.Properties[1].Key)
	assert.Equal(t, "3", obj.Properties[2].Key)
}

func TestParseLanguageConstants(t *testing.T) {
	n := parseOne(t, "this")
	assert.IsType(t, &This{}, n)

	n = parseOne(t, "null")
	assert.IsType(t, &Literal{}, n)
}

func TestParseProgramMultipleStatements(t *testing.T) {
	prog, err := Parse("a = 1; b = 2;")
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
}

func TestParseErrorMissingCloseParen(t *testing.T) {
	_, err := Parse("(1 + 2")
	assert.Error(t, err)
}

func TestParseErrorUnexpectedToken(t *testing.T) {
	_, err := Parse("1 +")
	assert.Error(t, err)
}

func TestDumpGolden(t *testing.T) {
	out, err := Explain("a + 1")
	require.NoError(t, err)
	assertGolden(t, "binary_add", out)
}
