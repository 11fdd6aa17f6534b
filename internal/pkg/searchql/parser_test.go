package searchql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected []Node
	}{
		{
			input:    "word",
			expected: []Node{Word{Value: "word"}},
		},
		{
			input: `word OR "phrase"`,
			expected: []Node{
				Operator{Kind: OpOr, Left: Word{Value: "word"}, Right: Phrase{Value: "phrase", Quote: '"'}},
			},
		},
		{
			input: "word | word",
			expected: []Node{
				Operator{Kind: OpOr, Left: Word{Value: "word"}, Right: Word{Value: "word"}},
			},
		},
		{
			input: "word & other",
			expected: []Node{
				Operator{Kind: OpAnd, Left: Word{Value: "word"}, Right: Word{Value: "other"}},
			},
		},
		{
			input: "apple banana",
			expected: []Node{
				Word{Value: "apple"},
				Word{Value: "banana"},
			},
		},
		{
			input: "'single quoted' word",
			expected: []Node{
				Phrase{Value: "single quoted", Quote: '\''},
				Word{Value: "word"},
			},
		},
		{
			input: "(apple OR orange) AND (drink OR juice)",
			expected: []Node{
				Operator{
					Kind: OpAnd,
					Left: Group{Children: []Node{
						Operator{Kind: OpOr, Left: Word{Value: "apple"}, Right: Word{Value: "orange"}},
					}},
					Right: Group{Children: []Node{
						Operator{Kind: OpOr, Left: Word{Value: "drink"}, Right: Word{Value: "juice"}},
					}},
				},
			},
		},
		{
			input: "a OR b AND c",
			expected: []Node{
				Operator{
					Kind:  OpAnd,
					Left:  Operator{Kind: OpOr, Left: Word{Value: "a"}, Right: Word{Value: "b"}},
					Right: Word{Value: "c"},
				},
			},
		},
		{
			input: "a (b OR c)",
			expected: []Node{
				Word{Value: "a"},
				Group{Children: []Node{
					Operator{Kind: OpOr, Left: Word{Value: "b"}, Right: Word{Value: "c"}},
				}},
			},
		},
		{
			input: "((a))",
			expected: []Node{
				Group{Children: []Node{Group{Children: []Node{Word{Value: "a"}}}}},
			},
		},
		{
			input: "x (OR y)",
			expected: []Node{
				Word{Value: "x"},
				Group{Children: []Node{Word{Value: "OR"}, Word{Value: "y"}}},
			},
		},
		{
			input: "OR word",
			expected: []Node{
				Word{Value: "OR"},
				Word{Value: "word"},
			},
		},
		{
			input:    "()",
			expected: []Node{Group{}},
		},
		{
			input:    "",
			expected: []Node{},
		},
		{
			input:    " \t ",
			expected: []Node{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Parse(tt.input))
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Node
	}{
		{
			name:  "unterminated groups",
			input: "(apple OR banana AND (orange OR lemon",
			expected: []Node{
				Group{Children: []Node{
					Operator{
						Kind:  OpAnd,
						Left:  Operator{Kind: OpOr, Left: Word{Value: "apple"}, Right: Word{Value: "banana"}},
						Right: Group{Children: []Node{
							Operator{Kind: OpOr, Left: Word{Value: "orange"}, Right: Word{Value: "lemon"}},
						}},
					},
				}},
			},
		},
		{
			name:     "unterminated phrase",
			input:    `"open phrase`,
			expected: []Node{Phrase{Value: "open phrase", Quote: '"'}},
		},
		{
			name:     "lone quote",
			input:    `"`,
			expected: []Node{},
		},
		{
			name:     "empty phrase",
			input:    `word OR ""`,
			expected: []Node{Operator{Kind: OpOr, Left: Word{Value: "word"}}},
		},
		{
			name:     "dangling operator",
			input:    "apple OR",
			expected: []Node{Operator{Kind: OpOr, Left: Word{Value: "apple"}}},
		},
		{
			name:     "leading operator",
			input:    "| apple",
			expected: []Node{Operator{Kind: OpOr, Right: Word{Value: "apple"}}},
		},
		{
			name:  "operator after stray paren takes previous node",
			input: "apple ) OR pear",
			expected: []Node{
				Operator{Kind: OpOr, Left: Word{Value: "apple"}, Right: Word{Value: "pear"}},
			},
		},
		{
			name:  "leading operator in group takes previous sibling",
			input: `(apple "" | pear)`,
			expected: []Node{
				Group{Children: []Node{
					Operator{Kind: OpOr, Left: Word{Value: "apple"}, Right: Word{Value: "pear"}},
				}},
			},
		},
		{
			name:  "operator missing right operand before close",
			input: "(apple AND) pear",
			expected: []Node{
				Group{Children: []Node{Operator{Kind: OpAnd, Left: Word{Value: "apple"}}}},
				Word{Value: "pear"},
			},
		},
		{
			name:  "operators only",
			input: "& |",
			expected: []Node{
				Operator{Kind: OpAnd, Right: Operator{Kind: OpOr}},
			},
		},
		{
			name:     "unmatched closing parens",
			input:    ")) apple ((",
			expected: []Node{Word{Value: "apple"}, Group{Children: []Node{Group{}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nodes []Node
			require.NotPanics(t, func() { nodes = Parse(tt.input) })
			assert.Equal(t, tt.expected, nodes)
		})
	}
}

func TestParseBytes(t *testing.T) {
	input := "(apple OR orange) AND (drink OR juice)"
	assert.Equal(t, Parse(input), ParseBytes([]byte(input)))
}

func TestParserPeekConsume(t *testing.T) {
	p := NewParser(NewTokenizer(NewStringCursor("a b c")))

	n, ok := p.Peek(1)
	require.True(t, ok)
	assert.Equal(t, Word{Value: "b"}, n)

	again, ok := p.Peek(1)
	require.True(t, ok)
	assert.Equal(t, n, again)

	first, ok := p.Consume(0)
	require.True(t, ok)
	assert.Equal(t, Word{Value: "a"}, first)

	last, ok := p.Consume(1)
	require.True(t, ok)
	assert.Equal(t, Word{Value: "c"}, last)

	_, ok = p.Peek(0)
	assert.False(t, ok)
	assert.True(t, p.IsAtEnd())
}

func TestParseAllExhausted(t *testing.T) {
	p := NewParser(NewTokenizer(NewStringCursor("apple OR pear")))

	nodes := p.ParseAll()
	require.Len(t, nodes, 1)
	assert.True(t, p.IsAtEnd())

	assert.Empty(t, p.ParseAll())
	assert.True(t, p.IsAtEnd())
}

func TestParseKeywordOperatorsDisabled(t *testing.T) {
	p := NewParser(NewTokenizer(NewStringCursor("a OR b"), WithKeywordOperators(false)))
	assert.Equal(t, []Node{Word{Value: "a"}, Word{Value: "OR"}, Word{Value: "b"}}, p.ParseAll())
}

func TestNodeString(t *testing.T) {
	nodes := Parse(`(a OR "b c") & d`)
	require.Len(t, nodes, 1)
	assert.Equal(t, `Operator(and, Group(Operator(or, Word(a), Phrase("b c"))), Word(d))`, nodes[0].String())

	partial := Parse("a OR")
	require.Len(t, partial, 1)
	assert.Equal(t, "Operator(or, Word(a), <nil>)", partial[0].String())
}

func TestFormat(t *testing.T) {
	expected := "Operator(and)\n" +
		"  Group\n" +
		"    Word(a)\n" +
		"  Phrase('b')\n" +
		"Word(c)\n"
	assert.Equal(t, expected, Format(Parse("(a) AND 'b' c")))
}

func TestParseOperatorKind(t *testing.T) {
	tests := []struct {
		input    string
		expected OperatorKind
		ok       bool
	}{
		{"and", OpAnd, true},
		{"AND", OpAnd, true},
		{"&", OpAnd, true},
		{"or", OpOr, true},
		{"Or", OpOr, true},
		{"|", OpOr, true},
		{"not", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, ok := ParseOperatorKind(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, kind)
		})
	}
}
