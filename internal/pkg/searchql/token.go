package searchql

// TokenKind represents the type of a lexical token.
type TokenKind int

const (
	TokenWord       TokenKind = iota // run of word characters, or raw phrase content
	TokenQuote                       // ' or "
	TokenWhitespace                  // run of spaces, tabs, CR, LF
	TokenOperator                    // and, or, &, |
	TokenGroup                       // ( or )
)

func (k TokenKind) String() string {
	switch k {
	case TokenWord:
		return "word"
	case TokenQuote:
		return "quote"
	case TokenWhitespace:
		return "whitespace"
	case TokenOperator:
		return "operator"
	case TokenGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Token represents a lexical token.
type Token struct {
	Kind TokenKind
	// Value is the normalized value. Keyword operators are lowercased,
	// every other token carries its source text unchanged.
	Value string
	// Text is the exact source span the token was read from.
	Text string
	// Pos is the byte offset of the token in the input.
	Pos int
}

// Is reports whether the token has the given kind and value.
func (t Token) Is(kind TokenKind, value string) bool {
	return t.Kind == kind && t.Value == value
}
