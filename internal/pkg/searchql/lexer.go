package searchql

import (
	"fmt"
	"strings"
)

type lexState int

const (
	stateDefault lexState = iota
	stateInPhrase
)

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithKeywordOperators enables or disables recognition of the AND/OR keywords.
// The symbol forms & and | are always operators.
func WithKeywordOperators(enabled bool) TokenizerOption {
	return func(t *Tokenizer) {
		t.keywords = enabled
	}
}

// Tokenizer turns a character stream into lexical tokens.
//
// Tokens are produced lazily and kept in an arena indexed by position, so
// peeking ahead never scans the same characters twice.
type Tokenizer struct {
	cur Cursor

	state           lexState
	terminator      byte
	afterWhitespace bool
	keywords        bool
	offset          int // byte offset of the next unread character

	tokens []Token
	index  int
}

// NewTokenizer creates a Tokenizer reading from cur.
func NewTokenizer(cur Cursor, opts ...TokenizerOption) *Tokenizer {
	t := &Tokenizer{
		cur:      cur,
		keywords: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Peek returns the token at the current position plus offset without
// advancing. It returns false when that position is past the end of input.
func (t *Tokenizer) Peek(offset int) (Token, bool) {
	i := t.index + offset
	if i < 0 || !t.fill(i) {
		return Token{}, false
	}
	return t.tokens[i], true
}

// Consume returns the token at the current position plus offset and moves
// the position past it.
func (t *Tokenizer) Consume(offset int) (Token, bool) {
	i := t.index + offset
	if i < 0 || !t.fill(i) {
		t.index = len(t.tokens)
		return Token{}, false
	}
	t.index = i + 1
	return t.tokens[i], true
}

// IsAtEnd reports whether the input is exhausted and every produced token
// has been consumed.
func (t *Tokenizer) IsAtEnd() bool {
	return t.cur.AtEnd() && t.index >= len(t.tokens)
}

// ReadAll consumes and returns every remaining token in order.
func (t *Tokenizer) ReadAll() []Token {
	var tokens []Token
	for !t.IsAtEnd() {
		tok, ok := t.Consume(0)
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// fill scans tokens until position n is available.
func (t *Tokenizer) fill(n int) bool {
	for len(t.tokens) <= n {
		if t.cur.AtEnd() {
			return false
		}
		t.tokens = append(t.tokens, t.scan())
	}
	return true
}

func (t *Tokenizer) scan() Token {
	ch, _ := t.cur.Peek(0)

	switch t.state {
	case stateDefault:
		switch {
		case isWhitespace(ch):
			return t.readWhitespace()
		case ch == '"' || ch == '\'':
			t.state = stateInPhrase
			t.terminator = ch
			return t.single(TokenQuote)
		case isWordChar(ch):
			if t.keywords && t.afterWhitespace {
				if kw := t.keyword(); kw != "" {
					return t.readKeyword(kw)
				}
			}
			return t.readWord()
		case ch == '|' || ch == '&':
			return t.single(TokenOperator)
		case ch == '(' || ch == ')':
			return t.single(TokenGroup)
		}
		// Anything else separates terms like whitespace does.
		tok := t.single(TokenWhitespace)
		t.afterWhitespace = true
		return tok

	case stateInPhrase:
		t.afterWhitespace = false
		if ch == t.terminator {
			t.state = stateDefault
			return t.single(TokenQuote)
		}
		return t.readPhrase()

	default:
		panic(fmt.Sprintf("searchql: bad tokenizer state %d", t.state))
	}
}

// single consumes one character as a token of the given kind.
func (t *Tokenizer) single(kind TokenKind) Token {
	pos := t.offset
	ch, _ := t.cur.Consume()
	t.offset++
	t.afterWhitespace = false
	text := string([]byte{ch})
	return Token{Kind: kind, Value: text, Text: text, Pos: pos}
}

func (t *Tokenizer) readWhitespace() Token {
	text := t.readWhile(isWhitespace)
	t.afterWhitespace = true
	return Token{Kind: TokenWhitespace, Value: text, Text: text, Pos: t.offset - len(text)}
}

func (t *Tokenizer) readWord() Token {
	text := t.readWhile(isWordChar)
	t.afterWhitespace = false
	return Token{Kind: TokenWord, Value: text, Text: text, Pos: t.offset - len(text)}
}

// readPhrase consumes raw characters up to the phrase terminator or the end
// of input. The terminator itself is left for the next scan.
func (t *Tokenizer) readPhrase() Token {
	text := t.readWhile(func(ch byte) bool { return ch != t.terminator })
	return Token{Kind: TokenWord, Value: text, Text: text, Pos: t.offset - len(text)}
}

func (t *Tokenizer) readKeyword(kw string) Token {
	pos := t.offset
	var sb strings.Builder
	for range kw {
		ch, _ := t.cur.Consume()
		sb.WriteByte(ch)
		t.offset++
	}
	t.afterWhitespace = false
	return Token{Kind: TokenOperator, Value: kw, Text: sb.String(), Pos: pos}
}

func (t *Tokenizer) readWhile(accept func(byte) bool) string {
	var sb strings.Builder
	for {
		ch, ok := t.cur.Peek(0)
		if !ok || !accept(ch) {
			break
		}
		t.cur.Consume()
		t.offset++
		sb.WriteByte(ch)
	}
	return sb.String()
}

// keyword returns "or" or "and" when the upcoming characters spell exactly
// that keyword, in any case, followed by a non-word character or the end of
// input. It returns "" otherwise and consumes nothing.
func (t *Tokenizer) keyword() string {
	for _, kw := range []string{"or", "and"} {
		if t.peekKeyword(kw) {
			return kw
		}
	}
	return ""
}

func (t *Tokenizer) peekKeyword(kw string) bool {
	for i := 0; i < len(kw); i++ {
		ch, ok := t.cur.Peek(i)
		if !ok || toLower(ch) != kw[i] {
			return false
		}
	}
	next, ok := t.cur.Peek(len(kw))
	return !ok || !isWordChar(next)
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isWordChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' ||
		ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' ||
		ch == '-' || ch == '_'
}

func toLower(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch + ('a' - 'A')
	}
	return ch
}
