package searchql

import (
	"fmt"
)

// Parser turns a token stream into AST nodes.
//
// Grammar, loosest binding last:
//
//	primary  = word | quote content quote | "(" sequence ")" | operator primary
//	expr     = primary { operator primary }
//	sequence = { expr }
//
// and/or share one precedence level and associate to the left. Adjacent
// expressions without an operator stay independent siblings.
type Parser struct {
	lex *Tokenizer

	nodes []Node
	index int
}

// NewParser creates a Parser reading from lex.
func NewParser(lex *Tokenizer) *Parser {
	return &Parser{lex: lex}
}

// Peek returns the top-level node at the current position plus offset
// without advancing. It returns false past the end of input.
func (p *Parser) Peek(offset int) (Node, bool) {
	i := p.index + offset
	if i < 0 || !p.fill(i) {
		return nil, false
	}
	return p.nodes[i], true
}

// Consume returns the top-level node at the current position plus offset
// and moves the position past it.
func (p *Parser) Consume(offset int) (Node, bool) {
	i := p.index + offset
	if i < 0 || !p.fill(i) {
		p.index = len(p.nodes)
		return nil, false
	}
	p.index = i + 1
	return p.nodes[i], true
}

// IsAtEnd reports whether every node has been consumed and the tokenizer is
// exhausted.
func (p *Parser) IsAtEnd() bool {
	return p.index >= len(p.nodes) && p.lex.IsAtEnd()
}

// ParseAll consumes every remaining top-level node.
//
// An operator that reaches the list without a left operand takes the
// previously emitted node as its left side.
func (p *Parser) ParseAll() []Node {
	nodes := make([]Node, 0)
	for {
		n, ok := p.Consume(0)
		if !ok {
			return nodes
		}
		nodes = appendSibling(nodes, n)
	}
}

func (p *Parser) fill(n int) bool {
	for len(p.nodes) <= n {
		node, ok := p.next()
		if !ok {
			return false
		}
		p.nodes = append(p.nodes, node)
	}
	return true
}

// next resolves the next top-level node.
func (p *Parser) next() (Node, bool) {
	for {
		tok, ok := p.skipWhitespace()
		if !ok {
			return nil, false
		}
		if tok.Is(TokenGroup, ")") {
			// unmatched at top level
			p.lex.Consume(0)
			continue
		}
		if n := p.parseExpr(); n != nil {
			return n, true
		}
	}
}

func (p *Parser) parseExpr() Node {
	left := p.parsePrimary()
	for {
		tok, offset, ok := p.peekSignificant()
		if !ok || tok.Kind != TokenOperator {
			return left
		}
		p.lex.Consume(offset)
		left = Operator{Kind: operatorKind(tok), Left: left, Right: p.parsePrimary()}
	}
}

// parsePrimary resolves one operand. It returns nil at the end of input and
// in front of a closing parenthesis, which is left for the enclosing group.
func (p *Parser) parsePrimary() Node {
	tok, ok := p.skipWhitespace()
	if !ok {
		return nil
	}

	switch tok.Kind {
	case TokenWord:
		p.lex.Consume(0)
		return Word{Value: tok.Value}
	case TokenQuote:
		p.lex.Consume(0)
		return p.parsePhrase(tok)
	case TokenGroup:
		if tok.Value == ")" {
			return nil
		}
		p.lex.Consume(0)
		return p.parseGroup()
	case TokenOperator:
		// No left operand is known at this depth; siblings are folded later.
		p.lex.Consume(0)
		return Operator{Kind: operatorKind(tok), Right: p.parsePrimary()}
	default:
		panic(fmt.Sprintf("searchql: unexpected %s token at %d", tok.Kind, tok.Pos))
	}
}

// parsePhrase reads the phrase content and the closing quote that follow an
// opening quote. The closing quote is not checked; it may be missing.
func (p *Parser) parsePhrase(open Token) Node {
	content, ok := p.lex.Peek(0)
	if !ok {
		return nil
	}
	p.lex.Consume(0)
	if content.Kind == TokenQuote {
		// empty phrase
		return nil
	}
	p.lex.Consume(0)
	return Phrase{Value: content.Value, Quote: open.Value[0]}
}

// parseGroup collects siblings until a closing parenthesis. A group that is
// still open at the end of input closes with what it has.
func (p *Parser) parseGroup() Node {
	var children []Node
	for {
		tok, ok := p.skipWhitespace()
		if !ok {
			break
		}
		if tok.Is(TokenGroup, ")") {
			p.lex.Consume(0)
			break
		}
		if n := p.parseExpr(); n != nil {
			children = appendSibling(children, n)
		}
	}
	return Group{Children: children}
}

// skipWhitespace consumes whitespace tokens and peeks the first other token.
func (p *Parser) skipWhitespace() (Token, bool) {
	for {
		tok, ok := p.lex.Peek(0)
		if !ok || tok.Kind != TokenWhitespace {
			return tok, ok
		}
		p.lex.Consume(0)
	}
}

// peekSignificant peeks the first non-whitespace token and its offset from
// the current tokenizer position.
func (p *Parser) peekSignificant() (Token, int, bool) {
	for i := 0; ; i++ {
		tok, ok := p.lex.Peek(i)
		if !ok {
			return Token{}, 0, false
		}
		if tok.Kind != TokenWhitespace {
			return tok, i, true
		}
	}
}

func operatorKind(tok Token) OperatorKind {
	kind, ok := ParseOperatorKind(tok.Value)
	if !ok {
		panic(fmt.Sprintf("searchql: unknown operator %q at %d", tok.Value, tok.Pos))
	}
	return kind
}

// appendSibling appends n to siblings. When n is missing its leftmost
// operand, the last sibling is moved into that slot instead.
func appendSibling(siblings []Node, n Node) []Node {
	if len(siblings) > 0 {
		if joined, ok := attachLeft(n, siblings[len(siblings)-1]); ok {
			return append(siblings[:len(siblings)-1], joined)
		}
	}
	return append(siblings, n)
}

func attachLeft(n Node, left Node) (Node, bool) {
	op, ok := n.(Operator)
	if !ok {
		return n, false
	}
	if op.Left == nil {
		op.Left = left
		return op, true
	}
	inner, ok := attachLeft(op.Left, left)
	if ok {
		op.Left = inner
	}
	return op, ok
}
