package searchql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOperator is the panic value wrapped when an Operator carries a
// kind other than OpAnd or OpOr.
var ErrUnknownOperator = errors.New("searchql: unknown operator")

// Match evaluates the AST node against text and returns true if it matches.
// Terms match case-insensitively as substrings. A nil node matches nothing.
func Match(node Node, text string) bool {
	return match(node, strings.ToLower(text))
}

// MatchAny reports whether any of the top-level nodes matches text.
func MatchAny(nodes []Node, text string) bool {
	lower := strings.ToLower(text)
	for _, n := range nodes {
		if match(n, lower) {
			return true
		}
	}
	return false
}

// Filter returns the items matched by at least one of the top-level nodes.
// mapper converts an item into the text to match; when nil, fmt.Sprint is
// used.
func Filter[T any](nodes []Node, items []T, mapper func(T) string) []T {
	if mapper == nil {
		mapper = func(item T) string { return fmt.Sprint(item) }
	}
	result := make([]T, 0, len(items))
	for _, item := range items {
		if MatchAny(nodes, mapper(item)) {
			result = append(result, item)
		}
	}
	return result
}

// match expects text to be lowercased already.
func match(node Node, text string) bool {
	switch n := node.(type) {
	case nil:
		return false
	case Word:
		return strings.Contains(text, strings.ToLower(n.Value))
	case Phrase:
		return strings.Contains(text, strings.ToLower(n.Value))
	case Operator:
		return evalOperator(n, text)
	case Group:
		for _, child := range n.Children {
			if match(child, text) {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("searchql: unexpected node %T", node))
	}
}

func evalOperator(op Operator, text string) bool {
	if op.Kind != OpAnd && op.Kind != OpOr {
		panic(fmt.Errorf("%w: %q", ErrUnknownOperator, op.Kind))
	}

	// A partially applied operator stands for its remaining operand.
	switch {
	case op.Left == nil:
		return match(op.Right, text)
	case op.Right == nil:
		return match(op.Left, text)
	}

	if op.Kind == OpAnd {
		return match(op.Left, text) && match(op.Right, text)
	}
	return match(op.Left, text) || match(op.Right, text)
}
