package searchql

import (
	"fmt"
	"strings"
)

// Node is the interface implemented by all AST nodes.
// The set of nodes is closed: Word, Phrase, Operator and Group.
type Node interface {
	node() // marker method
	String() string
}

var (
	_ Node = Word{}
	_ Node = Phrase{}
	_ Node = Operator{}
	_ Node = Group{}
)

// OperatorKind is the normalized kind of a binary operator.
type OperatorKind string

const (
	OpAnd OperatorKind = "and"
	OpOr  OperatorKind = "or"
)

// ParseOperatorKind maps an operator spelling (and, or, &, |, any case) to
// its kind.
func ParseOperatorKind(s string) (OperatorKind, bool) {
	switch strings.ToLower(s) {
	case "and", "&":
		return OpAnd, true
	case "or", "|":
		return OpOr, true
	default:
		return "", false
	}
}

// Word is a bare search term.
type Word struct {
	Value string
}

func (Word) node() {}

func (w Word) String() string {
	return fmt.Sprintf("Word(%s)", w.Value)
}

// Phrase is the text between two quote delimiters.
type Phrase struct {
	Value string
	Quote byte // ' or "
}

func (Phrase) node() {}

func (p Phrase) String() string {
	return fmt.Sprintf("Phrase(%c%s%c)", p.Quote, p.Value, p.Quote)
}

// Operator combines two operands. Either operand may be nil when the query
// ended or was malformed before it could be resolved.
type Operator struct {
	Kind  OperatorKind
	Left  Node
	Right Node
}

func (Operator) node() {}

func (o Operator) String() string {
	return fmt.Sprintf("Operator(%s, %s, %s)", o.Kind, nodeString(o.Left), nodeString(o.Right))
}

// Group holds the sibling nodes of a parenthesized span.
type Group struct {
	Children []Node
}

func (Group) node() {}

func (g Group) String() string {
	parts := make([]string, len(g.Children))
	for i, child := range g.Children {
		parts[i] = child.String()
	}
	return fmt.Sprintf("Group(%s)", strings.Join(parts, ", "))
}

func nodeString(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

// Format renders a node tree with one node per line, indented by depth.
func Format(nodes []Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		formatNode(&sb, n, 0)
	}
	return sb.String()
}

func formatNode(sb *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case nil:
		fmt.Fprintf(sb, "%s<nil>\n", indent)
	case Word, Phrase:
		fmt.Fprintf(sb, "%s%s\n", indent, n)
	case Operator:
		fmt.Fprintf(sb, "%sOperator(%s)\n", indent, n.Kind)
		formatNode(sb, n.Left, depth+1)
		formatNode(sb, n.Right, depth+1)
	case Group:
		fmt.Fprintf(sb, "%sGroup\n", indent)
		for _, child := range n.Children {
			formatNode(sb, child, depth+1)
		}
	}
}
