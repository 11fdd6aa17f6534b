package engine

import (
	"strings"

	"github.com/coffersTech/nanosearch/internal/pkg/searchql"
)

// Query is a compiled search query.
// A query without any term matches every document.
type Query struct {
	nodes []searchql.Node
}

// CompileQuery parses q once so it can be matched against many documents.
func CompileQuery(q string) Query {
	if strings.TrimSpace(q) == "" {
		return Query{}
	}
	return Query{nodes: searchql.Parse(q)}
}

// Match reports whether text satisfies the query.
func (q Query) Match(text string) bool {
	if len(q.nodes) == 0 {
		return true
	}
	return searchql.MatchAny(q.nodes, text)
}

// Nodes returns the parsed top-level nodes.
func (q Query) Nodes() []searchql.Node {
	return q.nodes
}
