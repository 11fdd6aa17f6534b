package searchql

// Parse parses a search query into its top-level AST nodes.
// It never fails: malformed input yields the best partial tree, and an empty
// query yields no nodes.
func Parse(query string) []Node {
	return NewParser(NewTokenizer(NewStringCursor(query))).ParseAll()
}

// ParseBytes is like Parse but reads the query from a byte buffer.
func ParseBytes(query []byte) []Node {
	return NewParser(NewTokenizer(NewByteCursor(query))).ParseAll()
}
