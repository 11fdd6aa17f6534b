/*
Package searchql parses human-written search queries and evaluates them
against text.

# Query language

	apple                  bare word, matched as a case-insensitive substring
	"red apple" 'x y'      phrase, matched the same way including spaces
	apple OR pear          either side matches; | is the same operator
	apple AND pear         both sides match; & is the same operator
	(apple pear)           group; matches when any child matches
	apple pear             independent terms; matches when any term matches

AND and OR share one precedence level and associate to the left, so
"a OR b AND c" reads as "(a OR b) AND c". Keywords are recognised in any case,
but only at the start of a term that follows whitespace: "wordORword" and a
query starting with "OR" are plain words.

# Pipeline

A Cursor feeds a Tokenizer, which feeds a Parser:

	nodes := searchql.Parse("(apple OR banana) AND (orange OR lemon)")
	hits := searchql.Filter(nodes, []string{"apple orange", "grape"}, nil)

Parsing never fails. Unterminated phrases and groups close at the end of
input and dangling operators keep whatever operand they have.
*/
package searchql
