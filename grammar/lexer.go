package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var ScriptLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `#[^\n]*`, nil},

		// Literals (float before integer, order matters)
		{"Float", `[0-9]+\.[0-9]*`, nil},
		{"Integer", `[0-9]+`, nil},

		// Identifiers
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Operators
		{"Operator", `[-+*/%]`, nil},

		// Punctuation
		{"Punctuation", `[\[\]():,=]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
