package il

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ILLexer tokenizes the textual IL form. Newlines are significant (they end
// instructions), so they get their own token kind instead of being folded
// into whitespace; a single NL token swallows blank lines and indentation.
var ILLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `;[^\n]*`, Action: nil},
		{Name: "NL", Pattern: `[\r\n][\r\n\t ]*`, Action: nil},
		{Name: "Whitespace", Pattern: `[ \t]+`, Action: nil},

		{Name: "Arrow", Pattern: `->`, Action: nil},
		{Name: "Temp", Pattern: `%[A-Za-z_][A-Za-z0-9_.]*`, Action: nil},
		{Name: "Label", Pattern: `\^[A-Za-z_][A-Za-z0-9_.]*`, Action: nil},
		{Name: "Global", Pattern: `@[A-Za-z_.][A-Za-z0-9_.]*`, Action: nil},

		{Name: "Float", Pattern: `-?[0-9]+\.[0-9]+([eE][+-]?[0-9]+)?|-?[0-9]+[eE][+-]?[0-9]+`, Action: nil},
		{Name: "Int", Pattern: `-?[0-9]+`, Action: nil},
		{Name: "String", Pattern: `"(\\.|[^"\\])*"`, Action: nil},

		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`, Action: nil},
		{Name: "Punct", Pattern: `[(){}:,=]`, Action: nil},
	},
})
