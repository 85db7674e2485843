package svf

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SVFLexer tokenizes Serial Vector Format files. Hex data is a single token,
// even when it spans lines, so scan values reach the grammar intact.
var SVFLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments: "!" or "//" to end of line
	{Name: "Comment", Pattern: `(?:!|//)[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s]+`},

	// Parenthesised hex scan data
	{Name: "Hex", Pattern: `\([\s0-9A-Fa-f]*\)`},
	// Any other parenthesised group (PIOMAP and PIO bodies)
	{Name: "Group", Pattern: `\([^)]*\)`},

	// Decimal or real numbers, e.g. 32, 1.0E-3, 2E6
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]*)?(?:[eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Semicolon", Pattern: `;`},
})
