package migrations

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// edgeqlLexer tokenizes EdgeQL-ish source. It is deliberately loose: migration
// bodies are treated as opaque statement text, so the lexer only needs to be
// precise about the constructs that matter structurally (strings, identifiers,
// braces, semicolons) and about skippable trivia (whitespace, comments).
var edgeqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "DollarString", Pattern: `\$\$[^$]*(?:\$[^$]+)*\$\$`},
	{Name: "String", Pattern: `'(?:\\.|[^'\\])*'|"(?:\\.|[^"\\])*"`},
	{Name: "QuotedIdent", Pattern: "`[^`\n]+`"},
	{Name: "Placeholder", Pattern: `\\\([A-Za-z_][A-Za-z0-9_]*\)`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][-+]?\d+)?n?`},
	{Name: "Assign", Pattern: `:=`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "OpenBrace", Pattern: `{`},
	{Name: "CloseBrace", Pattern: `}`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Punct", Pattern: `[-+*/<>=!@.,:\[\]()|&%^~?$]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	symComment     = edgeqlLexer.Symbols()["Comment"]
	symWhitespace  = edgeqlLexer.Symbols()["Whitespace"]
	symString      = edgeqlLexer.Symbols()["String"]
	symDollar      = edgeqlLexer.Symbols()["DollarString"]
	symIdent       = edgeqlLexer.Symbols()["Ident"]
	symAssign      = edgeqlLexer.Symbols()["Assign"]
	symOpenBrace   = edgeqlLexer.Symbols()["OpenBrace"]
	symCloseBrace  = edgeqlLexer.Symbols()["CloseBrace"]
	symSemicolon   = edgeqlLexer.Symbols()["Semicolon"]
	symPlaceholder = edgeqlLexer.Symbols()["Placeholder"]
)

// Tokenize lexes src into a token stream with trivia (whitespace and
// comments) removed. The returned slice never includes the EOF token.
//
// Every consumer of migration text goes through this function: the identity
// hasher, the file grammar, and the placeholder expression validator. Sharing
// one tokenizer is what makes a written file hash back to the same id it was
// written with, regardless of formatting.
func Tokenize(src string) ([]lexer.Token, error) {
	lx, err := edgeqlLexer.Lex("", strings.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize")
	}

	all, err := lexer.ConsumeAll(lx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize")
	}

	tokens := make([]lexer.Token, 0, len(all))
	for _, tok := range all {
		if tok.EOF() || tok.Type == symComment || tok.Type == symWhitespace {
			continue
		}
		tokens = append(tokens, tok)
	}

	return tokens, nil
}
