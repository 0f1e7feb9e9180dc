package migrations

import "strings"

// SplitStatements splits a script into its top-level statements, honouring
// brace nesting, strings, and comments. Trailing semicolons are dropped.
// Engine-recorded migration scripts arrive as one text blob; splitting them
// before writing keeps the stored statement structure identical to what the
// reader will parse, which keeps the content hash stable.
func SplitStatements(script string) ([]string, error) {
	tokens, err := Tokenize(script)
	if err != nil {
		return nil, err
	}

	var statements []string
	depth := 0
	start := -1
	var end int

	flush := func() {
		if start >= 0 {
			statements = append(statements, strings.TrimSpace(script[start:end]))
			start = -1
		}
	}

	for _, tok := range tokens {
		switch tok.Type {
		case symOpenBrace:
			depth++
		case symCloseBrace:
			depth--
		case symSemicolon:
			if depth == 0 {
				flush()
				continue
			}
		}

		if start < 0 {
			start = tok.Pos.Offset
		}
		end = tok.Pos.Offset + len(tok.Value)
	}
	flush()

	return statements, nil
}
