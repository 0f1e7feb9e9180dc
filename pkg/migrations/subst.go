package migrations

import (
	"strings"

	"github.com/pkg/errors"
)

// Subst replaces every `\(name)` placeholder in a proposed statement with the
// expression collected for that name. A placeholder with no collected value
// is an internal error: the caller is expected to have gathered a value for
// every required input before substituting.
func Subst(text string, values map[string]string) (string, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return "", errors.Wrap(err, "invalid proposed statement")
	}

	var sb strings.Builder
	last := 0

	for _, tok := range tokens {
		if tok.Type != symPlaceholder {
			continue
		}

		// Token text is `\(name)`.
		name := tok.Value[2 : len(tok.Value)-1]
		value, ok := values[name]
		if !ok {
			return "", errors.Errorf("internal error: no value for placeholder %q", name)
		}

		sb.WriteString(text[last:tok.Pos.Offset])
		sb.WriteString(value)
		last = tok.Pos.Offset + len(tok.Value)
	}

	sb.WriteString(text[last:])
	return sb.String(), nil
}
