package migrate

import (
	"strings"

	"github.com/lineagedb/lineage/pkg/engine"
)

// defaultExpression synthesizes a plausible expression for a required user
// input, keyed off the placeholder name. The heuristics are advisory: an
// empty result means nothing sensible could be offered, and any engine
// rejection of a synthesized expression falls back to other handling rather
// than being fought over.
//
//   - fill_*: the empty set, typed when the target type is known. Satisfies
//     "fill existing rows" prompts for optional data.
//   - cast_*: a direct cast for scalar-to-scalar changes, a type filter for
//     object-to-object changes. Mixed scalar/object casts have no general
//     answer.
//   - conv_*: pick one element when a multi-value pointer collapses to a
//     single one.
func defaultExpression(input engine.RequiredUserInput) string {
	name := input.Name

	switch {
	case strings.Contains(name, "fill"):
		if input.Type != "" {
			return "<" + input.Type + ">{}"
		}
		return "{}"

	case strings.Contains(name, "cast"):
		if input.OldTypeIsObject == nil || input.NewTypeIsObject == nil ||
			input.Type == "" || input.PointerName == "" {
			return ""
		}

		switch {
		case !*input.OldTypeIsObject && !*input.NewTypeIsObject:
			return "<" + input.Type + ">." + input.PointerName
		case *input.OldTypeIsObject && *input.NewTypeIsObject:
			return "." + input.PointerName + "[IS " + input.Type + "]"
		default:
			return ""
		}

	case strings.Contains(name, "conv"):
		if input.PointerName == "" {
			return ""
		}
		return "(SELECT ." + input.PointerName + " LIMIT 1)"
	}

	return ""
}
