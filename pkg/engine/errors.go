package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies engine errors by how the caller should react.
type Kind int

const (
	// KindProtocol covers transport failures and malformed responses.
	KindProtocol Kind = iota

	// KindSyntax means the statement text itself was rejected. When the
	// text came from a synthesized heuristic expression this is fatal.
	KindSyntax

	// KindSemantic means the statement parsed but cannot be applied
	// (constraint violations, missing data, cardinality). The negotiation
	// session can roll back to a savepoint and try something else.
	KindSemantic

	// KindStateMismatch means concurrent DDL invalidated the session; the
	// whole negotiation must restart from scratch.
	KindStateMismatch
)

// Error is an error reported by the engine, tagged with the engine's error
// type name.
type Error struct {
	Kind    Kind
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// classify maps an engine error type name (e.g. "errors::EdgeQLSyntaxError")
// onto a Kind.
func classify(name string) Kind {
	switch {
	case strings.HasSuffix(name, "SyntaxError"):
		return KindSyntax
	case strings.Contains(name, "StateMismatch"), strings.Contains(name, "TransactionConflict"):
		return KindStateMismatch
	case strings.HasSuffix(name, "Error"):
		return KindSemantic
	default:
		return KindProtocol
	}
}

// IsSyntax reports whether err is an engine syntax error.
func IsSyntax(err error) bool {
	return isKind(err, KindSyntax)
}

// IsSemantic reports whether err is an engine semantic error.
func IsSemantic(err error) bool {
	return isKind(err, KindSemantic)
}

// IsStateMismatch reports whether err means the negotiation session was
// invalidated by concurrent DDL.
func IsStateMismatch(err error) bool {
	return isKind(err, KindStateMismatch)
}

func isKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
