package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lineagedb/lineage/pkg/consts"
)

type (
	// CurrentMigration is the engine's view of an in-progress migration
	// session, as reported by DESCRIBE CURRENT MIGRATION.
	CurrentMigration struct {
		// Complete is true once every difference between the recorded
		// schema and the target schema has been confirmed.
		Complete bool `json:"complete"`

		// Parent is the revision this session builds on ("initial"
		// when the engine has no migrations).
		Parent string `json:"parent"`

		// Confirmed holds the statements accepted so far, in order.
		Confirmed []string `json:"confirmed"`

		// Proposed is the next suggested step, nil when the engine has
		// nothing (more) to offer.
		Proposed *Proposal `json:"proposed"`
	}

	// Proposal is one suggested migration step.
	Proposal struct {
		Statements []ProposedStatement `json:"statements"`

		// Confidence is the engine's estimate, in [0, 1], that the
		// proposal matches the user's intent.
		Confidence float64 `json:"confidence"`

		// Prompt is the human-readable question for interactive mode.
		Prompt string `json:"prompt"`

		// PromptID identifies the kind of change; once a user approves
		// a prompt id, later proposals with the same id are
		// auto-approved within the session.
		PromptID string `json:"prompt_id"`
	}

	// ProposedStatement is a statement within a proposal. The text may
	// contain `\(name)` placeholders that must be filled from
	// RequiredUserInput before execution.
	ProposedStatement struct {
		Text              string              `json:"text"`
		RequiredUserInput []RequiredUserInput `json:"required_user_input"`
	}

	// RequiredUserInput describes one placeholder the engine cannot fill
	// itself.
	RequiredUserInput struct {
		// Name is the placeholder name referenced as `\(name)`.
		Name string `json:"placeholder"`

		// Prompt is the question shown to the user.
		Prompt string `json:"prompt"`

		// Type is the EdgeQL type the expression must produce, when
		// known.
		Type string `json:"type"`

		// PointerName is the property or link the expression fills or
		// converts, when the change concerns one.
		PointerName string `json:"pointer_name"`

		// OldTypeIsObject and NewTypeIsObject distinguish scalar from
		// object types on either side of a cast; nil when unknown.
		OldTypeIsObject *bool `json:"old_type_is_object"`
		NewTypeIsObject *bool `json:"new_type_is_object"`
	}

	// Revision is one entry of the engine's recorded migration log.
	Revision struct {
		ID      string   `json:"name"`
		Parents []string `json:"parents"`
		Script  string   `json:"script"`
		Message string   `json:"message"`
	}
)

// Placeholders returns the names the statement needs values for.
func (s *ProposedStatement) Placeholders() []string {
	names := make([]string, len(s.RequiredUserInput))
	for i, input := range s.RequiredUserInput {
		names[i] = input.Name
	}

	return names
}

// StartMigration opens a negotiation session towards the given schema text
// (the concatenated declarative schema fragments).
func StartMigration(ctx context.Context, c Conn, schema string) error {
	var sb strings.Builder
	sb.WriteString("START MIGRATION TO {\n")
	sb.WriteString(schema)
	if !strings.HasSuffix(schema, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("};")

	return c.Execute(ctx, sb.String())
}

// DescribeCurrentMigration fetches the engine's view of the open session.
func DescribeCurrentMigration(ctx context.Context, c Conn) (*CurrentMigration, error) {
	var current CurrentMigration
	if err := c.QueryJSON(ctx, "DESCRIBE CURRENT MIGRATION AS JSON;", &current); err != nil {
		return nil, err
	}

	return &current, nil
}

// RejectProposed tells the engine to come up with a different proposal.
func RejectProposed(ctx context.Context, c Conn) error {
	return c.Execute(ctx, "ALTER CURRENT MIGRATION REJECT PROPOSED;")
}

// AbortMigration closes the negotiation session, discarding all progress.
func AbortMigration(ctx context.Context, c Conn) error {
	return c.Execute(ctx, "ABORT MIGRATION;")
}

// StartMigrationRewrite opens a rewrite session: the engine replays the whole
// recorded history and offers it back as a single migration onto "initial".
func StartMigrationRewrite(ctx context.Context, c Conn) error {
	return c.Execute(ctx, "START MIGRATION REWRITE;")
}

// AbortMigrationRewrite closes a rewrite session without committing it.
func AbortMigrationRewrite(ctx context.Context, c Conn) error {
	return c.Execute(ctx, "ABORT MIGRATION REWRITE;")
}

// DeclareSavepoint marks the current session state under the given name.
func DeclareSavepoint(ctx context.Context, c Conn, name string) error {
	return c.Execute(ctx, fmt.Sprintf("DECLARE SAVEPOINT %s;", name))
}

// RollbackToSavepoint restores the session state marked under name.
func RollbackToSavepoint(ctx context.Context, c Conn, name string) error {
	return c.Execute(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s;", name))
}

// ReleaseSavepoint discards the mark without restoring anything.
func ReleaseSavepoint(ctx context.Context, c Conn, name string) error {
	return c.Execute(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s;", name))
}

// MigrationHistory reads the engine's recorded migration log, ordered from
// the root.
func MigrationHistory(ctx context.Context, c Conn) ([]Revision, error) {
	// The introspection shape nests parents as objects.
	var rows []struct {
		Name    string `json:"name"`
		Parents []struct {
			Name string `json:"name"`
		} `json:"parents"`
		Script  string `json:"script"`
		Message string `json:"message"`
	}

	err := c.QueryJSON(ctx, "SELECT schema::Migration { name, parents: { name }, script, message };", &rows)
	if err != nil {
		return nil, err
	}

	revisions := make([]Revision, len(rows))
	for i, r := range rows {
		parents := make([]string, len(r.Parents))
		for j, p := range r.Parents {
			parents[j] = p.Name
		}
		revisions[i] = Revision{ID: r.Name, Parents: parents, Script: r.Script, Message: r.Message}
	}

	return linearize(revisions)
}

// CurrentRevision returns the engine's latest applied revision id, or
// "initial" when no migrations are recorded.
func CurrentRevision(ctx context.Context, c Conn) (string, error) {
	history, err := MigrationHistory(ctx, c)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return consts.InitialRevision, nil
	}

	return history[len(history)-1].ID, nil
}

// linearize orders revisions into a single chain from "initial". A revision
// with multiple parents means the history was merged, which this tool does
// not support.
func linearize(revisions []Revision) ([]Revision, error) {
	byParent := make(map[string]Revision, len(revisions))
	for _, rev := range revisions {
		parent := consts.InitialRevision
		if len(rev.Parents) > 1 {
			return nil, &Error{
				Kind:    KindProtocol,
				Message: fmt.Sprintf("migration %s has multiple parents; merged histories are not supported, rebase instead", rev.ID),
			}
		}
		if len(rev.Parents) == 1 {
			parent = rev.Parents[0]
		}

		if prev, ok := byParent[parent]; ok {
			return nil, &Error{
				Kind:    KindProtocol,
				Message: fmt.Sprintf("migrations %s and %s share parent %s; the engine history is not linear", prev.ID, rev.ID, parent),
			}
		}
		byParent[parent] = rev
	}

	ordered := make([]Revision, 0, len(revisions))
	parent := consts.InitialRevision
	for len(ordered) < len(revisions) {
		rev, ok := byParent[parent]
		if !ok {
			return nil, &Error{
				Kind:    KindProtocol,
				Message: fmt.Sprintf("engine history has no migration continuing from %s", parent),
			}
		}

		ordered = append(ordered, rev)
		parent = rev.ID
	}

	return ordered, nil
}
