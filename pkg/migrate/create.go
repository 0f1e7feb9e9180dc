// Package migrate implements the migration planners: creating a new
// migration by negotiating a schema diff with the engine, applying stored
// migrations, rebasing one branch's migrations onto another, and squashing a
// chain into a single migration.
package migrate

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/lineagedb/lineage/pkg/project"
	"github.com/lineagedb/lineage/pkg/prompt"
	"github.com/pkg/errors"
)

// SafeConfidence is the minimum engine confidence for accepting a proposal
// without asking anyone.
const SafeConfidence = 0.99999

var (
	// ErrNoChanges means the schema and the recorded migrations already
	// agree. Surfaced as its own exit code so scripts can tell "nothing
	// to do" from failure.
	ErrNoChanges = errors.New("no schema changes detected")

	// ErrCannotResolve means the migration needs human input that
	// non-interactive mode cannot supply.
	ErrCannotResolve = errors.New("migration could not be resolved automatically")

	// ErrAborted means the user quit the session; nothing was saved.
	ErrAborted = errors.New("migration aborted; no results were saved")
)

type (
	// Options configures Create.
	Options struct {
		// NonInteractive accepts only proposals at or above
		// SafeConfidence that need no user input.
		NonInteractive bool

		// AllowUnsafe lets non-interactive mode fall back to
		// heuristically synthesized expressions, treating any engine
		// rejection as a request for an alternative proposal.
		AllowUnsafe bool

		// AllowEmpty writes a migration even when nothing changed.
		AllowEmpty bool

		// Message is stored in the migration file, outside the
		// identity hash.
		Message string

		// Prompter drives interactive mode. Defaults to the terminal.
		Prompter prompt.Prompter

		// Out receives progress output. Defaults to os.Stdout.
		Out io.Writer
	}

	// Result describes the migration file Create wrote.
	Result struct {
		Name       string
		ID         string
		Parent     string
		Statements []string

		// Complete is false when the user chose to split, leaving
		// unconfirmed changes for a later migration.
		Complete bool
	}
)

// Create negotiates the difference between the project's declarative schema
// and the engine's recorded state, then writes the confirmed statements as
// the next migration in the chain.
//
// The negotiation happens inside an engine-side migration session that is
// always aborted afterwards; only the migration file persists. If concurrent
// DDL invalidates the session the whole negotiation restarts.
func Create(ctx context.Context, conn engine.Conn, proj *project.Project, opts Options) (*Result, error) {
	opts = withDefaults(opts)

	if err := proj.EnsureDirs(); err != nil {
		return nil, err
	}

	chain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
	if err != nil {
		return nil, err
	}
	tip := migrations.Tip(chain)

	dbRev, err := engine.CurrentRevision(ctx, conn)
	if err != nil {
		return nil, err
	}
	if dbRev != tip {
		return nil, errors.Errorf(
			"the database is at revision %s but the filesystem chain ends at %s; apply pending migrations first",
			dbRev, tip)
	}

	schema, err := proj.SchemaText()
	if err != nil {
		return nil, err
	}

	desc, err := Negotiate(ctx, conn, schema, tip, opts)
	if err != nil {
		return nil, err
	}

	statements := make([]string, 0, len(desc.Confirmed))
	for _, stmt := range desc.Confirmed {
		statements = append(statements, migrations.NormalizeStatement(stmt))
	}

	if len(statements) == 0 && !opts.AllowEmpty {
		return nil, ErrNoChanges
	}

	id, err := migrations.ComputeID(tip, statements)
	if err != nil {
		return nil, err
	}

	name, err := migrations.Write(proj.MigrationsDir(), len(chain)+1, id, tip, opts.Message, statements)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Created"), name)
	if !desc.Complete {
		fmt.Fprintln(opts.Out, color.YellowString("Further schema changes remain; run `lineage migration create` again for the next part."))
	}

	return &Result{
		Name:       name,
		ID:         id,
		Parent:     tip,
		Statements: statements,
		Complete:   desc.Complete,
	}, nil
}

func withDefaults(opts Options) Options {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Prompter == nil {
		opts.Prompter = prompt.New()
	}

	return opts
}

// Negotiate runs a full negotiation session on an already-positioned
// connection and returns the engine's final view. parent is the revision the
// session must build on; a different session parent means someone moved the
// database underneath us. Squash reuses this for its rewrite and fixup
// sessions, which is why it is exported separately from Create.
func Negotiate(ctx context.Context, conn engine.Conn, schema, parent string, opts Options) (*engine.CurrentMigration, error) {
	opts = withDefaults(opts)

	for {
		s := &session{conn: conn, opts: opts}

		desc, err := s.run(ctx, schema, parent)
		if err != nil {
			if engine.IsStateMismatch(err) {
				fmt.Fprintln(opts.Out, color.YellowString("Concurrent schema changes detected; restarting negotiation..."))
				continue
			}
			return nil, err
		}

		return desc, nil
	}
}

// session is one attempt at negotiating a migration. Savepoints mark the
// engine-side state before each accepted step; the approved set snapshotted
// with each savepoint makes "back" also forget approvals.
type session struct {
	conn       engine.Conn
	opts       Options
	savepoints []*savepoint
	counter    int
}

type savepoint struct {
	name     string
	approved map[string]struct{}
}

func (s *session) run(ctx context.Context, schema, parent string) (desc *engine.CurrentMigration, err error) {
	if err := engine.StartMigration(ctx, s.conn, schema); err != nil {
		return nil, errors.Wrap(err, "failed to start migration negotiation")
	}

	defer func() {
		// The session only ever produces text; the engine-side state is
		// always discarded, even on cancellation.
		if abortErr := engine.AbortMigration(context.WithoutCancel(ctx), s.conn); abortErr != nil && err == nil {
			err = errors.Wrap(abortErr, "failed to close the migration session")
		}
	}()

	first, err := engine.DescribeCurrentMigration(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	if first.Parent != parent {
		return nil, errors.Errorf(
			"the engine session builds on revision %s but %s was expected; was a migration applied concurrently?",
			first.Parent, parent)
	}

	if s.opts.NonInteractive {
		return s.nonInteractive(ctx)
	}

	return s.interactive(ctx)
}

func (s *session) interactive(ctx context.Context) (*engine.CurrentMigration, error) {
	if err := s.push(ctx); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		desc, err := engine.DescribeCurrentMigration(ctx, s.conn)
		if err != nil {
			return nil, err
		}

		if desc.Complete {
			return desc, nil
		}
		if desc.Proposed == nil {
			return nil, errors.Wrap(ErrCannotResolve,
				"the engine could not propose a next step; re-run and answer the prompts differently")
		}

		prop := desc.Proposed
		if s.isApproved(prop.PromptID) {
			if _, err := s.apply(ctx, prop); err != nil {
				return nil, err
			}
			continue
		}

		s.printStatements("The following statement(s) will be applied:", proposalTexts(prop))

		done := false
		for !done {
			choice, err := s.opts.Prompter.Choice(prop.Prompt)
			if err != nil {
				return nil, err
			}

			switch choice {
			case prompt.Yes:
				applied, err := s.apply(ctx, prop)
				if err != nil {
					return nil, err
				}
				if applied {
					// Approved after the apply so the approval lives
					// on the savepoint that going back pops.
					s.approve(prop.PromptID)
				}
				// A rolled-back step is offered and prompted again on
				// the next iteration.
				done = true

			case prompt.No:
				if err := engine.RejectProposed(ctx, s.conn); err != nil {
					return nil, err
				}
				done = true

			case prompt.List:
				s.printStatements("Proposed statement(s):", proposalTexts(prop))

			case prompt.Confirmed:
				s.printStatements("Confirmed so far:", desc.Confirmed)

			case prompt.Back:
				undone, err := s.back(ctx)
				if err != nil {
					return nil, err
				}
				if !undone {
					fmt.Fprintln(s.opts.Out, "No confirmed steps to undo yet.")
					continue
				}
				done = true

			case prompt.Split:
				return desc, nil

			case prompt.Quit:
				return nil, ErrAborted
			}
		}
	}
}

func (s *session) nonInteractive(ctx context.Context) (*engine.CurrentMigration, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		desc, err := engine.DescribeCurrentMigration(ctx, s.conn)
		if err != nil {
			return nil, err
		}

		if desc.Complete {
			return desc, nil
		}
		if desc.Proposed == nil {
			return nil, errors.Wrap(ErrCannotResolve, "the engine could not propose a next step")
		}

		prop := desc.Proposed
		inputs := requiredInputs(prop)

		if prop.Confidence >= SafeConfidence && inputs == 0 {
			// Safe to take as-is; any failure here is fatal.
			if err := s.execute(ctx, prop, nil); err != nil {
				return nil, err
			}
			continue
		}

		if !s.opts.AllowUnsafe {
			if inputs > 0 {
				return nil, errors.Wrapf(ErrCannotResolve,
					"the proposed step requires user input for %d placeholder(s); please run in interactive mode to confirm changes, or use `--allow-unsafe`",
					inputs)
			}
			return nil, errors.Wrapf(ErrCannotResolve,
				"the proposed step has confidence %v, below the safe threshold %v; please run in interactive mode to confirm changes, or use `--allow-unsafe`",
				prop.Confidence, SafeConfidence)
		}

		if err := s.push(ctx); err != nil {
			return nil, err
		}

		if values, ok := synthesizeDefaults(prop); ok {
			execErr := s.execute(ctx, prop, values)
			if execErr == nil {
				continue
			}
			if engine.IsSyntax(execErr) && len(values) > 0 {
				return nil, errors.Wrap(execErr,
					"a synthesized expression was rejected by the engine; run in interactive mode and provide the expression yourself")
			}
			if !engine.IsSemantic(execErr) && !engine.IsSyntax(execErr) {
				return nil, execErr
			}
			if err := s.rollback(ctx); err != nil {
				return nil, err
			}
		}

		// Nothing synthesizable or the attempt failed; ask for an
		// alternative proposal instead.
		if err := engine.RejectProposed(ctx, s.conn); err != nil {
			return nil, err
		}
	}
}

// apply collects expressions for the proposal's placeholders, substitutes
// them, and executes the statements. Engine rejections roll the session back
// to the last savepoint and withdraw the approval, reporting applied false
// so the step is offered again; only transport-level failures and
// synthesis-caused syntax errors are fatal.
func (s *session) apply(ctx context.Context, prop *engine.Proposal) (applied bool, err error) {
	values, err := s.collect(prop)
	if err != nil {
		return false, err
	}

	execErr := s.execute(ctx, prop, values)
	if execErr == nil {
		return true, s.push(ctx)
	}

	if engine.IsSemantic(execErr) || engine.IsSyntax(execErr) {
		fmt.Fprintf(s.opts.Out, "%s %v\n", color.RedString("Step failed:"), execErr)
		if err := s.rollback(ctx); err != nil {
			return false, err
		}
		s.unapprove(prop.PromptID)
		return false, nil
	}

	return false, execErr
}

// collect asks the user for every placeholder the proposal needs, offering
// synthesized defaults where a heuristic applies.
func (s *session) collect(prop *engine.Proposal) (map[string]string, error) {
	var values map[string]string

	for _, stmt := range prop.Statements {
		for _, input := range stmt.RequiredUserInput {
			if _, ok := values[input.Name]; ok {
				continue
			}

			question := input.Prompt
			if question == "" {
				question = fmt.Sprintf("Enter an expression for %s:", input.Name)
			}

			expr, err := s.opts.Prompter.Expression(input.Name, question, defaultExpression(input))
			if err != nil {
				return nil, err
			}

			if values == nil {
				values = make(map[string]string)
			}
			values[input.Name] = expr
		}
	}

	return values, nil
}

// synthesizeDefaults builds placeholder values from the heuristics alone; ok
// is false when some placeholder has no applicable heuristic.
func synthesizeDefaults(prop *engine.Proposal) (map[string]string, bool) {
	var values map[string]string

	for _, stmt := range prop.Statements {
		for _, input := range stmt.RequiredUserInput {
			if _, ok := values[input.Name]; ok {
				continue
			}

			expr := defaultExpression(input)
			if expr == "" {
				return nil, false
			}

			if values == nil {
				values = make(map[string]string)
			}
			values[input.Name] = expr
		}
	}

	return values, true
}

func (s *session) execute(ctx context.Context, prop *engine.Proposal, values map[string]string) error {
	for _, stmt := range prop.Statements {
		text := stmt.Text
		if len(stmt.RequiredUserInput) > 0 {
			substituted, err := migrations.Subst(text, values)
			if err != nil {
				return err
			}
			text = substituted
		}

		if err := s.conn.Execute(ctx, text); err != nil {
			return err
		}
	}

	return nil
}

func (s *session) push(ctx context.Context) error {
	s.counter++
	name := fmt.Sprintf("migration_%d", s.counter)

	if err := engine.DeclareSavepoint(ctx, s.conn, name); err != nil {
		return err
	}

	approved := make(map[string]struct{})
	if n := len(s.savepoints); n > 0 {
		maps.Copy(approved, s.savepoints[n-1].approved)
	}

	s.savepoints = append(s.savepoints, &savepoint{name: name, approved: approved})
	return nil
}

// rollback restores the engine state marked by the newest savepoint.
func (s *session) rollback(ctx context.Context) error {
	top := s.savepoints[len(s.savepoints)-1]
	return engine.RollbackToSavepoint(ctx, s.conn, top.name)
}

// back undoes the previously accepted step. It reports false when there is
// nothing to undo.
func (s *session) back(ctx context.Context) (bool, error) {
	if len(s.savepoints) < 2 {
		return false, nil
	}

	s.savepoints = s.savepoints[:len(s.savepoints)-1]
	return true, s.rollback(ctx)
}

func (s *session) isApproved(promptID string) bool {
	if promptID == "" || len(s.savepoints) == 0 {
		return false
	}

	_, ok := s.savepoints[len(s.savepoints)-1].approved[promptID]
	return ok
}

func (s *session) approve(promptID string) {
	if promptID == "" || len(s.savepoints) == 0 {
		return
	}

	s.savepoints[len(s.savepoints)-1].approved[promptID] = struct{}{}
}

func (s *session) unapprove(promptID string) {
	if len(s.savepoints) == 0 {
		return
	}

	delete(s.savepoints[len(s.savepoints)-1].approved, promptID)
}

func (s *session) printStatements(heading string, statements []string) {
	fmt.Fprintln(s.opts.Out, color.CyanString(heading))
	for _, stmt := range statements {
		for _, line := range strings.Split(strings.TrimRight(stmt, "\n"), "\n") {
			fmt.Fprintf(s.opts.Out, "    %s\n", line)
		}
	}
}

func proposalTexts(prop *engine.Proposal) []string {
	texts := make([]string, len(prop.Statements))
	for i, stmt := range prop.Statements {
		texts[i] = stmt.Text
	}

	return texts
}

func requiredInputs(prop *engine.Proposal) int {
	seen := make(map[string]struct{})
	for _, stmt := range prop.Statements {
		for _, name := range stmt.Placeholders() {
			seen[name] = struct{}{}
		}
	}

	return len(seen)
}
