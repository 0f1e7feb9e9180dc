package migrate_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/prompt"
	"github.com/stretchr/testify/require"
)

// fakeEngine simulates the engine's negotiation protocol: it serves queued
// proposal sets (one per START MIGRATION), tracks confirmed statements,
// honours savepoints, rejections, and rewrite sessions, and returns scripted
// errors for chosen statements.
type fakeEngine struct {
	t *testing.T

	// history is the recorded migration log.
	history []engine.Revision

	// sessions queues one proposal set per START MIGRATION, in order.
	sessions [][]*engine.Proposal

	// execErrs maps statement text to errors returned on successive
	// executions of that statement.
	execErrs map[string][]error

	executed []string

	inMigration bool
	inRewrite   bool
	sessionIdx  int
	proposals   []*engine.Proposal
	propIdx     int
	stmtDone    int
	confirmed   []string
	savepoints  map[string]sessionState
}

type sessionState struct {
	propIdx   int
	stmtDone  int
	confirmed []string
}

func newFakeEngine(t *testing.T, history []engine.Revision, sessions ...[]*engine.Proposal) *fakeEngine {
	return &fakeEngine{
		t:          t,
		history:    history,
		sessions:   sessions,
		execErrs:   make(map[string][]error),
		savepoints: make(map[string]sessionState),
	}
}

func (f *fakeEngine) failWith(statement string, errs ...error) {
	f.execErrs[statement] = append(f.execErrs[statement], errs...)
}

func (f *fakeEngine) Execute(_ context.Context, query string) error {
	f.executed = append(f.executed, query)

	switch {
	case strings.HasPrefix(query, "START MIGRATION TO"):
		require.Less(f.t, f.sessionIdx, len(f.sessions), "unexpected START MIGRATION")
		f.inMigration = true
		f.proposals = f.sessions[f.sessionIdx]
		f.sessionIdx++
		f.propIdx, f.stmtDone, f.confirmed = 0, 0, nil
		f.savepoints = make(map[string]sessionState)
		return f.scriptedErr(query)

	case query == "ABORT MIGRATION;":
		f.inMigration = false
		return nil

	case query == "START MIGRATION REWRITE;":
		f.inRewrite = true
		return nil

	case query == "ABORT MIGRATION REWRITE;":
		f.inRewrite = false
		return nil

	case query == "ALTER CURRENT MIGRATION REJECT PROPOSED;":
		f.propIdx++
		f.stmtDone = 0
		return nil

	case strings.HasPrefix(query, "DECLARE SAVEPOINT "):
		f.savepoints[savepointName(query)] = f.snapshot()
		return nil

	case strings.HasPrefix(query, "ROLLBACK TO SAVEPOINT "):
		state, ok := f.savepoints[savepointName(query)]
		require.True(f.t, ok, "rollback to undeclared savepoint: %s", query)
		f.restore(state)
		return nil

	case strings.HasPrefix(query, "RELEASE SAVEPOINT "):
		delete(f.savepoints, savepointName(query))
		return nil
	}

	// A migration statement.
	if err := f.scriptedErr(query); err != nil {
		return err
	}

	if f.inMigration && f.propIdx < len(f.proposals) {
		f.confirmed = append(f.confirmed, query)
		f.stmtDone++
		if f.stmtDone >= len(f.proposals[f.propIdx].Statements) {
			f.propIdx++
			f.stmtDone = 0
		}
	}

	return nil
}

func (f *fakeEngine) QueryJSON(_ context.Context, query string, out any) error {
	switch {
	case strings.HasPrefix(query, "DESCRIBE CURRENT MIGRATION"):
		return reencode(f.describe(), out)

	case strings.HasPrefix(query, "SELECT schema::Migration"):
		type parentRef struct {
			Name string `json:"name"`
		}
		type row struct {
			Name    string      `json:"name"`
			Parents []parentRef `json:"parents"`
			Script  string      `json:"script"`
			Message string      `json:"message"`
		}

		rows := make([]row, len(f.history))
		for i, rev := range f.history {
			parents := make([]parentRef, len(rev.Parents))
			for j, p := range rev.Parents {
				parents[j] = parentRef{Name: p}
			}
			rows[i] = row{Name: rev.ID, Parents: parents, Script: rev.Script, Message: rev.Message}
		}

		return reencode(rows, out)
	}

	f.t.Fatalf("unexpected query: %s", query)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) describe() *engine.CurrentMigration {
	parent := "initial"
	if !f.inRewrite && len(f.history) > 0 {
		parent = f.history[len(f.history)-1].ID
	}

	desc := &engine.CurrentMigration{
		Parent:    parent,
		Confirmed: append([]string(nil), f.confirmed...),
		Complete:  f.propIdx >= len(f.proposals),
	}
	if !desc.Complete {
		desc.Proposed = f.proposals[f.propIdx]
	}

	return desc
}

func (f *fakeEngine) scriptedErr(query string) error {
	errs := f.execErrs[query]
	if len(errs) == 0 {
		return nil
	}

	f.execErrs[query] = errs[1:]
	return errs[0]
}

func (f *fakeEngine) snapshot() sessionState {
	return sessionState{
		propIdx:   f.propIdx,
		stmtDone:  f.stmtDone,
		confirmed: append([]string(nil), f.confirmed...),
	}
}

func (f *fakeEngine) restore(state sessionState) {
	f.propIdx = state.propIdx
	f.stmtDone = state.stmtDone
	f.confirmed = append([]string(nil), state.confirmed...)
}

func savepointName(query string) string {
	fields := strings.Fields(strings.TrimSuffix(query, ";"))
	return fields[len(fields)-1]
}

func reencode(value, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

// proposal builds a simple single-statement proposal.
func proposal(text, promptID string, confidence float64, inputs ...engine.RequiredUserInput) *engine.Proposal {
	return &engine.Proposal{
		Statements: []engine.ProposedStatement{{Text: text, RequiredUserInput: inputs}},
		Confidence: confidence,
		Prompt:     "Apply this change?",
		PromptID:   promptID,
	}
}

// scriptedPrompter replays queued answers.
type scriptedPrompter struct {
	t        *testing.T
	choices  []prompt.Choice
	exprs    []string
	confirms []bool
}

func (p *scriptedPrompter) Choice(string) (prompt.Choice, error) {
	require.NotEmpty(p.t, p.choices, "unexpected choice prompt")
	choice := p.choices[0]
	p.choices = p.choices[1:]
	return choice, nil
}

func (p *scriptedPrompter) Expression(_, _, deflt string) (string, error) {
	require.NotEmpty(p.t, p.exprs, "unexpected expression prompt")
	expr := p.exprs[0]
	p.exprs = p.exprs[1:]
	if expr == "" {
		return deflt, nil
	}
	return expr, nil
}

func (p *scriptedPrompter) Confirm(string, bool) (bool, error) {
	require.NotEmpty(p.t, p.confirms, "unexpected confirmation prompt")
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer, nil
}
