package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/lineagedb/lineage/pkg/project"
	"github.com/pkg/errors"
)

type (
	// RebasePlan splits two engine histories at their last common
	// revision. The rebased chain is Base, then Target, then Source, with
	// the first migration of each tail reparented onto what precedes it.
	RebasePlan struct {
		// Base is the shared history up to the common ancestor.
		Base []engine.Revision

		// Target holds the migrations only the target branch has.
		Target []engine.Revision

		// Source holds the migrations to rebase on top.
		Source []engine.Revision
	}

	// flatRevision is one entry of the flattened rebased chain.
	flatRevision struct {
		rev            engine.Revision
		parentOverride string
	}
)

// ErrUpToDate means the target branch already contains every source
// migration; there is nothing to rebase.
var ErrUpToDate = errors.New("branch is already up-to-date")

// PlanRebase reads both engines' migration histories and finds the common
// ancestor. Histories must be linear; merged histories are rejected while
// reading.
func PlanRebase(ctx context.Context, source, target engine.Conn) (*RebasePlan, error) {
	sourceHist, err := engine.MigrationHistory(ctx, source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the source branch history")
	}

	targetHist, err := engine.MigrationHistory(ctx, target)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the target branch history")
	}

	if len(sourceHist) == 0 {
		return &RebasePlan{Target: targetHist}, nil
	}

	sourceIndex := make(map[string]int, len(sourceHist))
	for i, rev := range sourceHist {
		sourceIndex[rev.ID] = i
	}

	for i := len(targetHist) - 1; i >= 0; i-- {
		si, ok := sourceIndex[targetHist[i].ID]
		if !ok {
			continue
		}

		if i == len(targetHist)-1 {
			return nil, ErrUpToDate
		}

		return &RebasePlan{
			Base:   sourceHist[:si+1],
			Source: sourceHist[si+1:],
			Target: targetHist[i+1:],
		}, nil
	}

	// No common revision at all: the whole source history goes on top of
	// the whole target history.
	return &RebasePlan{Source: sourceHist, Target: targetHist}, nil
}

// PrintStatus summarizes the split for the user.
func (p *RebasePlan) PrintStatus(w io.Writer) {
	last := consts.InitialRevision
	if len(p.Base) > 0 {
		last = p.Base[len(p.Base)-1].ID
	}

	fmt.Fprintf(w, "Last common migration is %s\n", color.GreenString(last))
	fmt.Fprintf(w, "Since then, there are:\n- %s new %s on the target branch,\n- %s %s to rebase\n",
		color.GreenString("%d", len(p.Target)), pluralize("migration", len(p.Target)),
		color.GreenString("%d", len(p.Source)), pluralize("migration", len(p.Source)))
}

// flatten orders the rebased chain and assigns parent overrides where the
// tails are stitched together.
func (p *RebasePlan) flatten() []flatRevision {
	flat := make([]flatRevision, 0, len(p.Base)+len(p.Target)+len(p.Source))

	appendTail := func(tail []engine.Revision) {
		for i, rev := range tail {
			fr := flatRevision{rev: rev}
			if i == 0 && len(flat) > 0 {
				fr.parentOverride = flat[len(flat)-1].rev.ID
			}
			flat = append(flat, fr)
		}
	}

	appendTail(p.Base)
	appendTail(p.Target)
	appendTail(p.Source)

	return flat
}

// ExecuteRebase writes the flattened chain over the project's migrations
// directory and applies the rebased source migrations to the target engine.
//
// The chain is first materialized in a scratch directory where the rehash
// pass recomputes every id invalidated by reparenting. The real directory is
// then replaced through a staged swap: existing files are renamed aside,
// the new chain is copied in, and only then are the old files deleted, so a
// crash at any point leaves both generations on disk.
func ExecuteRebase(ctx context.Context, target engine.Conn, proj *project.Project, plan *RebasePlan, opts Options) error {
	opts = withDefaults(opts)

	if err := proj.EnsureDirs(); err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "lineage-rebase-")
	if err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}
	defer os.RemoveAll(scratch)

	flat := plan.flatten()
	for i, fr := range flat {
		parent := fr.parentOverride
		if parent == "" {
			parent = consts.InitialRevision
			if len(fr.rev.Parents) > 0 {
				parent = fr.rev.Parents[0]
			}
		}

		statements, err := migrations.SplitStatements(fr.rev.Script)
		if err != nil {
			return errors.Wrapf(err, "failed to split the script of %s", fr.rev.ID)
		}

		if _, err := migrations.Write(scratch, i+1, fr.rev.ID, parent, fr.rev.Message, statements); err != nil {
			return err
		}
	}

	// Reparenting invalidated ids from the first stitched tail onward.
	changed, err := migrations.FixChainIDs(scratch)
	if err != nil {
		return err
	}

	sourceIDs := make(map[string]struct{}, len(plan.Source))
	for _, rev := range plan.Source {
		id := rev.ID
		if newID, ok := changed[id]; ok {
			id = newID
		}
		sourceIDs[id] = struct{}{}
	}

	if err := replaceChainDir(proj.MigrationsDir(), scratch); err != nil {
		return err
	}

	newChain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
	if err != nil {
		return errors.Wrap(err, "rebased chain failed validation")
	}

	fmt.Fprintln(opts.Out, "\nMigrations to rebase:")
	for _, f := range newChain {
		if _, ok := sourceIDs[f.ID]; !ok {
			continue
		}

		if err := executeFile(ctx, target, filepath.Join(proj.MigrationsDir(), f.Name)); err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Applied"), f.Name)
	}

	return nil
}

// replaceChainDir swaps every migration file in dir for the chain files in
// scratch, staging the old generation until the new one is fully written.
func replaceChainDir(dir, scratch string) error {
	oldChain, err := migrations.ReadChain(os.DirFS(dir), false)
	if err != nil {
		return err
	}

	newChain, err := migrations.ReadChain(os.DirFS(scratch), false)
	if err != nil {
		return err
	}

	var swap migrations.StagedSwap
	for _, f := range oldChain {
		if err := swap.Stage(filepath.Join(dir, f.Name)); err != nil {
			return swap.Rollback(err)
		}
	}

	for _, f := range newChain {
		data, err := os.ReadFile(filepath.Join(scratch, f.Name))
		if err != nil {
			return swap.Rollback(errors.Wrapf(err, "failed to read %s", f.Name))
		}
		if err := migrations.WriteRaw(dir, f.Name, string(data)); err != nil {
			return swap.Rollback(err)
		}
	}

	return swap.Commit()
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}

	return word + "s"
}
