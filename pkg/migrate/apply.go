package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/lineagedb/lineage/pkg/project"
	"github.com/pkg/errors"
)

// ApplyResult summarizes what Apply did.
type ApplyResult struct {
	// Applied lists the executed file names, fixups included, in order.
	Applied []string

	// Skipped counts chain migrations the engine already had.
	Skipped int
}

// Apply brings the engine up to the filesystem chain's tip by executing the
// stored migration scripts it is missing, in order.
//
// When the engine sits on a revision that is no longer part of the chain
// (after a squash), Apply follows fixup files to get back onto it: each
// fixup migrates one old revision to a retained one, and chains of fixups
// are followed transitively.
func Apply(ctx context.Context, conn engine.Conn, proj *project.Project, opts Options) (*ApplyResult, error) {
	opts = withDefaults(opts)

	chain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, errors.New("no migrations found; run `lineage migration create` first")
	}

	dbRev, err := engine.CurrentRevision(ctx, conn)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}

	// Position in the chain the engine corresponds to: index of the next
	// file to execute.
	next := chainIndex(chain, dbRev)

	if next < 0 {
		// The engine's revision is not on the chain; try fixups.
		fixups, err := migrations.ReadFixups(os.DirFS(proj.FixupsDir()), true)
		if err != nil {
			return nil, err
		}

		path := fixupPath(fixups, dbRev, chainIDs(chain))
		if path == nil {
			return nil, errors.Errorf(
				"the database is at revision %s, which is not in the migration history and has no fixup path back onto it",
				dbRev)
		}

		for _, f := range path {
			if err := executeFile(ctx, conn, filepath.Join(proj.FixupsDir(), f.Name)); err != nil {
				return nil, err
			}
			fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Applied fixup"), f.Name)
			result.Applied = append(result.Applied, f.Name)
		}

		next = chainIndex(chain, path[len(path)-1].FixupTarget)
		if next < 0 {
			return nil, errors.Errorf("fixup chain ended at revision %s, which is not in the migration history", path[len(path)-1].FixupTarget)
		}
	}

	result.Skipped = next

	for _, f := range chain[next:] {
		if err := executeFile(ctx, conn, filepath.Join(proj.MigrationsDir(), f.Name)); err != nil {
			return nil, err
		}
		fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Applied"), f.Name)
		result.Applied = append(result.Applied, f.Name)
	}

	if len(result.Applied) == 0 {
		fmt.Fprintln(opts.Out, "Everything is up to date.")
	}

	return result, nil
}

// chainIndex returns the index of the first unapplied file given the
// engine's revision: 0 for "initial", i+1 when the revision is chain[i], and
// -1 when the revision is not on the chain at all.
func chainIndex(chain []*migrations.File, rev string) int {
	if rev == consts.InitialRevision {
		return 0
	}

	for i, f := range chain {
		if f.ID == rev {
			return i + 1
		}
	}

	return -1
}

func chainIDs(chain []*migrations.File) map[string]struct{} {
	ids := make(map[string]struct{}, len(chain))
	for _, f := range chain {
		ids[f.ID] = struct{}{}
	}

	return ids
}

// fixupPath walks fixup edges forward from rev until a revision on the chain
// is reached, returning the fixups to execute in order. Nil when no path
// exists.
func fixupPath(fixups []*migrations.File, rev string, chain map[string]struct{}) []*migrations.File {
	bySource := make(map[string]*migrations.File, len(fixups))
	for _, f := range fixups {
		bySource[f.Parent] = f
	}

	var path []*migrations.File
	seen := map[string]struct{}{rev: {}}

	for {
		f, ok := bySource[rev]
		if !ok {
			return nil
		}

		path = append(path, f)
		rev = f.FixupTarget

		if _, onChain := chain[rev]; onChain {
			return path
		}
		if _, looped := seen[rev]; looped {
			return nil
		}
		seen[rev] = struct{}{}
	}
}

// executeFile runs a stored migration script (the full CREATE MIGRATION
// text) against the engine.
func executeFile(ctx context.Context, conn engine.Conn, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	if err := conn.Execute(ctx, string(data)); err != nil {
		return errors.Wrapf(err, "failed to apply %s", filepath.Base(path))
	}

	return nil
}
