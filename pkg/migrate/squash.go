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

// SquashResult describes the files Squash wrote.
type SquashResult struct {
	// Name is the squash migration's file name ("00001-...").
	Name string

	// ID is the squash migration's id.
	ID string

	// FixupName is the fixup file migrating the old tip onto ID; empty
	// when the user declined one.
	FixupName string

	// Pruned lists fixup files deleted because no upgrade path uses them
	// anymore.
	Pruned []string
}

// Squash collapses the whole migration chain into a single migration
// capturing the current schema, plus a fixup that carries instances sitting
// on the old tip over to the new revision.
//
// The engine does the capturing: inside a START MIGRATION REWRITE session
// the recorded history is replayed and offered back as one migration onto
// "initial". Only the text is wanted, so the rewrite is always aborted.
// The directory replacement is staged the same way as a rebase: old files
// are renamed aside first and deleted only after the new ones are in place.
func Squash(ctx context.Context, conn engine.Conn, proj *project.Project, opts Options) (*SquashResult, error) {
	opts = withDefaults(opts)

	if err := proj.EnsureDirs(); err != nil {
		return nil, err
	}

	chain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
	if err != nil {
		return nil, err
	}

	if len(chain) == 0 {
		fmt.Fprintln(opts.Out, "No migrations exist. Nothing to do.")
		return nil, nil
	}
	if len(chain) == 1 {
		fmt.Fprintln(opts.Out, "Only a single revision exists. Nothing to do.")
		return nil, nil
	}

	oldTip := migrations.Tip(chain)

	dbRev, err := engine.CurrentRevision(ctx, conn)
	if err != nil {
		return nil, err
	}
	if dbRev != oldTip {
		return nil, errors.Wrapf(ErrCannotResolve,
			"the database is at revision %s but the filesystem chain ends at %s; apply pending migrations before squashing",
			dbRev, oldTip)
	}

	schema, err := proj.SchemaText()
	if err != nil {
		return nil, err
	}

	if !opts.NonInteractive {
		if err := confirmSquash(opts, dbRev); err != nil {
			return nil, err
		}
	}

	// Capture the whole history as one migration.
	squashID, squashStatements, err := captureSquash(ctx, conn, schema, opts)
	if err != nil {
		return nil, err
	}

	// The fixup carries instances from the old tip onto the squashed
	// revision; when the schema did not diverge it comes out empty, which
	// still records that the two revisions are equivalent.
	writeFixup := true
	if !opts.NonInteractive {
		writeFixup, err = opts.Prompter.Confirm(
			"Create a fixup so instances on the current revision can follow the squash?", true)
		if err != nil {
			return nil, err
		}
	}

	var fixupID string
	var fixupStatements []string
	if writeFixup {
		desc, err := Negotiate(ctx, conn, schema, oldTip, opts)
		if err != nil {
			return nil, err
		}

		for _, stmt := range desc.Confirmed {
			fixupStatements = append(fixupStatements, migrations.NormalizeStatement(stmt))
		}

		if fixupID, err = migrations.ComputeID(oldTip, fixupStatements); err != nil {
			return nil, err
		}
	}

	result, err := replaceWithSquash(proj, chain, squashReplacement{
		id:              squashID,
		statements:      squashStatements,
		message:         opts.Message,
		oldTip:          oldTip,
		fixupID:         fixupID,
		fixupStatements: fixupStatements,
		writeFixup:      writeFixup,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Squashed into"), result.Name)
	if result.FixupName != "" {
		fmt.Fprintf(opts.Out, "%s %s\n", color.GreenString("Wrote fixup"), result.FixupName)
	}
	fmt.Fprintln(opts.Out, "Remember to commit the updated dbschema directory to version control.")

	return result, nil
}

// captureSquash runs the rewrite session and returns the one-migration
// representation of the whole schema.
func captureSquash(ctx context.Context, conn engine.Conn, schema string, opts Options) (id string, statements []string, err error) {
	if err := engine.StartMigrationRewrite(ctx, conn); err != nil {
		return "", nil, errors.Wrap(err, "failed to start the rewrite session")
	}

	defer func() {
		// Only the text is wanted; the rewrite itself is never committed.
		if abortErr := engine.AbortMigrationRewrite(context.WithoutCancel(ctx), conn); abortErr != nil && err == nil {
			err = errors.Wrap(abortErr, "failed to close the rewrite session")
		}
	}()

	desc, err := Negotiate(ctx, conn, schema, consts.InitialRevision, opts)
	if err != nil {
		return "", nil, err
	}

	for _, stmt := range desc.Confirmed {
		statements = append(statements, migrations.NormalizeStatement(stmt))
	}

	id, err = migrations.ComputeID(consts.InitialRevision, statements)
	if err != nil {
		return "", nil, err
	}

	return id, statements, nil
}

type squashReplacement struct {
	id              string
	statements      []string
	message         string
	oldTip          string
	fixupID         string
	fixupStatements []string
	writeFixup      bool
}

// replaceWithSquash swaps the whole chain (and obsolete fixups) for the
// squash migration and its fixup in one staged operation.
func replaceWithSquash(proj *project.Project, chain []*migrations.File, r squashReplacement) (*SquashResult, error) {
	fixups, err := migrations.ReadFixups(os.DirFS(proj.FixupsDir()), true)
	if err != nil {
		return nil, err
	}

	// Fixup files that can still reach the squashed revision stay; the
	// new fixup participates so chains through the old tip survive.
	all := fixups
	if r.writeFixup {
		all = append(all, &migrations.File{
			Name:        migrations.FixupFilename(r.oldTip, r.id),
			FixupTarget: r.id,
			Migration:   migrations.Migration{ID: r.fixupID, Parent: r.oldTip},
		})
	}
	reachable := migrations.ReachableFixups(all, map[string]struct{}{r.id: {}})

	var swap migrations.StagedSwap
	for _, f := range chain {
		if err := swap.Stage(filepath.Join(proj.MigrationsDir(), f.Name)); err != nil {
			return nil, swap.Rollback(err)
		}
	}

	result := &SquashResult{ID: r.id}
	for _, f := range fixups {
		if _, keep := reachable[f.Name]; keep {
			continue
		}
		if err := swap.Stage(filepath.Join(proj.FixupsDir(), f.Name)); err != nil {
			return nil, swap.Rollback(err)
		}
		result.Pruned = append(result.Pruned, f.Name)
	}

	name, err := migrations.Write(proj.MigrationsDir(), 1, r.id, consts.InitialRevision, r.message, r.statements)
	if err != nil {
		return nil, swap.Rollback(err)
	}
	result.Name = name

	if r.writeFixup {
		fixupName, err := migrations.WriteFixup(proj.FixupsDir(), r.fixupID, r.oldTip, r.id, "", r.fixupStatements)
		if err != nil {
			return nil, swap.Rollback(err)
		}
		result.FixupName = fixupName
	}

	if err := swap.Commit(); err != nil {
		return nil, err
	}

	return result, nil
}

func confirmSquash(opts Options, dbRev string) error {
	fmt.Fprintf(opts.Out, "Current database revision is: %s\n", color.GreenString(dbRev))
	fmt.Fprintln(opts.Out, "Squashing is non-destructive, but might require manual work if done incorrectly.")
	fmt.Fprintln(opts.Out, "")
	fmt.Fprintln(opts.Out, "Checklist before squashing:")
	fmt.Fprintln(opts.Out, "  1. Ensure the schema directory is committed to version control.")
	fmt.Fprintln(opts.Out, "  2. Ensure other users of the database are on the revision above,")
	fmt.Fprintln(opts.Out, "     or can recreate their databases from scratch.")
	fmt.Fprintln(opts.Out, "  3. Merge version control branches that contain schema changes if possible.")
	fmt.Fprintln(opts.Out, "")

	proceed, err := opts.Prompter.Confirm("Proceed?", false)
	if err != nil {
		return err
	}
	if !proceed {
		return ErrAborted
	}

	return nil
}
