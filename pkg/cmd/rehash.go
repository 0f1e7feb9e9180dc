package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/urfave/cli/v3"
)

// rehashCmd creates the migration rehash command, recomputing every
// migration id in the chain after manual edits.
//
// Editing a migration file by hand invalidates its content hash and, through
// the parent links, the hash of everything after it. The rehash pass walks
// the chain from the root, rewrites each file's recorded id (and its
// parent reference) to match the content, and renames files whose id prefix
// changed.
//
// Databases already on a rewritten revision will no longer match the chain;
// prefer creating a new migration over editing an applied one.
//
// Example usage:
//
//	lineage migration rehash
func rehashCmd() *cli.Command {
	return &cli.Command{
		Name:  "rehash",
		Usage: "Recompute migration ids after manual edits",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := requireProject()
			if err != nil {
				return err
			}

			changed, err := migrations.FixChainIDs(proj.MigrationsDir())
			if err != nil {
				return err
			}

			if len(changed) == 0 {
				fmt.Fprintln(cmd.Writer, "All migration ids already match their content.")
				return nil
			}

			for old, updated := range changed {
				fmt.Fprintf(cmd.Writer, "%s %s -> %s\n", color.GreenString("Rehashed"), old, updated)
			}
			fmt.Fprintf(cmd.Writer, "Updated %d migration(s).\n", len(changed))
			return nil
		},
	}
}
