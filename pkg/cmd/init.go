package cmd

import (
	"context"
	"fmt"

	"github.com/lineagedb/lineage/pkg/project"
	"github.com/urfave/cli/v3"
)

// initCmd creates the init command for scaffolding a new lineage project.
//
// The command lays down lineage.yaml, the dbschema directory with a starter
// schema fragment, and the migrations and fixups directories. It is
// idempotent: existing files are never overwritten, so running it in a
// populated project is safe.
//
// Example usage:
//
//	# Initialize the current directory
//	lineage init
//
//	# Initialize another directory
//	lineage --dir /path/to/project init
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Scaffold a new lineage project in the target directory",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := project.Initialize(".")
			if err != nil {
				return err
			}

			currentProject = proj
			fmt.Fprintf(cmd.Writer, "Initialized lineage project in %s\n", proj.Root())
			return nil
		},
	}
}
