package cmd

import (
	"context"

	"github.com/lineagedb/lineage/pkg/migrate"
	"github.com/urfave/cli/v3"
)

// applyCmd creates the migration apply command.
//
// The command validates the stored chain, asks the engine which revision it
// is on, and executes every stored migration the engine is missing, in
// order. A database sitting on a revision that was squashed away is carried
// back onto the chain through fixup files first.
//
// Example usage:
//
//	# Bring the configured engine up to the chain tip
//	lineage migration apply
//
//	# Apply against a specific engine
//	lineage migration apply --url http://db.internal:5656 --database main
func applyCmd() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Apply stored migrations the database is missing",
		Flags: engineFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := requireProject()
			if err != nil {
				return err
			}

			conn, err := dial(cmd, proj)
			if err != nil {
				return err
			}
			defer conn.Close()

			_, err = migrate.Apply(ctx, conn, proj, migrate.Options{Out: cmd.Writer})
			return err
		},
	}
}
