package cmd

import (
	"context"

	"github.com/lineagedb/lineage/pkg/migrate"
	"github.com/urfave/cli/v3"
)

// createCmd creates the migration create command.
//
// The command starts a negotiation session against the engine: the engine
// diffs the declarative schema in dbschema/ against its recorded history and
// proposes migration steps, which are confirmed interactively or, with
// --non-interactive, accepted automatically when the engine is confident
// enough. The confirmed statements are written as the next file in the
// migration chain; the database itself is never modified.
//
// Command flags:
//   - --non-interactive: accept only proposals the engine is certain about
//   - --allow-unsafe: with --non-interactive, fall back to synthesized
//     expressions for required input instead of failing
//   - --allow-empty: write a migration file even when nothing changed
//   - --squash: collapse the whole chain into a single migration instead
//   - --message, -m: free-form description stored in the file
//
// Exit codes:
//   - 4 when the schema and the recorded history already agree
//   - 3 when the migration needs input non-interactive mode cannot supply
//
// Example usage:
//
//	# Interactive session against the configured engine
//	lineage migration create
//
//	# CI-safe: fail instead of guessing
//	lineage migration create --non-interactive
//
//	# Collapse the chain after years of increments
//	lineage migration create --squash
func createCmd() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Negotiate schema changes and write the next migration",
		Flags: append(engineFlags(),
			&cli.BoolFlag{
				Name:  "non-interactive",
				Usage: "Accept only proposals at or above the safe confidence threshold",
			},
			&cli.BoolFlag{
				Name:  "allow-unsafe",
				Usage: "With --non-interactive, synthesize expressions for required input",
			},
			&cli.BoolFlag{
				Name:  "allow-empty",
				Usage: "Write a migration even when no changes were detected",
			},
			&cli.BoolFlag{
				Name:  "squash",
				Usage: "Collapse the whole chain into a single migration",
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Description stored in the migration file",
			},
		),
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

			opts := migrate.Options{
				NonInteractive: cmd.Bool("non-interactive"),
				AllowUnsafe:    cmd.Bool("allow-unsafe"),
				AllowEmpty:     cmd.Bool("allow-empty"),
				Message:        cmd.String("message"),
				Out:            cmd.Writer,
			}

			if cmd.Bool("squash") {
				_, err := migrate.Squash(ctx, conn, proj, opts)
				return err
			}

			_, err = migrate.Create(ctx, conn, proj, opts)
			return err
		},
	}
}
