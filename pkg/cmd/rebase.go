package cmd

import (
	"context"
	"fmt"

	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrate"
	"github.com/lineagedb/lineage/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// rebaseCmd creates the migration rebase command.
//
// The command replays this branch's migrations on top of another branch's
// history: the two histories are split at their last common revision, the
// chain is rewritten as base, then the target branch's tail, then this
// branch's tail, and every id invalidated by the reparenting is recomputed.
// The rebased migrations are then applied to the target database.
//
// Command flags:
//   - --source-url: engine holding the history to rebase (required)
//   - --source-database: database (branch) on the source engine
//
// The regular engine flags select the target: the branch being rebased onto.
//
// Example usage:
//
//	# Rebase the feature branch's migrations onto main
//	lineage migration rebase --source-url http://localhost:5656 \
//	    --source-database feature --database main
func rebaseCmd() *cli.Command {
	return &cli.Command{
		Name:  "rebase",
		Usage: "Replay this branch's migrations onto another branch",
		Flags: append(engineFlags(),
			&cli.StringFlag{
				Name:     "source-url",
				Usage:    "Engine base URL of the branch to rebase",
				Required: true,
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:  "source-database",
				Usage: "Database (branch) on the source engine",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.BoolFlag{
				Name:  "non-interactive",
				Usage: "Skip the confirmation prompt",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := requireProject()
			if err != nil {
				return err
			}

			target, err := dial(cmd, proj)
			if err != nil {
				return err
			}
			defer target.Close()

			sourceDB := cmd.String("source-database")
			if sourceDB == "" {
				sourceDB = proj.Database()
			}

			source, err := engine.NewClient(cmd.String("source-url"), engine.ClientOptions{
				Database: sourceDB,
				CAFile:   cmd.String("cafile"),
				CertFile: cmd.String("certfile"),
				KeyFile:  cmd.String("keyfile"),
			})
			if err != nil {
				return err
			}
			defer source.Close()

			plan, err := migrate.PlanRebase(ctx, source, target)
			if err != nil {
				if errors.Is(err, migrate.ErrUpToDate) {
					fmt.Fprintln(cmd.Writer, "Branch is already up-to-date; nothing to rebase.")
					return nil
				}
				return err
			}

			plan.PrintStatus(cmd.Writer)

			if !cmd.Bool("non-interactive") {
				proceed, err := prompt.New().Confirm("Proceed with the rebase?", false)
				if err != nil {
					return err
				}
				if !proceed {
					return migrate.ErrAborted
				}
			}

			return migrate.ExecuteRebase(ctx, target, proj, plan, migrate.Options{Out: cmd.Writer})
		},
	}
}
