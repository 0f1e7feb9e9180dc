package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/urfave/cli/v3"
)

// logCmd creates the migration log command, listing the migration history
// from the filesystem chain or, with --from-db, from the engine's recorded
// log.
//
// Example usage:
//
//	# History as stored in dbschema/migrations
//	lineage migration log
//
//	# History as the database recorded it
//	lineage migration log --from-db
func logCmd() *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "List the migration history",
		Flags: append(engineFlags(),
			&cli.BoolFlag{
				Name:  "from-db",
				Usage: "Read the history from the database instead of the filesystem",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := requireProject()
			if err != nil {
				return err
			}

			if cmd.Bool("from-db") {
				conn, err := dial(cmd, proj)
				if err != nil {
					return err
				}
				defer conn.Close()

				history, err := engine.MigrationHistory(ctx, conn)
				if err != nil {
					return err
				}

				for _, rev := range history {
					printLogEntry(cmd, rev.ID, rev.Message)
				}
				return nil
			}

			chain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
			if err != nil {
				return err
			}

			for _, f := range chain {
				printLogEntry(cmd, f.ID, f.Message)
			}
			return nil
		},
	}
}

func printLogEntry(cmd *cli.Command, id, message string) {
	if message == "" {
		fmt.Fprintln(cmd.Writer, color.GreenString(id))
		return
	}

	fmt.Fprintf(cmd.Writer, "%s  %s\n", color.GreenString(id), message)
}
