package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/lineagedb/lineage/pkg/engine"
	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/urfave/cli/v3"
)

// statusCmd creates the migration status command, comparing the filesystem
// chain against the database's current revision.
//
// Example usage:
//
//	lineage migration status
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show how far the database is behind the migration chain",
		Flags: engineFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			proj, err := requireProject()
			if err != nil {
				return err
			}

			chain, err := migrations.ReadChain(os.DirFS(proj.MigrationsDir()), true)
			if err != nil {
				return err
			}

			conn, err := dial(cmd, proj)
			if err != nil {
				return err
			}
			defer conn.Close()

			dbRev, err := engine.CurrentRevision(ctx, conn)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "Filesystem chain: %d migration(s), tip %s\n",
				len(chain), color.GreenString(migrations.Tip(chain)))
			fmt.Fprintf(cmd.Writer, "Database revision: %s\n", color.GreenString(dbRev))

			for i, f := range chain {
				if f.ID != dbRev {
					continue
				}

				pending := len(chain) - i - 1
				if pending == 0 {
					fmt.Fprintln(cmd.Writer, "Database is up to date.")
					return nil
				}

				fmt.Fprintf(cmd.Writer, "%d migration(s) pending; run `lineage migration apply`.\n", pending)
				return nil
			}

			if dbRev == consts.InitialRevision {
				if len(chain) == 0 {
					fmt.Fprintln(cmd.Writer, "Database is up to date.")
					return nil
				}

				fmt.Fprintf(cmd.Writer, "%d migration(s) pending; run `lineage migration apply`.\n", len(chain))
				return nil
			}

			fmt.Fprintln(cmd.Writer, color.YellowString(
				"The database revision is not part of the migration chain; it may need a fixup (see `lineage migration apply`)."))
			return nil
		},
	}
}
