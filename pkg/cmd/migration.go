package cmd

import (
	"github.com/urfave/cli/v3"
)

// migration groups every subcommand operating on the migration chain.
func migration() *cli.Command {
	return &cli.Command{
		Name:    "migration",
		Aliases: []string{"migrations"},
		Usage:   "Create, apply, and rework schema migrations",
		Commands: []*cli.Command{
			createCmd(),
			applyCmd(),
			statusCmd(),
			logCmd(),
			rebaseCmd(),
			rehashCmd(),
		},
	}
}
