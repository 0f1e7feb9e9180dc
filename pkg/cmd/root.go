package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lineagedb/lineage/pkg/consts"
	"github.com/lineagedb/lineage/pkg/migrate"
	"github.com/lineagedb/lineage/pkg/project"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

// currentProject is set by the root Before hook when the target directory
// contains a lineage.yaml. Commands that need a project go through
// requireProject.
var currentProject *project.Project

// Exit codes scripts can rely on. "No changes" and "needs a human" are
// distinct so CI pipelines can tell an up-to-date schema from a migration
// they must not auto-approve.
const (
	ExitCannotResolve = 3
	ExitNoChanges     = 4
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates and executes the main lineage CLI application with the given
// version and command-line arguments.
//
// Global Flags:
//   - --dir, -d: Project directory (defaults to current directory)
//
// The application detects lineage projects by looking for lineage.yaml in
// the specified directory. If found, the loaded project is made available
// to subcommands; commands that require one fail with a clear message
// otherwise.
//
// Example usage:
//
//	# Run in current directory (auto-detect project)
//	lineage migration create
//
//	# Run in a specific directory
//	lineage --dir /path/to/project migration apply
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := &cli.Command{
		Name:  "lineage",
		Usage: "A tool for managing declarative schema migrations",
		Description: `lineage manages the migration history of a declarative-schema database:
it negotiates schema changes with the engine, stores them as a linear chain
of content-addressed migration files, and keeps databases and files in sync.`,
		Version: p.Version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "the project directory",
				Value:       ".",
				DefaultText: "Current directory",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			projectDir := cmd.String("dir")

			if err := os.Chdir(projectDir); err != nil {
				return ctx, err
			}

			if _, err := os.Stat(filepath.Join(".", consts.ConfigFile)); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return ctx, nil
				}
				return ctx, err
			}

			proj, err := project.Load(".")
			if err != nil {
				return ctx, err
			}

			currentProject = proj
			return ctx, nil
		},
		Commands: p.Commands,
	}

	p.Lifecycle.Append(fx.StartHook(func() {
		err := app.Run(p.Ctx, p.Args)
		_ = p.Shutdowner.Shutdown(fx.ExitCode(exitCode(err)))
	}))
}

// exitCode maps command errors onto the CLI's exit codes and reports them.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0

	case errors.Is(err, migrate.ErrNoChanges):
		fmt.Fprintln(os.Stderr, err)
		return ExitNoChanges

	case errors.Is(err, migrate.ErrCannotResolve):
		fmt.Fprintln(os.Stderr, err)
		return ExitCannotResolve

	case errors.Is(err, migrate.ErrAborted):
		fmt.Fprintln(os.Stderr, err)
		return 1

	default:
		slog.Error("Error running command", "err", err)
		return 1
	}
}

// requireProject guards commands that only make sense inside a project.
func requireProject() (*project.Project, error) {
	if currentProject == nil {
		return nil, errors.Errorf("no %s found; run `lineage init` first or pass --dir", consts.ConfigFile)
	}

	return currentProject, nil
}
