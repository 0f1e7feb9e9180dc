package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lineagedb/lineage/pkg/migrate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "no changes", err: migrate.ErrNoChanges, want: ExitNoChanges},
		{name: "wrapped no changes", err: errors.Wrap(migrate.ErrNoChanges, "create"), want: ExitNoChanges},
		{name: "cannot resolve", err: errors.Wrap(migrate.ErrCannotResolve, "confidence too low"), want: ExitCannotResolve},
		{name: "aborted", err: migrate.ErrAborted, want: 1},
		{name: "generic failure", err: errors.New("connection refused"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	var out bytes.Buffer
	app := &cli.Command{Name: "lineage", Writer: &out, Commands: []*cli.Command{initCmd()}}

	require.NoError(t, app.Run(context.Background(), []string{"lineage", "init"}))
	require.FileExists(t, filepath.Join(dir, "lineage.yaml"))
	require.DirExists(t, filepath.Join(dir, "dbschema", "migrations"))
	require.Contains(t, out.String(), "Initialized lineage project")

	// Idempotent: a second run must not clobber anything.
	custom := []byte("module default {\n  type Keep;\n}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dbschema", "default.esdl"), custom, 0o644))

	require.NoError(t, app.Run(context.Background(), []string{"lineage", "init"}))
	data, err := os.ReadFile(filepath.Join(dir, "dbschema", "default.esdl"))
	require.NoError(t, err)
	require.Equal(t, custom, data)
}

func TestRequireProject(t *testing.T) {
	prev := currentProject
	t.Cleanup(func() { currentProject = prev })

	currentProject = nil
	_, err := requireProject()
	require.Error(t, err)
	require.Contains(t, err.Error(), "lineage init")
}

func TestMigrationSubcommands(t *testing.T) {
	cmd := migration()

	names := make([]string, 0, len(cmd.Commands))
	for _, sub := range cmd.Commands {
		names = append(names, sub.Name)
	}

	require.ElementsMatch(t, names,
		[]string{"create", "apply", "status", "log", "rebase", "rehash"})
}
