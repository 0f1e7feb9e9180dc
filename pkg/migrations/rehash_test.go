package migrations_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/stretchr/testify/require"
)

// writeChain writes a valid three-migration chain into dir, returning the ids.
func writeChain(t *testing.T, dir string) []string {
	t.Helper()

	var ids []string
	parent := "initial"
	for i, stmt := range []string{
		"CREATE TYPE default::User",
		"ALTER TYPE default::User { CREATE PROPERTY name: std::str; }",
		"CREATE TYPE default::Post",
	} {
		id, err := migrations.ComputeID(parent, []string{stmt})
		require.NoError(t, err)

		_, err = migrations.Write(dir, i+1, id, parent, "", []string{stmt})
		require.NoError(t, err)

		ids = append(ids, id)
		parent = id
	}

	return ids
}

func TestFixChainIDs(t *testing.T) {
	t.Run("intact chain is a no-op", func(t *testing.T) {
		dir := t.TempDir()
		writeChain(t, dir)

		changed, err := migrations.FixChainIDs(dir)
		require.NoError(t, err)
		require.Empty(t, changed)
	})

	t.Run("editing the root cascades down the chain", func(t *testing.T) {
		dir := t.TempDir()
		ids := writeChain(t, dir)

		// Hand-edit the first migration's body without touching its id.
		name := migrations.Filename(1, ids[0])
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		edited := strings.Replace(string(data), "default::User", "default::Account", 1)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(edited), 0o644))

		changed, err := migrations.FixChainIDs(dir)
		require.NoError(t, err)

		// Every id in the chain changes: the edit itself, then the two
		// reparented children.
		require.Len(t, changed, 3)
		for _, id := range ids {
			require.Contains(t, changed, id)
		}

		// The repaired chain passes full validation and files carry the
		// new id prefixes.
		chain, err := migrations.ReadChain(os.DirFS(dir), true)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		for i, f := range chain {
			require.Equal(t, changed[ids[i]], f.ID)
			require.Equal(t, migrations.Filename(i+1, f.ID), f.Name)
		}
	})

	t.Run("legacy names are upgraded", func(t *testing.T) {
		dir := t.TempDir()
		ids := writeChain(t, dir)

		name := migrations.Filename(2, ids[1])
		require.NoError(t, os.Rename(filepath.Join(dir, name), filepath.Join(dir, "00002.edgeql")))

		changed, err := migrations.FixChainIDs(dir)
		require.NoError(t, err)
		require.Empty(t, changed)

		require.FileExists(t, filepath.Join(dir, name))
		require.NoFileExists(t, filepath.Join(dir, "00002.edgeql"))
	})
}
