package migrations_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestStagedSwap(t *testing.T) {
	t.Run("commit removes the old files", func(t *testing.T) {
		dir := t.TempDir()
		a := writeTestFile(t, dir, "a.edgeql", "old a")
		b := writeTestFile(t, dir, "b.edgeql", "old b")

		var swap migrations.StagedSwap
		require.NoError(t, swap.Stage(a))
		require.NoError(t, swap.Stage(b))
		require.Equal(t, 2, swap.Staged())

		// Old files are out of the way, replacements can reuse the names.
		require.NoFileExists(t, a)
		require.FileExists(t, a+migrations.StagedExt)
		writeTestFile(t, dir, "a.edgeql", "new a")

		require.NoError(t, swap.Commit())
		require.NoFileExists(t, a+migrations.StagedExt)
		require.NoFileExists(t, b+migrations.StagedExt)

		data, err := os.ReadFile(a)
		require.NoError(t, err)
		require.Equal(t, "new a", string(data))
	})

	t.Run("rollback restores the old files", func(t *testing.T) {
		dir := t.TempDir()
		a := writeTestFile(t, dir, "a.edgeql", "old a")

		var swap migrations.StagedSwap
		require.NoError(t, swap.Stage(a))

		// A half-written replacement under the old name is overwritten.
		writeTestFile(t, dir, "a.edgeql", "partial")

		cause := errors.New("boom")
		require.Equal(t, cause, swap.Rollback(cause))

		data, err := os.ReadFile(a)
		require.NoError(t, err)
		require.Equal(t, "old a", string(data))
		require.NoFileExists(t, a+migrations.StagedExt)
	})

	t.Run("crash between stage and commit is recoverable", func(t *testing.T) {
		dir := t.TempDir()
		a := writeTestFile(t, dir, "a.edgeql", "old a")

		var swap migrations.StagedSwap
		require.NoError(t, swap.Stage(a))
		writeTestFile(t, dir, "a.edgeql", "new a")

		// Simulated crash: swap goes out of scope without Commit. Both
		// the new file and the staged original survive on disk.
		require.FileExists(t, a)
		require.FileExists(t, a+migrations.StagedExt)

		old, err := os.ReadFile(a + migrations.StagedExt)
		require.NoError(t, err)
		require.Equal(t, "old a", string(old))
	})

	t.Run("staging a missing file fails", func(t *testing.T) {
		var swap migrations.StagedSwap
		err := swap.Stage(filepath.Join(t.TempDir(), "nope.edgeql"))
		require.Error(t, err)
		require.Equal(t, 0, swap.Staged())
	})
}
