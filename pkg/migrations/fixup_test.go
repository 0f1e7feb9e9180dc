package migrations_test

import (
	"testing"
	"testing/fstest"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/stretchr/testify/require"
)

func TestParseFixupName(t *testing.T) {
	from, to, ok := migrations.ParseFixupName("m1abc-m1def.edgeql")
	require.True(t, ok)
	require.Equal(t, "m1abc", from)
	require.Equal(t, "m1def", to)

	_, _, ok = migrations.ParseFixupName("00001-m1def.edgeql")
	require.False(t, ok)

	_, _, ok = migrations.ParseFixupName("m1abc.edgeql")
	require.False(t, ok)
}

func TestReadFixups(t *testing.T) {
	t.Run("valid fixup", func(t *testing.T) {
		id, err := migrations.ComputeID("m1from", []string{"ALTER TYPE default::User"})
		require.NoError(t, err)

		fsys := fstest.MapFS{
			migrations.FixupFilename("m1from", "m1to"): &fstest.MapFile{
				Data: []byte(migrations.Render(id, "m1from", "", []string{"ALTER TYPE default::User"})),
			},
		}

		fixups, err := migrations.ReadFixups(fsys, true)
		require.NoError(t, err)
		require.Len(t, fixups, 1)
		require.Equal(t, "m1from", fixups[0].Parent)
		require.Equal(t, "m1to", fixups[0].FixupTarget)
		require.Equal(t, id, fixups[0].ID)
	})

	t.Run("parent must match the file name", func(t *testing.T) {
		id, err := migrations.ComputeID("m1other", []string{"ALTER TYPE default::User"})
		require.NoError(t, err)

		fsys := fstest.MapFS{
			migrations.FixupFilename("m1from", "m1to"): &fstest.MapFile{
				Data: []byte(migrations.Render(id, "m1other", "", []string{"ALTER TYPE default::User"})),
			},
		}

		_, err = migrations.ReadFixups(fsys, true)
		require.Error(t, err)
		require.Contains(t, err.Error(), `must build on revision "m1from"`)
	})
}

func TestReachableFixups(t *testing.T) {
	fixup := func(from, to string) *migrations.File {
		return &migrations.File{
			Name:        migrations.FixupFilename(from, to),
			FixupTarget: to,
			Migration:   migrations.Migration{Parent: from},
		}
	}

	fixups := []*migrations.File{
		fixup("m1old", "m1current"),   // direct path into the retained revision
		fixup("m1older", "m1old"),     // transitively alive through m1old
		fixup("m1dead", "m1obsolete"), // targets a revision nobody retains
	}

	reachable := migrations.ReachableFixups(fixups, map[string]struct{}{"m1current": {}})

	require.Contains(t, reachable, migrations.FixupFilename("m1old", "m1current"))
	require.Contains(t, reachable, migrations.FixupFilename("m1older", "m1old"))
	require.NotContains(t, reachable, migrations.FixupFilename("m1dead", "m1obsolete"))
}
