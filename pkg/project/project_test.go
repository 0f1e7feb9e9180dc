package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lineagedb/lineage/pkg/project"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, config string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lineage.yaml"), []byte(config), 0o644))

	return dir
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dir := writeProject(t, "")

		p, err := project.Load(dir)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "dbschema"), p.SchemaDir())
		require.Equal(t, filepath.Join(dir, "dbschema", "migrations"), p.MigrationsDir())
		require.Equal(t, filepath.Join(dir, "dbschema", "fixups"), p.FixupsDir())
		require.Equal(t, "http://localhost:5656", p.EngineURL())
		require.Equal(t, "main", p.Database())
	})

	t.Run("explicit config", func(t *testing.T) {
		dir := writeProject(t, `
schema_dir: schema
engine:
  url: https://db.example.com:5656
  database: staging
`)

		p, err := project.Load(dir)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "schema"), p.SchemaDir())
		require.Equal(t, "https://db.example.com:5656", p.EngineURL())
		require.Equal(t, "staging", p.Database())
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := project.Load(t.TempDir())
		require.Error(t, err)
		require.Contains(t, err.Error(), "not a lineage project")
	})

	t.Run("absolute schema_dir is rejected", func(t *testing.T) {
		dir := writeProject(t, "schema_dir: /etc/schema\n")

		_, err := project.Load(dir)
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be relative")
	})
}

func TestInitialize(t *testing.T) {
	t.Run("creates the skeleton", func(t *testing.T) {
		dir := t.TempDir()

		p, err := project.Initialize(dir)
		require.NoError(t, err)

		require.FileExists(t, filepath.Join(dir, "lineage.yaml"))
		require.FileExists(t, filepath.Join(dir, "dbschema", "default.esdl"))
		require.DirExists(t, p.MigrationsDir())
		require.DirExists(t, p.FixupsDir())
	})

	t.Run("idempotent", func(t *testing.T) {
		dir := t.TempDir()

		_, err := project.Initialize(dir)
		require.NoError(t, err)

		// A customized config survives re-initialization.
		custom := "schema_dir: custom\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lineage.yaml"), []byte(custom), 0o644))

		p, err := project.Initialize(dir)
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "custom"), p.SchemaDir())
	})
}

func TestSchemaText(t *testing.T) {
	dir := writeProject(t, "")
	schemaDir := filepath.Join(dir, "dbschema")
	require.NoError(t, os.MkdirAll(schemaDir, 0o755))

	p, err := project.Load(dir)
	require.NoError(t, err)

	t.Run("no fragments", func(t *testing.T) {
		_, err := p.SchemaText()
		require.Error(t, err)
		require.Contains(t, err.Error(), "no .esdl files")
	})

	t.Run("fragments are concatenated in name order", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "b.esdl"), []byte("module extra { type Log; }"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "a.esdl"), []byte("module default { type User; }\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(schemaDir, ".hidden.esdl"), []byte("nope"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "notes.txt"), []byte("nope"), 0o644))

		text, err := p.SchemaText()
		require.NoError(t, err)
		require.Equal(t, "module default { type User; }\nmodule extra { type Log; }\n", text)
	})
}
