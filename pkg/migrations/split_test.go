package migrations_test

import (
	"testing"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "single statement",
			script: "CREATE TYPE default::User;",
			want:   []string{"CREATE TYPE default::User"},
		},
		{
			name:   "multiple statements",
			script: "CREATE TYPE default::User;\nCREATE TYPE default::Post;",
			want:   []string{"CREATE TYPE default::User", "CREATE TYPE default::Post"},
		},
		{
			name:   "nested semicolons stay put",
			script: "CREATE TYPE default::User { CREATE PROPERTY name: std::str; };\nCREATE TYPE default::Post;",
			want: []string{
				"CREATE TYPE default::User { CREATE PROPERTY name: std::str; }",
				"CREATE TYPE default::Post",
			},
		},
		{
			name:   "no trailing semicolon",
			script: "CREATE TYPE default::User",
			want:   []string{"CREATE TYPE default::User"},
		},
		{
			name:   "empty script",
			script: "  \n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migrations.SplitStatements(tt.script)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSplitStatementsMatchesWrittenHash(t *testing.T) {
	// A script stored as split statements must hash identically to the
	// statements a reader parses back out of the written file.
	script := "CREATE TYPE default::User { CREATE PROPERTY name: std::str; };\nCREATE TYPE default::Post;"

	statements, err := migrations.SplitStatements(script)
	require.NoError(t, err)

	id, err := migrations.ComputeID("initial", statements)
	require.NoError(t, err)

	m, err := migrations.Parse(migrations.Render(id, "initial", "", statements))
	require.NoError(t, err)

	roundTripped, err := m.ExpectedID()
	require.NoError(t, err)
	require.Equal(t, id, roundTripped)
}
