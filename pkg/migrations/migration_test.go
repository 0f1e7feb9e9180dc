package migrations_test

import (
	"testing"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		id         string
		parent     string
		message    string
		statements []string
		wantErr    string
	}{
		{
			name:   "empty body",
			input:  "CREATE MIGRATION m1abc ONTO initial {};",
			id:     "m1abc",
			parent: "initial",
		},
		{
			name: "single statement",
			input: "CREATE MIGRATION m1abc ONTO initial\n{\n" +
				"  CREATE TYPE default::User;\n};\n",
			id:         "m1abc",
			parent:     "initial",
			statements: []string{"CREATE TYPE default::User"},
		},
		{
			name: "nested braces stay inside one statement",
			input: "CREATE MIGRATION m1abc ONTO m1def {\n" +
				"  CREATE TYPE default::User { CREATE PROPERTY name: std::str; };\n" +
				"  SELECT Obj1 { field1 };\n};",
			id:     "m1abc",
			parent: "m1def",
			statements: []string{
				"CREATE TYPE default::User { CREATE PROPERTY name: std::str; }",
				"SELECT Obj1 { field1 }",
			},
		},
		{
			name: "set message is captured, not stored as a statement",
			input: "CREATE MIGRATION m1abc ONTO initial {\n" +
				"  set message := 'hello world';\n" +
				"  CREATE TYPE default::User;\n};",
			id:         "m1abc",
			parent:     "initial",
			message:    "hello world",
			statements: []string{"CREATE TYPE default::User"},
		},
		{
			name: "dollar quoted message",
			input: "CREATE MIGRATION m1abc ONTO initial {\n" +
				"  set message := $$ hello world! $$;\n};",
			id:      "m1abc",
			parent:  "initial",
			message: " hello world! ",
		},
		{
			name: "comments are ignored",
			input: "# header\nCREATE MIGRATION m1abc ONTO initial {\n" +
				"  # a comment\n  CREATE TYPE default::User;\n};",
			id:         "m1abc",
			parent:     "initial",
			statements: []string{"CREATE TYPE default::User"},
		},
		{
			name: "duplicate message",
			input: "CREATE MIGRATION m1abc ONTO initial {\n" +
				"  set message := 'one';\n  set message := 'two';\n};",
			wantErr: "duplicate `set message`",
		},
		{
			name:    "missing ONTO",
			input:   "CREATE MIGRATION m1abc {};",
			wantErr: "expected ONTO",
		},
		{
			name:    "trailing content",
			input:   "CREATE MIGRATION m1abc ONTO initial {};\nsomething",
			wantErr: "after closing",
		},
		{
			name:    "truncated body",
			input:   "CREATE MIGRATION m1abc ONTO initial {\n  CREATE TYPE default::User;",
			wantErr: "unexpected end of file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := migrations.Parse(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.id, m.ID)
			require.Equal(t, tt.parent, m.Parent)
			require.Equal(t, tt.message, m.Message)
			require.Equal(t, tt.statements, m.StatementTexts())

			// Spans must point at the ids in the source text.
			require.Equal(t, tt.id, tt.input[m.IDSpan.Start:m.IDSpan.End])
			require.Equal(t, tt.parent, tt.input[m.ParentSpan.Start:m.ParentSpan.End])
		})
	}
}

func TestParseStatementSpans(t *testing.T) {
	src := "CREATE MIGRATION m1abc ONTO initial\n{\n" +
		"  CREATE TYPE default::User;\n" +
		"  ALTER TYPE default::User { CREATE PROPERTY age: std::int64; };\n};\n"

	m, err := migrations.Parse(src)
	require.NoError(t, err)
	require.Len(t, m.Statements, 2)

	// Statement spans cover exactly the statement text.
	for _, s := range m.Statements {
		require.Equal(t, s.Text, src[s.Span.Start:s.Span.End])
	}
}

func TestSequenceFromName(t *testing.T) {
	tests := []struct {
		name   string
		seq    int
		legacy bool
		ok     bool
	}{
		{name: "00001-m1vrz7u.edgeql", seq: 1, ok: true},
		{name: "00042-m1abcde.edgeql", seq: 42, ok: true},
		{name: "00002.edgeql", seq: 2, legacy: true, ok: true},
		{name: "2.edgeql"},
		{name: "000001-m1x.edgeql"},
		{name: "00000-m1x.edgeql"},
		{name: "00001-m1x.sql"},
		{name: "notamigration.edgeql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, legacy, ok := migrations.SequenceFromName(tt.name)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.seq, seq)
				require.Equal(t, tt.legacy, legacy)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	require.Equal(t, "00003-m1vrz7u.edgeql", migrations.Filename(3, "m1vrz7ulonger_id_is_truncated"))
}
