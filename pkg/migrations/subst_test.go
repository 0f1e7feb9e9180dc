package migrations_test

import (
	"testing"

	"github.com/lineagedb/lineage/pkg/migrations"
	"github.com/stretchr/testify/require"
)

func TestSubst(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		values  map[string]string
		want    string
		wantErr string
	}{
		{
			name:   "no placeholders",
			text:   "ALTER TYPE default::User { CREATE PROPERTY age: std::int64; };",
			values: map[string]string{"unused": "1"},
			want:   "ALTER TYPE default::User { CREATE PROPERTY age: std::int64; };",
		},
		{
			name:   "single placeholder",
			text:   `ALTER PROPERTY age { SET REQUIRED USING (\(fill_expr)) };`,
			values: map[string]string{"fill_expr": "<std::int64>{}"},
			want:   "ALTER PROPERTY age { SET REQUIRED USING (<std::int64>{}) };",
		},
		{
			name: "repeated and multiple placeholders",
			text: `USING (\(cast_expr) ?? \(default_expr) ?? \(default_expr))`,
			values: map[string]string{
				"cast_expr":    "<std::str>.age",
				"default_expr": "''",
			},
			want: "USING (<std::str>.age ?? '' ?? '')",
		},
		{
			name:   "placeholder-like text inside a string is untouched",
			text:   `SET default := 'literal \(not_a_placeholder)';`,
			values: map[string]string{},
			want:   `SET default := 'literal \(not_a_placeholder)';`,
		},
		{
			name:    "missing value",
			text:    `USING (\(fill_expr))`,
			values:  map[string]string{},
			wantErr: `no value for placeholder "fill_expr"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migrations.Subst(tt.text, tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
