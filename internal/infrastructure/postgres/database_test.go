package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "placeholders kept",
			query: "SELECT id FROM connections WHERE user_id = $1 AND provider = $2",
			want:  "SELECT id FROM connections WHERE user_id = $1 AND provider = $2",
		},
		{
			name:  "string literal masked",
			query: "UPDATE credentials SET secret = 'hunter2' WHERE id = $1",
			want:  "UPDATE credentials SET secret = '?' WHERE id = $1",
		},
		{
			name:  "escaped quote inside literal",
			query: "SELECT 'it''s' AS x",
			want:  "SELECT '?' AS x",
		},
		{
			name:  "numeric literal masked",
			query: "SELECT * FROM sync_runs LIMIT 20",
			want:  "SELECT * FROM sync_runs LIMIT ?",
		},
		{
			name:  "identifier digits kept",
			query: "SELECT col1 FROM t2",
			want:  "SELECT col1 FROM t2",
		},
		{
			name: "whitespace collapsed",
			query: `
				SELECT id
				FROM accounts`,
			want: "SELECT id FROM accounts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeQuery(tt.query))
		})
	}
}

func TestSanitizeQuery_Truncates(t *testing.T) {
	q := "SELECT " + strings.Repeat("a, ", 200) + "b FROM t"
	got := sanitizeQuery(q)
	assert.Len(t, got, maxStatementLen+len("..."))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSQLVerb(t *testing.T) {
	assert.Equal(t, "INSERT", sqlVerb("  insert into t values ($1)"))
	assert.Equal(t, "WITH", sqlVerb("\n\tWITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "", sqlVerb("   "))
}

func TestPoolOptions_Defaults(t *testing.T) {
	o := PoolOptions{MaxOpenConns: 10}.withDefaults()
	assert.Equal(t, 10, o.MaxOpenConns)
	assert.Equal(t, 5, o.MaxIdleConns)
	assert.NotZero(t, o.ConnMaxLifetime)
	assert.NotZero(t, o.PingTimeout)
}
