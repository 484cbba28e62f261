package binder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdent(t *testing.T) {
	for _, name := range []string{"users", "_tmp", "Order_2024", strings.Repeat("a", 63)} {
		assert.NoError(t, ValidateIdent("table", name), name)
	}
	for _, name := range []string{"", "1abc", "a-b", "a b", `a"b`, "users;", strings.Repeat("a", 64), "tábla"} {
		assert.Error(t, ValidateIdent("table", name), name)
	}
	assert.NoError(t, ValidateSchema(""))
	assert.Error(t, ValidateSchema("x.y"))
}

func TestValidateType(t *testing.T) {
	for _, typ := range []string{
		"INTEGER", "bigint", "VARCHAR(255)", "numeric(10,2)", "NUMERIC(10, 2)", "double precision",
		"timestamp with time zone", "character varying(20)", "integer[]", "NVARCHAR(MAX)", "bigint unsigned",
		"timestamp(3) with time zone",
	} {
		assert.NoError(t, ValidateType(typ), typ)
	}
	for _, typ := range []string{
		"", "TEXT)", "INT, x INT", "TEXT -- c", "INTEGER PRIMARY KEY", "TEXT NOT NULL", "TEXT DEFAULT x",
		"INT CHECK (1)", "varchar(a)", strings.Repeat("x", 65),
	} {
		assert.Error(t, ValidateType(typ), typ)
	}
}

func TestClassifyStatement(t *testing.T) {
	tt := []struct {
		stmt string
		want StatementKind
	}{
		{"SELECT 1", KindRead},
		{"  -- comment\n select * from t", KindRead},
		{"/* hint */ WITH x AS (SELECT 1) SELECT * FROM x", KindRead},
		{"(SELECT 1) UNION (SELECT 2)", KindRead},
		{"insert into t values (1)", KindWrite},
		{"UPDATE t SET a = 1", KindWrite},
		{"delete from t", KindWrite},
		{"CREATE INDEX i ON t (a)", KindDDL},
		{"drop table t", KindDDL},
		{"ALTER TABLE t ADD COLUMN b INT", KindDDL},
		{"TRUNCATE t", KindDDL},
		{"SELECT 1; -- trailing comment", KindRead},
		{"SELECT 'a;b', \"c;d\", [e;f], `g;h` FROM t", KindRead},
		{"SELECT 'it''s; fine' -- no; split\n FROM t", KindRead},
		{"SELECT $$a;b$$, $tag$c;d$tag$, $1", KindRead},
		{"/* x; y */ SELECT 1", KindRead},
		{"PRAGMA foreign_keys", KindRead},
		{"PRAGMA table_info(users)", KindRead},
		{"pragma main.index_list('users')", KindRead},
	}
	for _, tc := range tt {
		got, err := ClassifyStatement(tc.stmt)
		if assert.NoError(t, err, tc.stmt) {
			assert.Equal(t, tc.want, got, tc.stmt)
		}
	}
	for _, stmt := range []string{"", "   ", "-- only a comment", "BEGIN", "commit", "SET search_path TO x", "USE other", "FROB x",
		"SELECT 1; BEGIN",
		"SELECT 1; INSERT INTO t VALUES (1)",
		"INSERT INTO t VALUES ('a;'); DELETE FROM t",
		"SELECT 1 /* c */ ; /* c */ SELECT 2",
		"PRAGMA foreign_keys = OFF",
		"PRAGMA foreign_keys(0)",
		"PRAGMA journal_mode=WAL",
	} {
		_, err := ClassifyStatement(stmt)
		assert.Error(t, err, stmt)
	}
}

func TestHasReturning(t *testing.T) {
	assert.True(t, HasReturning("INSERT INTO t (a) VALUES (1) RETURNING id"))
	assert.False(t, HasReturning("INSERT INTO t (returning_id) VALUES (1)"))
	assert.Equal(t, "SELECT 1", TrimStatement("  SELECT 1 ;\n"))
}
