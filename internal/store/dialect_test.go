package store

import (
	"strings"
	"testing"
)

func TestParseDialect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{in: "sqlite", want: DialectSQLite},
		{in: " MySQL ", want: DialectMySQL},
		{in: "postgres", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDialect(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseDialect(%q) = (%q, %v), want (%q, err=%v)", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestDialect_UpsertOrgSessionSQL(t *testing.T) {
	t.Parallel()

	sqlite := DialectSQLite.upsertOrgSessionSQL()
	if !strings.Contains(sqlite, "ON CONFLICT(sid) DO UPDATE") || strings.Contains(sqlite, "DUPLICATE KEY") {
		t.Fatalf("sqlite upsert = %s", sqlite)
	}
	mysql := DialectMySQL.upsertOrgSessionSQL()
	if !strings.Contains(mysql, "ON DUPLICATE KEY UPDATE") || strings.Contains(mysql, "ON CONFLICT") {
		t.Fatalf("mysql upsert = %s", mysql)
	}
	for _, q := range []string{sqlite, mysql} {
		if n := strings.Count(q, "?"); n != 7 {
			t.Fatalf("placeholders = %d, want 7", n)
		}
	}
}
