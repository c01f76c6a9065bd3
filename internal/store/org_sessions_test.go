package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"orgsession/internal/session"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema: %v", err)
	}
	st := New(db)
	st.SetDialect(DialectSQLite)
	return st
}

func TestOrgSessions_SQLiteRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	d := session.Details{
		Email:     "a@x.com",
		OrgName:   "Acme",
		OrgID:     "org1",
		AppID:     "app42",
		IsAdmin:   true,
		CSRFToken: "tok",
		ZCode:     "zz",
		Extra:     map[string]any{"plan": "pro"},
	}
	if err := st.Writer("sid-1").SetSessionDetails(ctx, d); err != nil {
		t.Fatalf("SetSessionDetails: %v", err)
	}

	got, ok, err := st.GetOrgSession(ctx, "sid-1", time.Now())
	if err != nil {
		t.Fatalf("GetOrgSession: %v", err)
	}
	if !ok {
		t.Fatalf("expected org session to exist")
	}
	if got.OrgID != "org1" || got.AppID != "app42" || !got.IsAdmin || got.ZCode != "zz" {
		t.Fatalf("unexpected details: %#v", got)
	}
	if got.Extra["plan"] != "pro" {
		t.Fatalf("extra = %#v", got.Extra)
	}

	// 同一 sid 再次写入是覆盖。
	d.IsAdmin = false
	if err := st.Writer("sid-1").SetSessionDetails(ctx, d); err != nil {
		t.Fatalf("SetSessionDetails (2): %v", err)
	}
	got, _, _ = st.GetOrgSession(ctx, "sid-1", time.Now())
	if got.IsAdmin {
		t.Fatalf("expected overwrite to clear IsAdmin")
	}
	var n int
	if err := st.DB().QueryRow(`SELECT COUNT(1) FROM org_sessions`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	if _, ok, _ := st.GetOrgSession(ctx, "sid-other", time.Now()); ok {
		t.Fatalf("expected other sid to be absent")
	}

	if err := st.DeleteOrgSession(ctx, "sid-1"); err != nil {
		t.Fatalf("DeleteOrgSession: %v", err)
	}
	if _, ok, err := st.GetOrgSession(ctx, "sid-1", time.Now()); err != nil {
		t.Fatalf("GetOrgSession after delete: %v", err)
	} else if ok {
		t.Fatalf("expected org session to be deleted")
	}
}

func TestOrgSessions_ExpiredIgnoredAndPurged(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	st.SetSessionTTL(time.Minute)

	if err := st.UpsertOrgSession(ctx, "old", session.Details{Email: "a@x.com"}); err != nil {
		t.Fatalf("UpsertOrgSession: %v", err)
	}
	st.now = func() time.Time { return base.Add(time.Hour) }
	if err := st.UpsertOrgSession(ctx, "new", session.Details{Email: "b@x.com"}); err != nil {
		t.Fatalf("UpsertOrgSession: %v", err)
	}

	later := base.Add(30 * time.Minute)
	if _, ok, err := st.GetOrgSession(ctx, "old", later); err != nil {
		t.Fatalf("GetOrgSession: %v", err)
	} else if ok {
		t.Fatalf("expected expired session to be ignored")
	}

	n, err := st.PurgeExpiredOrgSessions(ctx, later)
	if err != nil {
		t.Fatalf("PurgeExpiredOrgSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if _, ok, _ := st.GetOrgSession(ctx, "new", later); !ok {
		t.Fatalf("expected unexpired session to survive purge")
	}
}

func TestOrgSessions_RejectsEmptySIDAndCanceledContext(t *testing.T) {
	st := newSQLiteStore(t)

	if err := st.UpsertOrgSession(context.Background(), "  ", session.Details{}); err != ErrEmptySID {
		t.Fatalf("err = %v, want ErrEmptySID", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.UpsertOrgSession(ctx, "sid", session.Details{}); err == nil {
		t.Fatalf("expected canceled context error")
	}
	if _, ok, _ := st.GetOrgSession(context.Background(), "sid", time.Now()); ok {
		t.Fatalf("expected no write after canceled context")
	}
}

func TestSQLiteBootstrap_FileSchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orgsession.db") + "?_busy_timeout=1000"

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if err := EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema: %v", err)
	}
	// 再跑一次，确保幂等。
	if err := EnsureSQLiteSchema(db); err != nil {
		t.Fatalf("EnsureSQLiteSchema (2): %v", err)
	}
}

func TestOpenDB_RejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, _, err := OpenDB("dev", "postgres", "", ""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
