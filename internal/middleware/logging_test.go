package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orgsession/internal/session"
)

func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestAccessLog_DoesNotLogCookiesOrTokens(t *testing.T) {
	buf := captureDefaultLogger(t)

	secret := "csrf_secret_should_not_appear"
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/session", nil)
	req.Header.Set("Cookie", "csrftoken="+secret)
	req.Header.Set(CSRFHeader, secret)

	rr := httptest.NewRecorder()
	h := Stack{RequestID, AccessLog}.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h.ServeHTTP(rr, req)

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("log contains secret token: %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Fatalf("log missing status: %s", out)
	}
}

func TestAccessLog_IncludesScopeFromInnerMiddleware(t *testing.T) {
	buf := captureDefaultLogger(t)

	st := fakeReader{"sid-1": session.Details{OrgID: "org1", AppID: "app42", IsAdmin: true, CSRFToken: "tok"}}
	h := Stack{RequestID, AccessLog, SessionDetails(nil, "", st)}.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/session", nil)
	req = req.WithContext(WithSID(req.Context(), "sid-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"org_id":"org1"`, `"app_id":"app42"`, `"is_admin":true`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "tok") {
		t.Fatalf("log contains csrf token: %s", out)
	}
}
