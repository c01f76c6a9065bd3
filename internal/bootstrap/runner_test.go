package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"orgsession/internal/backend"
	"orgsession/internal/backend/backendtest"
	"orgsession/internal/config"
	"orgsession/internal/cookies"
	"orgsession/internal/session"
)

const testCurrentURL = "https://app.example.com/org1/tools?tab=2"

func newFakeBackend(t *testing.T, opts backendtest.Options) (*backendtest.Server, *backend.Client) {
	t.Helper()
	if opts.OrgID == "" {
		opts.OrgID = "org1"
	}
	if opts.AppID == "" {
		opts.AppID = "app42"
	}
	if opts.User == nil {
		opts.User = map[string]any{"id": "u1", "email": "a@x.com", "name": "Ann"}
	}
	srv := backendtest.NewServer(opts)
	t.Cleanup(srv.Close)

	c, err := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, RequestTimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, c
}

func browserCookies() []*http.Cookie {
	return cookies.Parse("csrftoken=tok; sessionid=s1").Cookies()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_CommitsAdmin(t *testing.T) {
	srv, c := newFakeBackend(t, backendtest.Options{
		OrgName:     "Acme",
		Members:     []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		ZCode:       "zz",
		RequireCSRF: true,
	})

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var transitions []string
	r := NewRunner(c, Options{
		Logger: quietLogger(),
		Now:    func() time.Time { return now },
		Observer: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	mem := session.NewMemory()

	out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies(), CurrentURL: testCurrentURL}, mem)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Committed() || out.Redirect != "" {
		t.Fatalf("outcome = %#v", out)
	}

	d, ok := mem.Current()
	if !ok {
		t.Fatalf("expected committed session")
	}
	if d.OrgID != "org1" || d.AppID != "app42" || d.OrgName != "Acme" {
		t.Fatalf("scope = %q/%q/%q", d.OrgID, d.AppID, d.OrgName)
	}
	if !d.IsAdmin {
		t.Fatalf("IsAdmin = false, want true")
	}
	if d.CSRFToken != "tok" || d.ZCode != "zz" {
		t.Fatalf("cookies = csrf %q z_code %q", d.CSRFToken, d.ZCode)
	}
	if d.Email != "a@x.com" || d.DisplayName != "Ann" {
		t.Fatalf("user = %#v", d)
	}
	if !d.EstablishedAt.Equal(now) {
		t.Fatalf("EstablishedAt = %v, want %v", d.EstablishedAt, now)
	}
	if mem.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", mem.Writes())
	}

	want := []string{
		"GET /api/v1/apps/load/",
		"POST /api/v1/organization/org1/set",
		"GET /api/v1/unstract/org1/users/",
	}
	if got := srv.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if got := srv.CSRFHeaders(); got[1] != "tok" || got[2] != "tok" {
		t.Fatalf("csrf headers = %v", got)
	}

	wantTransitions := "resolving>establishing|establishing>enriching|enriching>committed"
	if got := strings.Join(transitions, "|"); got != wantTransitions {
		t.Fatalf("transitions = %s, want %s", got, wantTransitions)
	}

	var zCode *http.Cookie
	for _, ck := range out.Cookies {
		if ck.Name == cookies.ZCodeName {
			zCode = ck
		}
	}
	if zCode == nil || zCode.Value != "zz" {
		t.Fatalf("changed cookies = %#v, want z_code", out.Cookies)
	}
}

func TestRunner_NonAdminRole(t *testing.T) {
	_, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{
			{Email: "b@x.com", Role: "unstract_admin"},
			{Email: "a@x.com", Role: "unstract_member"},
		},
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	mem := session.NewMemory()

	if _, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, mem); err != nil {
		t.Fatalf("Run: %v", err)
	}
	d, _ := mem.Current()
	if d.IsAdmin {
		t.Fatalf("IsAdmin = true, want false")
	}
}

func TestRunner_CustomAdminRole(t *testing.T) {
	_, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "owner"}},
	})
	r := NewRunner(c, Options{Logger: quietLogger(), AdminRole: "owner"})
	mem := session.NewMemory()

	if _, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, mem); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d, _ := mem.Current(); !d.IsAdmin {
		t.Fatalf("IsAdmin = false, want true")
	}
}

func TestRunner_ClassifiedFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    map[string]int
		members   []backendtest.Member
		wantKind  Kind
		wantStage State
		wantCalls int
		wantTo    string
	}{
		{
			name:      "resolve 401",
			status:    map[string]int{"/api/v1/apps/load/": http.StatusUnauthorized},
			wantKind:  KindUnauthenticated,
			wantStage: StateResolving,
			wantCalls: 1,
			wantTo:    "/api/v1/login?redirect_url=https%3A%2F%2Fapp.example.com%2Forg1%2Ftools%3Ftab%3D2",
		},
		{
			name:      "establish 401",
			status:    map[string]int{"/api/v1/organization/": http.StatusUnauthorized},
			wantKind:  KindUnauthenticated,
			wantStage: StateEstablishing,
			wantCalls: 2,
			wantTo:    "/api/v1/login?redirect_url=https%3A%2F%2Fapp.example.com%2Forg1%2Ftools%3Ftab%3D2",
		},
		{
			name:      "establish 403",
			status:    map[string]int{"/api/v1/organization/": http.StatusForbidden},
			wantKind:  KindForbidden,
			wantStage: StateEstablishing,
			wantCalls: 2,
			wantTo:    ForbiddenPage,
		},
		{
			name:      "enrich 404",
			status:    map[string]int{"/api/v1/unstract/": http.StatusNotFound},
			wantKind:  KindNotFound,
			wantStage: StateEnriching,
			wantCalls: 3,
			wantTo:    NotFoundPage,
		},
		{
			name:      "membership missing",
			members:   []backendtest.Member{{Email: "A@x.com", Role: "unstract_admin"}},
			wantKind:  KindMembershipMissing,
			wantStage: StateEnriching,
			wantCalls: 3,
			wantTo:    ForbiddenPage,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv, c := newFakeBackend(t, backendtest.Options{Status: tc.status, Members: tc.members})
			r := NewRunner(c, Options{Logger: quietLogger()})
			mem := session.NewMemory()

			out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies(), CurrentURL: testCurrentURL}, mem)
			if err == nil {
				t.Fatalf("expected error")
			}
			if out.State != StateFailed || out.Kind != tc.wantKind || out.FailedAt != tc.wantStage {
				t.Fatalf("outcome = state %s kind %q stage %s", out.State, out.Kind, out.FailedAt)
			}
			if out.Redirect != tc.wantTo {
				t.Fatalf("redirect = %q, want %q", out.Redirect, tc.wantTo)
			}
			if got := len(srv.Calls()); got != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tc.wantCalls)
			}
			if mem.Writes() != 0 {
				t.Fatalf("writes = %d, want 0", mem.Writes())
			}
		})
	}
}

func TestRunner_UnhandledFailures(t *testing.T) {
	t.Run("status 500", func(t *testing.T) {
		_, c := newFakeBackend(t, backendtest.Options{
			Status: map[string]int{"/api/v1/organization/": http.StatusInternalServerError},
		})
		var logs bytes.Buffer
		r := NewRunner(c, Options{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})
		mem := session.NewMemory()

		out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies(), CurrentURL: testCurrentURL}, mem)
		if err == nil {
			t.Fatalf("expected error")
		}
		if out.Kind != KindUnhandled || out.Redirect != "" {
			t.Fatalf("outcome = kind %q redirect %q", out.Kind, out.Redirect)
		}
		if status, ok := backend.StatusCode(err); !ok || status != http.StatusInternalServerError {
			t.Fatalf("StatusCode = (%d, %v)", status, ok)
		}
		if mem.Writes() != 0 {
			t.Fatalf("writes = %d, want 0", mem.Writes())
		}
		if !strings.Contains(logs.String(), `"level":"ERROR"`) {
			t.Fatalf("expected error log, got %s", logs.String())
		}
	})

	t.Run("transport", func(t *testing.T) {
		srv, c := newFakeBackend(t, backendtest.Options{})
		srv.Close()
		r := NewRunner(c, Options{Logger: quietLogger()})
		mem := session.NewMemory()

		out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, mem)
		var te *backend.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want *TransportError", err)
		}
		if out.Kind != KindUnhandled || out.Redirect != "" || out.FailedAt != StateResolving {
			t.Fatalf("outcome = %#v", out)
		}
		if mem.Writes() != 0 {
			t.Fatalf("writes = %d, want 0", mem.Writes())
		}
	})
}

func TestRunner_MissingCSRFCookieStillSends(t *testing.T) {
	srv, c := newFakeBackend(t, backendtest.Options{
		Members:     []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		RequireCSRF: true,
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	mem := session.NewMemory()

	out, err := r.Run(context.Background(), "default", Input{Cookies: cookies.Parse("sessionid=s1").Cookies()}, mem)
	if err == nil {
		t.Fatalf("expected error")
	}
	if out.Kind != KindForbidden || out.FailedAt != StateEstablishing {
		t.Fatalf("outcome = kind %q stage %s", out.Kind, out.FailedAt)
	}
	if got := srv.CSRFHeaders(); len(got) != 2 || got[1] != "" {
		t.Fatalf("csrf headers = %#v, want empty header on set", got)
	}
}

func TestRunner_WriterFailure(t *testing.T) {
	_, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	boom := errors.New("boom")
	w := session.WriterFunc(func(context.Context, session.Details) error { return boom })

	out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, w)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if out.Kind != KindUnhandled || out.State != StateFailed {
		t.Fatalf("outcome = %#v", out)
	}
}

func TestRunner_SingleFlightPerKey(t *testing.T) {
	srv, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		Delay:   50 * time.Millisecond,
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	mem := session.NewMemory()

	const n = 8
	var wg sync.WaitGroup
	outs := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = r.Run(context.Background(), "sid-1", Input{Cookies: browserCookies()}, mem)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		if !outs[i].Committed() || outs[i].Details == nil || outs[i].Details.OrgID != "org1" {
			t.Fatalf("run %d outcome = %#v", i, outs[i])
		}
	}
	if got := len(srv.Calls()); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if srv.MaxInflight() != 1 {
		t.Fatalf("max inflight = %d, want 1", srv.MaxInflight())
	}
	if mem.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", mem.Writes())
	}
}

func TestRunner_DistinctKeysRunIndependently(t *testing.T) {
	srv, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
	})
	r := NewRunner(c, Options{Logger: quietLogger()})

	a, b := session.NewMemory(), session.NewMemory()
	if _, err := r.Run(context.Background(), "sid-a", Input{Cookies: browserCookies()}, a); err != nil {
		t.Fatalf("Run a: %v", err)
	}
	if _, err := r.Run(context.Background(), "sid-b", Input{Cookies: browserCookies()}, b); err != nil {
		t.Fatalf("Run b: %v", err)
	}
	if a.Writes() != 1 || b.Writes() != 1 {
		t.Fatalf("writes = %d/%d, want 1/1", a.Writes(), b.Writes())
	}
	if got := len(srv.Calls()); got != 6 {
		t.Fatalf("calls = %d, want 6", got)
	}
}

func TestRunner_CallerContextCanceled(t *testing.T) {
	_, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		Delay:   200 * time.Millisecond,
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	mem := session.NewMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out, err := r.Run(ctx, "default", Input{Cookies: browserCookies()}, mem)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if out.Kind != KindUnhandled || out.Redirect != "" {
		t.Fatalf("outcome = %#v", out)
	}
	if out.FailedAt != StateFailed {
		t.Fatalf("FailedAt = %s, want %s (stage unknown)", out.FailedAt, StateFailed)
	}

	// 放弃等待不会中断共享执行：再次调用加入同一次运行并拿到提交结果。
	out, err = r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, mem)
	if err != nil || !out.Committed() {
		t.Fatalf("rejoin: out=%#v err=%v", out, err)
	}
	if mem.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", mem.Writes())
	}
}

func TestRunner_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	srv, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		Delay:   100 * time.Millisecond,
	})
	r := NewRunner(c, Options{Logger: quietLogger()})
	mem := session.NewMemory()

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	var (
		wg        sync.WaitGroup
		leaderOut Outcome
		leaderErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		leaderOut, leaderErr = r.Run(leaderCtx, "sid-1", Input{Cookies: browserCookies()}, mem)
	}()

	time.Sleep(10 * time.Millisecond)
	followerDone := make(chan struct{})
	var (
		followerOut Outcome
		followerErr error
	)
	go func() {
		defer close(followerDone)
		followerOut, followerErr = r.Run(context.Background(), "sid-1", Input{Cookies: browserCookies()}, mem)
	}()

	time.Sleep(30 * time.Millisecond)
	cancelLeader()
	wg.Wait()
	<-followerDone

	if !errors.Is(leaderErr, context.Canceled) || leaderOut.Kind != KindUnhandled {
		t.Fatalf("leader: out=%#v err=%v", leaderOut, leaderErr)
	}
	if followerErr != nil {
		t.Fatalf("follower err = %v", followerErr)
	}
	if !followerOut.Committed() || !followerOut.Shared || followerOut.Details == nil || followerOut.Details.OrgID != "org1" {
		t.Fatalf("follower outcome = %#v", followerOut)
	}
	if got := len(srv.Calls()); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if mem.Writes() != 1 {
		t.Fatalf("writes = %d, want 1", mem.Writes())
	}
}

func TestRunner_TimeoutBoundsSharedRun(t *testing.T) {
	_, c := newFakeBackend(t, backendtest.Options{
		Members: []backendtest.Member{{Email: "a@x.com", Role: "unstract_admin"}},
		Delay:   200 * time.Millisecond,
	})
	r := NewRunner(c, Options{Logger: quietLogger(), Timeout: 30 * time.Millisecond})
	mem := session.NewMemory()

	out, err := r.Run(context.Background(), "default", Input{Cookies: browserCookies()}, mem)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if out.Kind != KindUnhandled || out.FailedAt != StateResolving {
		t.Fatalf("outcome = kind %q stage %s, want unhandled at resolving", out.Kind, out.FailedAt)
	}
	if mem.Writes() != 0 {
		t.Fatalf("writes = %d, want 0", mem.Writes())
	}
}

func TestRunner_NilWriter(t *testing.T) {
	r := NewRunner(nil, Options{})
	if _, err := r.Run(context.Background(), "default", Input{}, nil); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}
