package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParse_Get(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		key  string
		want string
	}{
		{name: "alone", raw: "csrftoken=abc123", key: CSRFTokenName, want: "abc123"},
		{name: "among many", raw: "sessionid=s1; csrftoken=abc123; z_code=zz", key: CSRFTokenName, want: "abc123"},
		{name: "last", raw: "sessionid=s1;csrftoken=abc123", key: CSRFTokenName, want: "abc123"},
		{name: "absent", raw: "sessionid=s1; z_code=zz", key: CSRFTokenName, want: ""},
		{name: "empty string", raw: "", key: CSRFTokenName, want: ""},
		{name: "suffix name is not a match", raw: "xcsrftoken=nope", key: CSRFTokenName, want: ""},
		{name: "value with equals", raw: "z_code=a=b==", key: ZCodeName, want: "a=b=="},
		{name: "quoted", raw: `z_code="q1"`, key: ZCodeName, want: "q1"},
		{name: "first wins", raw: "csrftoken=first; csrftoken=second", key: CSRFTokenName, want: "first"},
		{name: "malformed skipped", raw: "garbage; csrftoken=ok", key: CSRFTokenName, want: "ok"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			v := Parse(tc.raw)
			if got := v.Get(tc.key); got != tc.want {
				t.Fatalf("Parse(%q).Get(%q) = %q, want %q", tc.raw, tc.key, got, tc.want)
			}
			if again := v.Get(tc.key); again != tc.want {
				t.Fatalf("second Get(%q) = %q, want %q", tc.key, again, tc.want)
			}
		})
	}
}

func TestValues_NilGet(t *testing.T) {
	var v Values
	if got := v.Get(CSRFTokenName); got != "" {
		t.Fatalf("nil Values Get = %q, want empty", got)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("Cookie", "csrftoken=t1; z_code=z1")

	v := FromRequest(req)
	if v.Get(CSRFTokenName) != "t1" || v.Get(ZCodeName) != "z1" {
		t.Fatalf("FromRequest = %#v", v)
	}
}

func TestJar_SeedAndSetCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CSRFTokenName); err != nil || c.Value != "seeded" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: ZCodeName, Value: "fresh", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jar, err := NewJar(srv.URL, Parse("csrftoken=seeded").Cookies())
	if err != nil {
		t.Fatalf("NewJar: %v", err)
	}
	if got := jar.Get(ZCodeName); got != "" {
		t.Fatalf("z_code before request = %q, want empty", got)
	}

	client := &http.Client{Jar: jar.CookieJar()}
	resp, err := client.Get(srv.URL + "/api/v1/apps/load/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (seed cookie not sent?)", resp.StatusCode)
	}

	if got := jar.Get(ZCodeName); got != "fresh" {
		t.Fatalf("z_code = %q, want %q", got, "fresh")
	}
	changed := jar.Changed()
	if len(changed) != 1 || changed[0].Name != ZCodeName || changed[0].Value != "fresh" {
		t.Fatalf("Changed = %#v, want only z_code=fresh", changed)
	}
}

func TestJar_NarrowPathSetCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: ZCodeName, Value: "scoped", Path: "/api/"})
		http.SetCookie(w, &http.Cookie{Name: "stale", Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jar, err := NewJar(srv.URL, Parse("csrftoken=tok; z_code=old; stale=1").Cookies())
	if err != nil {
		t.Fatalf("NewJar: %v", err)
	}
	client := &http.Client{Jar: jar.CookieJar()}
	resp, err := client.Get(srv.URL + "/api/v1/organization/org1/set")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := jar.Get(ZCodeName); got != "scoped" {
		t.Fatalf("z_code = %q, want %q", got, "scoped")
	}
	if got := jar.Get("stale"); got != "" {
		t.Fatalf("stale = %q, want empty after Max-Age=0", got)
	}
	var relayed *http.Cookie
	for _, c := range jar.Changed() {
		if c.Name == ZCodeName {
			relayed = c
		}
	}
	if relayed == nil || relayed.Value != "scoped" || relayed.Path != "/" {
		t.Fatalf("Changed z_code = %#v, want scoped at Path=/", relayed)
	}
}

func TestNewJar_RejectsRelativeBase(t *testing.T) {
	if _, err := NewJar("/relative", nil); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}
