// Package backendtest 提供一个基于 httptest 的后端替身，覆盖 bootstrap 用到的三个接口。
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Member struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Options struct {
	OrgID   string
	AppID   string
	OrgName string
	User    map[string]any
	Members []Member

	// ZCode 非空时，组织激活接口会通过 Set-Cookie 下发 z_code。
	ZCode string
	// RequireCSRF 为 true 时，带副作用的接口要求 X-CSRFToken 与 csrftoken cookie 一致，否则返回 403。
	RequireCSRF bool

	// Status 按路径前缀强制返回指定状态码（例如 "/api/v1/organization/": 401）。
	Status map[string]int
	// Delay 让每个请求在响应前等待，便于并发测试。
	Delay time.Duration
}

type Server struct {
	*httptest.Server

	opts Options

	mu          sync.Mutex
	calls       []string
	setBodies   []string
	csrfHeaders []string

	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func NewServer(opts Options) *Server {
	s := &Server{opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/apps/load/", s.handleLoad)
	mux.HandleFunc("/api/v1/organization/", s.handleSet)
	mux.HandleFunc("/api/v1/unstract/", s.handleMembers)
	s.Server = httptest.NewServer(s.wrap(mux))
	return s
}

// Calls 按顺序返回收到的 "METHOD path" 列表。
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// SetBodies 返回组织激活接口收到的请求体。
func (s *Server) SetBodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.setBodies...)
}

// CSRFHeaders 返回每个请求携带的 X-CSRFToken（未携带记为 "<none>"）。
func (s *Server) CSRFHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.csrfHeaders...)
}

// MaxInflight 返回观测到的最大并发请求数。
func (s *Server) MaxInflight() int64 {
	return s.maxInflight.Load()
}

func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.inflight.Add(1)
		defer s.inflight.Add(-1)
		for {
			cur := s.maxInflight.Load()
			if n <= cur || s.maxInflight.CompareAndSwap(cur, n) {
				break
			}
		}

		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		if vals, ok := r.Header["X-Csrftoken"]; ok && len(vals) > 0 {
			s.csrfHeaders = append(s.csrfHeaders, vals[0])
		} else {
			s.csrfHeaders = append(s.csrfHeaders, "<none>")
		}
		s.mu.Unlock()

		if s.opts.Delay > 0 {
			time.Sleep(s.opts.Delay)
		}
		for prefix, status := range s.opts.Status {
			if strings.HasPrefix(r.URL.Path, prefix) {
				writeJSON(w, status, map[string]any{"detail": http.StatusText(status)})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"org_id": s.opts.OrgID, "app_id": s.opts.AppID})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/set") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	orgID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/organization/"), "/set")
	if orgID != s.opts.OrgID {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "organization not found"})
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.setBodies = append(s.setBodies, string(body))
	s.mu.Unlock()

	if s.opts.RequireCSRF && !csrfMatches(r) {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed"})
		return
	}
	if s.opts.ZCode != "" {
		http.SetCookie(w, &http.Cookie{Name: "z_code", Value: s.opts.ZCode, Path: "/"})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         s.opts.User,
		"organization": map[string]any{"name": s.opts.OrgName, "organization_id": s.opts.OrgID},
	})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/users/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.opts.RequireCSRF && !csrfMatches(r) {
		writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF Failed"})
		return
	}
	members := s.opts.Members
	if members == nil {
		members = []Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func csrfMatches(r *http.Request) bool {
	c, err := r.Cookie("csrftoken")
	if err != nil || c.Value == "" {
		return false
	}
	return r.Header.Get("X-CSRFToken") == c.Value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
