// Package web 实现前置服务的 HTTP 处理器：代浏览器执行组织会话 bootstrap、读取/注销已提交会话，以及错误页。
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"

	"orgsession/internal/bootstrap"
	"orgsession/internal/session"
)

// Runner 是 bootstrap 的执行入口，*bootstrap.Runner 实现了它。
type Runner interface {
	Run(ctx context.Context, key string, in bootstrap.Input, w session.Writer) (bootstrap.Outcome, error)
}

// SessionStore 是按浏览器会话 id 保存组织会话的存储，*store.Store 实现了它。
type SessionStore interface {
	Writer(sid string) session.Writer
	DeleteOrgSession(ctx context.Context, sid string) error
}

type Options struct {
	Runner Runner
	Store  SessionStore

	// SessionCookieName 是前置服务自身的会话 cookie，不转发给后端。
	SessionCookieName string
	// PublicBaseURL 用于拼接登录回跳地址；为空时按请求推断。
	PublicBaseURL     string
	TrustProxyHeaders bool
	TrustedProxies    []netip.Prefix
	// SecureCookies 决定回写给浏览器的后端 cookie 是否带 Secure。
	SecureCookies bool
}

type Handlers struct {
	opts Options
}

func New(opts Options) *Handlers {
	opts.SessionCookieName = strings.TrimSpace(opts.SessionCookieName)
	return &Handlers{opts: opts}
}

type apiResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json")
}
