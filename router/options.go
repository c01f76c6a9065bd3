package router

import (
	"io/fs"
	"net/http"
	"net/netip"

	gsessions "github.com/gorilla/sessions"

	"orgsession/internal/config"
	"orgsession/internal/middleware"
	"orgsession/internal/web"
)

type Options struct {
	Web *web.Handlers

	// OrgSessions 供 SessionDetails 中间件读取已提交会话。
	OrgSessions middleware.OrgSessionReader
	// CookieStore 与 gin 会话共用同一组 key，用于在 net/http 中间件里解码会话 cookie。
	CookieStore       gsessions.Store
	SessionCookieName string

	TrustProxyHeaders bool
	TrustedProxies    []netip.Prefix
	Debug             config.DebugConfig

	FrontendBaseURL   string // optional; if set, non-API requests redirect to this base.
	FrontendDistDir   string // optional; e.g. "./web/dist" for serving static assets.
	FrontendIndexPage []byte // optional; when empty, SPA routes read dist/index.html at request time.
	FrontendFS        fs.FS  // optional; when set, static assets are served from this FS (typically go:embed).

	Healthz http.HandlerFunc
}
