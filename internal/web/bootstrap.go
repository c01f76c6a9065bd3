package web

import (
	"log/slog"
	"net/http"

	"orgsession/internal/bootstrap"
	"orgsession/internal/middleware"
	"orgsession/internal/security"
)

// Bootstrap 处理 GET /bootstrap?next=<path>。
//
// 浏览器会话 id 由外层（gin 会话）写入请求上下文，同时作为 single-flight 的 key。
// 成功：回写后端新下发的 cookie 后 302 到 next；已分类失败：302 到恢复页面；其余失败：502。
func (h *Handlers) Bootstrap(w http.ResponseWriter, r *http.Request) {
	sid := middleware.SIDFromContext(r.Context())
	if sid == "" {
		h.fail(w, r, http.StatusInternalServerError, "浏览器会话未初始化")
		return
	}
	if h.opts.Runner == nil || h.opts.Store == nil {
		h.fail(w, r, http.StatusServiceUnavailable, "bootstrap 未配置")
		return
	}

	next := security.SafeNextPath(r.URL.Query().Get("next"))
	in := bootstrap.Input{
		Cookies:    h.backendCookies(r),
		CurrentURL: security.CurrentURL(r, h.opts.PublicBaseURL, next, h.opts.TrustProxyHeaders, h.opts.TrustedProxies),
	}

	out, err := h.opts.Runner.Run(r.Context(), sid, in, h.opts.Store.Writer(sid))
	switch {
	case out.Committed():
		for _, c := range out.Cookies {
			http.SetCookie(w, h.relayCookie(c))
		}
		if out.Details != nil {
			middleware.RecordScope(r.Context(), middleware.ScopeOf(sid, *out.Details))
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: out.Details})
			return
		}
		http.Redirect(w, r, next, http.StatusFound)
	case out.Redirect != "":
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, apiResponse{Success: false, Kind: string(out.Kind), Redirect: out.Redirect})
			return
		}
		http.Redirect(w, r, out.Redirect, http.StatusFound)
	default:
		slog.Error("bootstrap 未能建立组织会话",
			"request_id", middleware.GetRequestID(r.Context()),
			"stage", out.FailedAt.String(),
			"err", err,
		)
		h.fail(w, r, http.StatusBadGateway, "组织会话建立失败，请稍后重试")
	}
}

// backendCookies 返回需要转发给后端的浏览器 cookie（排除前置服务自身的会话 cookie）。
func (h *Handlers) backendCookies(r *http.Request) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range r.Cookies() {
		if c.Name == h.opts.SessionCookieName {
			continue
		}
		out = append(out, c)
	}
	return out
}

// relayCookie 把后端 cookie 以站点级作用域回写给浏览器；前端需要读取 csrftoken/z_code，所以不加 HttpOnly。
func (h *Handlers) relayCookie(c *http.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     "/",
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if wantsJSON(r) {
		writeJSON(w, status, apiResponse{Success: false, Message: message})
		return
	}
	writeErrorHTML(w, status, http.StatusText(status), message)
}
