package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gsessions "github.com/gorilla/sessions"

	"orgsession/internal/auth"
	"orgsession/internal/session"
)

// SIDKey 是浏览器会话 id 在 cookie 会话里的键，gin 侧与这里共用。
const SIDKey = "sid"

const (
	sidKey        ctxKey = 3
	orgSessionKey ctxKey = 4
)

// OrgSessionReader 读取 sid 对应且仍有效的已提交组织会话。
type OrgSessionReader interface {
	GetOrgSession(ctx context.Context, sid string, now time.Time) (session.Details, bool, error)
}

// SessionDetails 在 gin 之外解码同一个会话 cookie 拿到 sid，再从 st 读取已提交的组织会话，
// 写入请求上下文与访问日志。cookie 缺失、无法解码或会话不存在时原样放行。
func SessionDetails(cookies gsessions.Store, cookieName string, st OrgSessionReader) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := SIDFromContext(r.Context())
			if sid == "" && cookies != nil {
				sid = sidFromCookie(r, cookies, cookieName)
			}
			if sid == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithSID(r.Context(), sid)

			if st != nil {
				d, ok, err := st.GetOrgSession(ctx, sid, time.Now())
				if err != nil {
					slog.Warn("读取组织会话失败", "request_id", GetRequestID(ctx), "err", err)
				} else if ok {
					ctx = context.WithValue(ctx, orgSessionKey, d)
					sc := ScopeOf(sid, d)
					ctx = auth.WithScope(ctx, sc)
					RecordScope(ctx, sc)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sidFromCookie(r *http.Request, cookies gsessions.Store, cookieName string) string {
	if _, err := r.Cookie(cookieName); err != nil {
		return ""
	}
	sess, err := cookies.Get(r, cookieName)
	if err != nil || sess == nil {
		return ""
	}
	sid, _ := sess.Values[SIDKey].(string)
	return strings.TrimSpace(sid)
}

// ScopeOf 从已提交会话提取日志可用的作用域（不含 token）。
func ScopeOf(sid string, d session.Details) auth.Scope {
	return auth.Scope{
		SID:     sid,
		OrgID:   d.OrgID,
		AppID:   d.AppID,
		Email:   d.Email,
		IsAdmin: d.IsAdmin,
	}
}

func WithSID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sidKey, sid)
}

func SIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sidKey).(string)
	return s
}

// OrgSessionFromContext 返回 SessionDetails 读取到的已提交会话。
func OrgSessionFromContext(ctx context.Context) (session.Details, bool) {
	d, ok := ctx.Value(orgSessionKey).(session.Details)
	return d, ok
}
