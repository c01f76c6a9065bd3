// 访问日志（结构化）只记录组织作用域，不记录请求体、cookie 与任何 token。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"orgsession/internal/auth"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if fl, ok := w.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		holder := &scopeHolder{}
		r = r.WithContext(context.WithValue(r.Context(), scopeHolderKey, holder))
		if sc, ok := auth.ScopeFromContext(r.Context()); ok {
			holder.set(sc)
		}
		start := time.Now()
		next.ServeHTTP(sw, r)
		lat := time.Since(start)

		attrs := []any{
			"request_id", GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"latency_ms", lat.Milliseconds(),
		}
		// 作用域由内层的 SessionDetails 写回 holder。
		if sc, ok := holder.get(); ok {
			attrs = append(attrs, "org_id", sc.OrgID, "app_id", sc.AppID, "is_admin", sc.IsAdmin)
		}
		slog.Info("access", attrs...)
	})
}

const scopeHolderKey ctxKey = 2

// scopeHolder 让外层的 AccessLog 读到内层中间件解析出的组织作用域。
type scopeHolder struct {
	scope auth.Scope
	ok    bool
}

func (h *scopeHolder) set(s auth.Scope) {
	h.scope = s
	h.ok = true
}

func (h *scopeHolder) get() (auth.Scope, bool) {
	return h.scope, h.ok
}

// RecordScope 把组织作用域登记到当前请求的访问日志上。
func RecordScope(ctx context.Context, s auth.Scope) {
	if h, ok := ctx.Value(scopeHolderKey).(*scopeHolder); ok && h != nil {
		h.set(s)
	}
}
