package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgsession/internal/middleware"
)

func wrapHTTP(h http.Handler) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		}
	}

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func wrapHTTPFunc(f http.HandlerFunc) gin.HandlerFunc {
	if f == nil {
		return wrapHTTP(nil)
	}
	return wrapHTTP(f)
}

// withSession 给 net/http 处理器套上统一的中间件：请求 id、访问日志、组织会话读取。
func withSession(opts Options, h http.HandlerFunc, extra ...middleware.Middleware) gin.HandlerFunc {
	if h == nil {
		return wrapHTTP(nil)
	}
	stack := middleware.Stack{
		middleware.RequestID,
		middleware.AccessLog,
		middleware.SessionDetails(opts.CookieStore, opts.SessionCookieName, opts.OrgSessions),
	}
	return wrapHTTP(stack.With(extra...).ThenFunc(h))
}
