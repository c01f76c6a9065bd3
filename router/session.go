package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"orgsession/internal/auth"
	"orgsession/internal/middleware"
)

// ensureSID 保证浏览器持有会话 id（存于 gin 会话 cookie），并把它放进请求上下文。
func ensureSID() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		sid, _ := sess.Get(middleware.SIDKey).(string)
		sid = strings.TrimSpace(sid)
		if sid == "" {
			tok, err := auth.NewRandomToken("sid_", 24)
			if err != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			sid = tok
			sess.Set(middleware.SIDKey, sid)
			if err := sess.Save(); err != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}
		c.Request = c.Request.WithContext(middleware.WithSID(c.Request.Context(), sid))
		c.Next()
	}
}

func setBootstrapRoutes(r *gin.Engine, opts Options) {
	if opts.Web == nil {
		return
	}
	r.GET("/bootstrap", ensureSID(), withSession(opts, opts.Web.Bootstrap))
	r.GET("/error", wrapHTTP(middleware.Stack{middleware.RequestID}.ThenFunc(opts.Web.ErrorPage)))
}

func setSessionAPIRoutes(api *gin.RouterGroup, opts Options) {
	if opts.Web == nil {
		return
	}
	api.GET("/session", withSession(opts, opts.Web.Session))
	api.POST("/session/logout", withSession(opts, opts.Web.Logout, middleware.MaxBytes(4<<10), middleware.CSRF()))
}
