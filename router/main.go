// Package router 把前置服务的处理器挂到 gin 引擎上：bootstrap、会话 API、错误页、系统路由与 SPA。
package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func SetRouter(r *gin.Engine, opts Options) {
	setSystemRoutes(r, opts)
	setBootstrapRoutes(r, opts)

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	setSessionAPIRoutes(api, opts)

	setWebSPARoutes(r, opts)
}
