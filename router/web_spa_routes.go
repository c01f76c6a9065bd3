package router

import (
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

func setWebSPARoutes(r *gin.Engine, opts Options) {
	frontendBaseURL := strings.TrimRight(strings.TrimSpace(opts.FrontendBaseURL), "/")
	if frontendBaseURL != "" {
		r.NoRoute(func(c *gin.Context) {
			if isServerPath(c.Request.URL.Path) {
				c.Status(http.StatusNotFound)
				return
			}
			c.Redirect(http.StatusMovedPermanently, frontendBaseURL+c.Request.RequestURI)
		})
		return
	}

	// gzip 只作用于静态资源与 SPA 入口（在 API 路由之后注册）。
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	if assets := frontendAssets(opts); assets != nil {
		r.Use(static.Serve("/", assetFS{assets}))
	}

	indexPage := opts.FrontendIndexPage
	if len(indexPage) == 0 {
		indexPage = defaultIndexPage()
	}

	r.NoRoute(func(c *gin.Context) {
		if isServerPath(c.Request.URL.Path) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
	})
}

func frontendAssets(opts Options) http.FileSystem {
	if opts.FrontendFS != nil {
		sub, err := fs.Sub(opts.FrontendFS, "web/dist")
		if err != nil {
			return nil
		}
		return http.FS(sub)
	}
	if dir := strings.TrimSpace(opts.FrontendDistDir); dir != "" {
		return http.Dir(dir)
	}
	return nil
}

// assetFS 只暴露普通文件；根路径与目录一律视为不存在，交给 NoRoute 返回 SPA 入口。
type assetFS struct {
	http.FileSystem
}

func (a assetFS) Exists(_ string, p string) bool {
	f, err := a.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	st, err := f.Stat()
	return err == nil && !st.IsDir()
}

func (a assetFS) Open(name string) (http.File, error) {
	if strings.TrimSpace(name) == "" || name == "/" {
		return nil, os.ErrNotExist
	}
	return a.FileSystem.Open(name)
}

// isServerPath 判断路径是否属于服务端路由；这些路径未命中时返回 404，不回落到 SPA 入口。
func isServerPath(p string) bool {
	p = strings.TrimSpace(p)
	for _, prefix := range []string{"/api", "/debug"} {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	switch p {
	case "/bootstrap", "/error", "/healthz":
		return true
	default:
		return false
	}
}

func defaultIndexPage() []byte {
	return []byte(`<!doctype html>
<html lang="zh-CN">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>orgsession</title>
  </head>
  <body>
    <div style="font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; max-width: 720px; margin: 40px auto; padding: 0 16px;">
      <h1 style="margin: 0 0 12px;">orgsession</h1>
      <p style="margin: 0 0 12px;">前端构建产物未发现（默认路径：<code>web/dist</code>）。</p>
      <p style="margin: 0;">访问 <code>/bootstrap</code> 建立组织会话，或先构建前端再重新启动。</p>
    </div>
  </body>
</html>`)
}
