package web

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
)

// ErrorPage 处理 GET /error?status=&title=&subTitle=，渲染恢复页面。
func (h *Handlers) ErrorPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := strconv.Atoi(strings.TrimSpace(q.Get("status")))
	if err != nil || status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	title := strings.TrimSpace(q.Get("title"))
	if title == "" {
		title = strconv.Itoa(status)
	}
	subTitle := strings.TrimSpace(q.Get("subTitle"))
	if subTitle == "" {
		subTitle = http.StatusText(status)
	}
	writeErrorHTML(w, status, title, subTitle)
}

func writeErrorHTML(w http.ResponseWriter, status int, title string, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	safeTitle := html.EscapeString(title)
	safeMessage := html.EscapeString(message)

	_, _ = fmt.Fprintf(w, `<!doctype html>
<html lang="zh-CN">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>%s</title>
  <style>
    :root { color-scheme: light dark; }
    body { font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial; margin: 0; padding: 24px; }
    .card { max-width: 720px; margin: 0 auto; padding: 18px 20px; border: 1px solid rgba(127,127,127,.25); border-radius: 12px; }
    h1 { font-size: 18px; margin: 0 0 8px; }
    p { margin: 8px 0; line-height: 1.5; }
    a { text-decoration: none; }
  </style>
</head>
<body>
  <div class="card">
    <h1>%s</h1>
    <p>%s</p>
    <p><a href="/">返回首页</a></p>
  </div>
</body>
</html>`, safeTitle, safeTitle, safeMessage)
}
