package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// CSRFHeader 与后端一致，前端已经持有 csrftoken，直接复用。
const CSRFHeader = "X-CSRFToken"

// CSRF 对有副作用的方法校验已提交会话中的 csrfToken（header 或表单字段 _csrf）。
// 当前浏览器没有已提交会话时没有可保护的状态，直接放行。
func CSRF() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			default:
			}

			d, ok := OrgSessionFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			expected := strings.TrimSpace(d.CSRFToken)
			if expected == "" {
				http.Error(w, "会话缺少 csrf token，请重新建立会话", http.StatusForbidden)
				return
			}

			if tokenEqual(r.Header.Get(CSRFHeader), expected) {
				next.ServeHTTP(w, r)
				return
			}

			if err := r.ParseForm(); err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					http.Error(w, "请求体超过大小限制", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "表单解析失败", http.StatusBadRequest)
				return
			}
			if !tokenEqual(r.FormValue("_csrf"), expected) {
				http.Error(w, "CSRF 校验失败（请刷新页面后重试）", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenEqual(got string, expected string) bool {
	got = strings.TrimSpace(got)
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
