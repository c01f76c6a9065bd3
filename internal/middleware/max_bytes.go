package middleware

import "net/http"

// MaxBytes 限制请求体大小；n<=0 时不限制。
// 声明的 Content-Length 已超限时直接 413，否则由 MaxBytesReader 在读取时截断。
func MaxBytes(n int64) Middleware {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				w.Header().Set("Connection", "close")
				http.Error(w, "请求体超过大小限制", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
