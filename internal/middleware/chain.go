// Package middleware 提供 net/http 中间件：请求 id、访问日志、组织会话读取与 CSRF 校验。
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Stack 是按顺序套用的中间件，下标 0 在最外层。
type Stack []Middleware

// With 返回追加了 more 的新 Stack，不修改 s 的底层数组。
func (s Stack) With(more ...Middleware) Stack {
	out := make(Stack, 0, len(s)+len(more))
	out = append(out, s...)
	return append(out, more...)
}

// Then 用 s 包裹 h；h 为 nil 时返回 404 处理器，nil 中间件被跳过。
func (s Stack) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == nil {
			continue
		}
		h = s[i](h)
	}
	return h
}

func (s Stack) ThenFunc(f http.HandlerFunc) http.Handler {
	if f == nil {
		return s.Then(nil)
	}
	return s.Then(f)
}
