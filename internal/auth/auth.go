// Package auth 提供请求级的组织作用域与随机数/密钥派生工具，便于鉴权与审计。
package auth

import (
	"context"
)

// Scope 是当前浏览器已提交会话的组织作用域，只用于日志与鉴权判断，不含任何 token。
type Scope struct {
	SID     string
	OrgID   string
	AppID   string
	Email   string
	IsAdmin bool
}

type ctxKey int

const scopeKey ctxKey = 1

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

func ScopeFromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(scopeKey)
	if v == nil {
		return Scope{}, false
	}
	s, ok := v.(Scope)
	return s, ok
}
