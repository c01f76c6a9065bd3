// Package session 定义组织会话的数据形状：bootstrap 过程中的原始用户记录、归一化后的会话详情，以及唯一的写入能力。
package session

import (
	"context"
	"strconv"
	"time"
)

// SessionContext 是 Resolver 解析出的组织/应用作用域，一次 bootstrap 内只读。
type SessionContext struct {
	OrgID string `json:"org_id"`
	AppID string `json:"app_id"`
}

// 派生字段名与前端共享的 session 形状保持一致。
const (
	FieldOrgName   = "orgName"
	FieldOrgID     = "orgId"
	FieldAppID     = "appId"
	FieldIsAdmin   = "isAdmin"
	FieldCSRFToken = "csrfToken"
	FieldZCode     = "zCode"
)

// RawUserRecord 是后端返回的用户对象（原样保留全部字段），bootstrap 会就地追加派生字段。
type RawUserRecord map[string]any

func (r RawUserRecord) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (r RawUserRecord) Bool(key string) bool {
	if r == nil {
		return false
	}
	b, _ := r[key].(bool)
	return b
}

func (r RawUserRecord) Email() string {
	return r.String("email")
}

// Details 是写入共享会话状态的唯一产物。
type Details struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`

	OrgName string `json:"orgName"`
	OrgID   string `json:"orgId"`
	AppID   string `json:"appId"`
	IsAdmin bool   `json:"isAdmin"`

	CSRFToken string `json:"csrfToken"`
	ZCode     string `json:"zCode"`

	// Extra 保留后端用户对象中未被显式映射的字段。
	Extra map[string]any `json:"extra,omitempty"`

	EstablishedAt time.Time `json:"establishedAt"`
}

// Writer 是注入到 bootstrap 的唯一写能力；一次成功的 bootstrap 恰好调用一次。
type Writer interface {
	SetSessionDetails(ctx context.Context, d Details) error
}

// WriterFunc 便于用闭包实现 Writer。
type WriterFunc func(ctx context.Context, d Details) error

func (f WriterFunc) SetSessionDetails(ctx context.Context, d Details) error {
	return f(ctx, d)
}
