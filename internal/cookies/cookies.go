// Package cookies 把浏览器 cookie 串解析为结构化的 name→value 映射，并提供按后端 base URL 作用域的临时 cookie jar。
package cookies

import (
	"net/http"
	"strings"
)

const (
	// CSRFTokenName 是后端下发的防伪 token cookie，所有带副作用的请求都要带上其值。
	CSRFTokenName = "csrftoken"
	// ZCodeName 是组织激活后后端下发的第二个不透明值。
	ZCodeName = "z_code"
	// SessionIDName 是后端的登录会话 cookie。
	SessionIDName = "sessionid"
)

// Source 是按名称读取 cookie 值的最小能力；不存在时返回空串。
type Source interface {
	Get(name string) string
}

// Values 是解析后的 cookie 映射。
type Values map[string]string

func (v Values) Get(name string) string {
	if v == nil {
		return ""
	}
	return v[strings.TrimSpace(name)]
}

// Cookies 转换为 *http.Cookie 列表（顺序不保证），用于给 jar 播种。
func (v Values) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(v))
	for name, value := range v {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}

// Parse 解析 document.cookie 风格的字符串（"a=1; b=2"）。
//
// 不合法的片段直接跳过；同名 cookie 取第一次出现的值（与浏览器发送顺序一致）。
func Parse(raw string) Values {
	out := Values{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || !validName(name) {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if _, exists := out[name]; exists {
			continue
		}
		out[name] = value
	}
	return out
}

// FromRequest 读取入站请求携带的全部 cookie。
func FromRequest(r *http.Request) Values {
	out := Values{}
	if r == nil {
		return out
	}
	for _, c := range r.Cookies() {
		if _, exists := out[c.Name]; exists {
			continue
		}
		out[c.Name] = c.Value
	}
	return out
}

func validName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`()<>@,;:\"/[]?={}`, c) >= 0 {
			return false
		}
	}
	return true
}
