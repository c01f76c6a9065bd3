package security

import (
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// RequestOrigin 推断浏览器看到的 scheme://host，用于拼登录回跳的 redirect_url。
//
// 只有 trustProxyHeaders 为真且直连地址落在 trustedProxies 内时才读转发头：
// 先读 RFC 7239 Forwarded 的首个元素，缺失的字段再取 X-Forwarded-Proto / X-Forwarded-Host。
// 非 http/https 的 proto、带路径或空白的 host 一律忽略。
func RequestOrigin(r *http.Request, trustProxyHeaders bool, trustedProxies []netip.Prefix) string {
	if r == nil {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := strings.TrimSpace(r.Host)
	if host == "" && r.URL != nil {
		host = strings.TrimSpace(r.URL.Host)
	}

	if trustProxyHeaders && RemoteAddrIn(r, trustedProxies) {
		fwdProto, fwdHost := parseForwarded(r.Header.Get("Forwarded"))
		if fwdProto == "" {
			fwdProto = firstToken(r.Header.Get("X-Forwarded-Proto"))
		}
		if fwdHost == "" {
			fwdHost = firstToken(r.Header.Get("X-Forwarded-Host"))
		}
		if p, ok := validProto(fwdProto); ok {
			scheme = p
		}
		if h, ok := validHost(fwdHost); ok {
			host = h
		}
	}

	if host == "" {
		return ""
	}
	return scheme + "://" + host
}

// parseForwarded 读取 Forwarded 头第一跳的 proto 与 host，例如 `for=1.2.3.4;proto=https;host="a.example"`。
func parseForwarded(raw string) (proto string, host string) {
	first := firstToken(raw)
	for _, pair := range strings.Split(first, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "proto":
			proto = v
		case "host":
			host = v
		}
	}
	return proto, host
}

func validProto(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "http", "https":
		return v, true
	default:
		return "", false
	}
}

func validHost(v string) (string, bool) {
	if v == "" || strings.ContainsAny(v, " \t\r\n/\\@") {
		return "", false
	}
	u, err := url.Parse("http://" + v)
	if err != nil || u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if !strings.EqualFold(u.Host, v) {
		return "", false
	}
	return v, true
}

func firstToken(raw string) string {
	v, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(v)
}
