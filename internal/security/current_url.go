package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// SafeNextPath 只接受站内绝对路径（"/x?y"），其余一律回落到 "/"，避免开放重定向。
func SafeNextPath(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || !strings.HasPrefix(v, "/") {
		return "/"
	}
	if strings.HasPrefix(v, "//") || strings.ContainsAny(v, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return u.RequestURI()
}

// CurrentURL 把站内路径拼成浏览器视角的绝对地址。
// publicBaseURL 非空时优先；否则按请求推断（受 trustProxyHeaders/trustedProxies 约束）。
func CurrentURL(r *http.Request, publicBaseURL string, next string, trustProxyHeaders bool, trustedProxies []netip.Prefix) string {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		base = RequestOrigin(r, trustProxyHeaders, trustedProxies)
	}
	return base + SafeNextPath(next)
}

// ParsePrefixes 解析 CIDR 或单个 IP 列表（单 IP 视为 /32 或 /128）。
func ParsePrefixes(items []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range items {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("解析 CIDR %q 失败: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("解析 IP %q 失败: %w", v, err)
		}
		out = append(out, netip.PrefixFrom(ip, ip.BitLen()))
	}
	return out, nil
}

// RemoteAddrIn 判断请求的直连地址是否落在 prefixes 内。
func RemoteAddrIn(r *http.Request, prefixes []netip.Prefix) bool {
	if r == nil || len(prefixes) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
