// Package security 提供后端地址校验、对外地址推断与站内回跳路径的收敛。
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ValidateBackendURL 校验命令行传入的后端 base URL，并返回去掉末尾斜杠的规范形式。
//
// cookie 按 host 作用域发送，所以拒绝 userinfo、query 与 fragment；
// 非 IP 的 host 必须能解析，避免把浏览器 cookie 发往拼错的域名。
func ValidateBackendURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base url 不能为空")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("解析 base url 失败: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("base url 仅支持 http/https")
	}
	host := u.Hostname()
	if host == "" {
		return "", errors.New("base url host 不能为空")
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", errors.New("base url 不能包含用户信息、query 或 fragment")
	}

	if _, err := netip.ParseAddr(host); err != nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return "", fmt.Errorf("解析 base url DNS 失败: %w", err)
		}
		if len(addrs) == 0 {
			return "", errors.New("base url 无可用 DNS 解析结果")
		}
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}
