// Package browser 通过真实浏览器完成后端登录并取回后端 cookie，供命令行 bootstrap 使用。
//
// 浏览器以可见窗口启动（除非 Headless），用户在页面里完成登录后，
// 一旦出现后端会话 cookie 即视为登录完成。
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"orgsession/internal/cookies"
)

const defaultPollInterval = 500 * time.Millisecond

type Options struct {
	// LoginURL 是打开的首个页面，通常是后端登录页。
	LoginURL string
	// BaseURL 决定保留哪些 cookie：只返回能发往该 host 的 cookie。
	BaseURL string
	// WaitCookie 出现即视为登录完成；为空时使用 sessionid。
	WaitCookie string

	Headless    bool
	BinPath     string
	UserDataDir string

	PollInterval time.Duration
}

var ErrLoginTimeout = errors.New("等待浏览器登录超时")

// CaptureCookies 启动浏览器，等待用户登录，然后返回 BaseURL 所在 host 的全部 cookie。
func CaptureCookies(ctx context.Context, opts Options) ([]*http.Cookie, error) {
	host, err := targetHost(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.LoginURL) == "" {
		opts.LoginURL = opts.BaseURL
	}
	waitName := strings.TrimSpace(opts.WaitCookie)
	if waitName == "" {
		waitName = cookies.SessionIDName
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	l := launcher.New().
		Headless(opts.Headless).
		Devtools(false).
		Set("disable-blink-features", "AutomationControlled")
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}
	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	defer l.Kill()

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	defer b.Close()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	if err := page.Navigate(opts.LoginURL); err != nil {
		return nil, fmt.Errorf("打开登录页失败: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		raw, err := b.GetCookies()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("读取浏览器 cookie 失败: %w", err)
		}
		out := FromNetworkCookies(host, raw)
		for _, c := range out {
			if c.Name == waitName && c.Value != "" {
				return out, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLoginTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func targetHost(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("解析 base url 失败: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("base url 缺少 host: %q", baseURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// FromNetworkCookies 把 DevTools 的 cookie 转成 http.Cookie，并丢弃不会发往 host 的条目。
func FromNetworkCookies(host string, in []*proto.NetworkCookie) []*http.Cookie {
	host = strings.ToLower(strings.TrimSpace(host))
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil || c.Name == "" || !domainMatches(host, c.Domain) {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = c.Expires.Time().UTC()
		}
		switch c.SameSite {
		case proto.NetworkCookieSameSiteStrict:
			hc.SameSite = http.SameSiteStrictMode
		case proto.NetworkCookieSameSiteLax:
			hc.SameSite = http.SameSiteLaxMode
		case proto.NetworkCookieSameSiteNone:
			hc.SameSite = http.SameSiteNoneMode
		}
		out = append(out, hc)
	}
	return out
}

func domainMatches(host string, domain string) bool {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if d == "" {
		return false
	}
	return host == d || strings.HasSuffix(host, "."+d)
}
