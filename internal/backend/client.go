// Package backend 封装 bootstrap 依赖的三个后端接口：应用加载、组织激活、成员列表。
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"orgsession/internal/config"
	"orgsession/internal/cookies"
	"orgsession/internal/session"
)

const (
	AppLoadPath         = "/api/v1/apps/load/"
	organizationSetPath = "/api/v1/organization/%s/set"
	membersPath         = "/api/v1/unstract/%s/users/"

	CSRFHeader = "X-CSRFToken"

	maxBodyBytes = 2 << 20
)

var ErrMalformedResponse = errors.New("后端响应格式不合法")

type Client struct {
	cfg  config.BackendConfig
	base *url.URL
	http *http.Client
}

// Establishment 是组织激活接口的结果。
type Establishment struct {
	User    session.RawUserRecord
	OrgName string
}

type Member struct {
	Email string
	Role  string
}

func cloneDefaultTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func NewClient(cfg config.BackendConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("解析 backend.base_url 失败: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend.base_url 不完整: %q", cfg.BaseURL)
	}

	t := cloneDefaultTransport()
	t.DialContext = (&net.Dialer{
		Timeout:   time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = time.Duration(cfg.TLSHandshakeTimeoutSeconds) * time.Second

	return &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{
			Transport: t,
			Timeout:   time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			// 后端的 302 也属于需要分类的响应，不自动跟随。
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// BaseURL 返回规范化后的后端 base URL（不含末尾斜杠）。
func (c *Client) BaseURL() string {
	return c.base.String()
}

// NewJar 创建一个以 seed 播种、作用域为后端的 cookie jar。
func (c *Client) NewJar(seed []*http.Cookie) (*cookies.Jar, error) {
	return cookies.NewJar(c.BaseURL(), seed)
}

// LoadApp 读取当前浏览器会话所属的组织与应用。
func (c *Client) LoadApp(ctx context.Context, jar *cookies.Jar) (session.SessionContext, error) {
	body, err := c.do(ctx, jar, http.MethodGet, AppLoadPath, false, "", nil)
	if err != nil {
		return session.SessionContext{}, err
	}
	orgID := gjson.GetBytes(body, "org_id")
	appID := gjson.GetBytes(body, "app_id")
	if !orgID.Exists() || !appID.Exists() || strings.TrimSpace(orgID.String()) == "" || strings.TrimSpace(appID.String()) == "" {
		return session.SessionContext{}, fmt.Errorf("%w: %s 缺少 org_id/app_id", ErrMalformedResponse, AppLoadPath)
	}
	return session.SessionContext{OrgID: orgID.String(), AppID: appID.String()}, nil
}

// SetOrganization 激活组织；csrfToken 为空时仍然发出请求，由后端拒绝。
func (c *Client) SetOrganization(ctx context.Context, jar *cookies.Jar, sc session.SessionContext, csrfToken string) (Establishment, error) {
	payload, err := sjson.SetBytes([]byte(`{}`), "app_id", sc.AppID)
	if err != nil {
		return Establishment{}, fmt.Errorf("构造请求体失败: %w", err)
	}
	path := fmt.Sprintf(organizationSetPath, url.PathEscape(sc.OrgID))
	body, err := c.do(ctx, jar, http.MethodPost, path, true, csrfToken, payload)
	if err != nil {
		return Establishment{}, err
	}

	user := gjson.GetBytes(body, "user")
	if !user.IsObject() {
		return Establishment{}, fmt.Errorf("%w: %s 缺少 user", ErrMalformedResponse, path)
	}
	record, ok := user.Value().(map[string]any)
	if !ok {
		return Establishment{}, fmt.Errorf("%w: %s user 不是对象", ErrMalformedResponse, path)
	}
	raw := session.RawUserRecord(record)
	if strings.TrimSpace(raw.Email()) == "" {
		return Establishment{}, fmt.Errorf("%w: %s user 缺少 email", ErrMalformedResponse, path)
	}
	return Establishment{
		User:    raw,
		OrgName: gjson.GetBytes(body, "organization.name").String(),
	}, nil
}

// ListMembers 列出当前组织的全部成员。
func (c *Client) ListMembers(ctx context.Context, jar *cookies.Jar, orgID string, csrfToken string) ([]Member, error) {
	path := fmt.Sprintf(membersPath, url.PathEscape(orgID))
	body, err := c.do(ctx, jar, http.MethodGet, path, true, csrfToken, nil)
	if err != nil {
		return nil, err
	}
	members := gjson.GetBytes(body, "members")
	if !members.IsArray() {
		return nil, fmt.Errorf("%w: %s 缺少 members", ErrMalformedResponse, path)
	}
	var out []Member
	members.ForEach(func(_, m gjson.Result) bool {
		out = append(out, Member{
			Email: m.Get("email").String(),
			Role:  m.Get("role").String(),
		})
		return true
	})
	return out, nil
}

func (c *Client) do(ctx context.Context, jar *cookies.Jar, method string, path string, withCSRF bool, csrfToken string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ua := strings.TrimSpace(c.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if withCSRF {
		req.Header.Set(CSRFHeader, csrfToken)
	}
	if method != http.MethodGet {
		// Django 的 CSRF 校验在 HTTPS 下要求 Referer 与目标同源。
		req.Header.Set("Referer", c.base.Scheme+"://"+c.base.Host+"/")
	}

	hc := c.http
	if jar != nil {
		cp := *c.http
		cp.Jar = jar.CookieJar()
		hc = &cp
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(method, path, resp.StatusCode, body)
	}
	return body, nil
}
