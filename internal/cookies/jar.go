package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar 是单次 bootstrap 使用的 cookie jar：以入站 cookie 播种，并吸收后端响应里的 Set-Cookie。
//
// 后端响应下发的 cookie 按名字单独记录并优先于播种值，
// 以较窄 Path（如 /api/）下发的 cookie 因此同样可见，回写给浏览器时统一放到根路径。
type Jar struct {
	base *url.URL
	jar  *cookiejar.Jar
	seed map[string]string

	mu  sync.Mutex
	set map[string]string
}

func NewJar(baseURL string, seed []*http.Cookie) (*Jar, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("解析 base_url 失败: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base_url 不完整: %q", baseURL)
	}
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	root := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}

	seeded := make(map[string]string, len(seed))
	planted := make([]*http.Cookie, 0, len(seed))
	for _, c := range seed {
		if c == nil || c.Name == "" {
			continue
		}
		if _, ok := seeded[c.Name]; ok {
			continue
		}
		seeded[c.Name] = c.Value
		// 入站 cookie 不带 Domain/Path 属性，统一挂到根路径，保证对所有 /api 路径可见。
		planted = append(planted, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	j.SetCookies(root, planted)

	return &Jar{base: root, jar: j, seed: seeded, set: map[string]string{}}, nil
}

// CookieJar 暴露给 http.Client 的 jar；响应里的 Set-Cookie 会经过它记录下来。
func (j *Jar) CookieJar() http.CookieJar {
	return recordingJar{j: j}
}

type recordingJar struct {
	j *Jar
}

func (r recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	r.j.jar.SetCookies(u, cookies)

	r.j.mu.Lock()
	defer r.j.mu.Unlock()
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(r.j.set, c.Name)
			continue
		}
		r.j.set[c.Name] = c.Value
	}
}

func (r recordingJar) Cookies(u *url.URL) []*http.Cookie {
	return r.j.jar.Cookies(u)
}

// Get 优先返回后端下发的值，其次是根路径可见的 cookie；都没有时返回空串。
func (j *Jar) Get(name string) string {
	if j == nil {
		return ""
	}
	j.mu.Lock()
	v, ok := j.set[name]
	j.mu.Unlock()
	if ok {
		return v
	}
	for _, c := range j.jar.Cookies(j.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Values 返回 jar 当前持有的全部 cookie，后端下发的值覆盖播种值。
func (j *Jar) Values() Values {
	out := Values{}
	if j == nil {
		return out
	}
	for _, c := range j.jar.Cookies(j.base) {
		if _, ok := out[c.Name]; ok {
			continue
		}
		out[c.Name] = c.Value
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for name, value := range j.set {
		out[name] = value
	}
	return out
}

// Changed 返回值与播种时不同（或新增）的 cookie，便于把后端的轮换结果回写给浏览器。
func (j *Jar) Changed() []*http.Cookie {
	if j == nil {
		return nil
	}
	var out []*http.Cookie
	for name, value := range j.Values() {
		if old, ok := j.seed[name]; ok && old == value {
			continue
		}
		out = append(out, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	return out
}
