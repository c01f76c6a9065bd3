// Package config 负责读取并合并服务配置（环境变量为主，可选 .env），避免在业务代码里散落解析逻辑。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	DB       DBConfig       `yaml:"db"`
	Security SecurityConfig `yaml:"security"`
	Frontend FrontendConfig `yaml:"frontend"`
	Debug    DebugConfig    `yaml:"debug"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// PublicBaseURL 用于拼接登录回跳的 redirect_url；为空时按请求推断。
	PublicBaseURL string `yaml:"public_base_url"`

	ReadHeaderTimeoutSeconds int `yaml:"read_header_timeout_seconds"`
	ReadTimeoutSeconds       int `yaml:"read_timeout_seconds"`
	IdleTimeoutSeconds       int `yaml:"idle_timeout_seconds"`
	MaxHeaderBytes           int `yaml:"max_header_bytes"`
}

// BackendConfig 描述 bootstrap 调用的后端 API。
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	// RequestTimeoutSeconds 是单个请求的总超时；0 表示只依赖调用方 context。
	RequestTimeoutSeconds      int `yaml:"request_timeout_seconds"`
	DialTimeoutSeconds         int `yaml:"dial_timeout_seconds"`
	TLSHandshakeTimeoutSeconds int `yaml:"tls_handshake_timeout_seconds"`

	UserAgent string `yaml:"user_agent"`
	// AdminRole 是成员列表里代表组织管理员的角色值。
	AdminRole string `yaml:"admin_role"`
}

type DBConfig struct {
	// Driver 支持 mysql/sqlite；为空时会根据 dsn 自动推断。
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
}

type SecurityConfig struct {
	// SessionSecret 用于派生浏览器会话 cookie 的签名/加密 key；为空时每次启动随机生成。
	SessionSecret        string `yaml:"session_secret"`
	DisableSecureCookies bool   `yaml:"disable_secure_cookies"`
	SessionTTLSeconds    int    `yaml:"session_ttl_seconds"`

	TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type FrontendConfig struct {
	BaseURL string `yaml:"base_url"`
	DistDir string `yaml:"dist_dir"`
}

type DebugConfig struct {
	Routes     bool     `yaml:"routes"`
	AllowCIDRs []string `yaml:"allow_cidrs"`
	Token      string   `yaml:"token"`
}

// LoadFromEnv 仅从环境变量加载配置（.env 由调用方预先加载）。
func LoadFromEnv() (Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return normalizeAndValidate(cfg)
}

func normalizeAndValidate(cfg Config) (Config, error) {
	publicBaseURL, err := NormalizeHTTPBaseURL(cfg.Server.PublicBaseURL, "server.public_base_url")
	if err != nil {
		return Config{}, err
	}
	cfg.Server.PublicBaseURL = publicBaseURL
	if cfg.Server.Addr == "" {
		return Config{}, errors.New("server.addr 不能为空")
	}

	backendBaseURL, err := NormalizeHTTPBaseURL(cfg.Backend.BaseURL, "backend.base_url")
	if err != nil {
		return Config{}, err
	}
	if backendBaseURL == "" {
		return Config{}, errors.New("backend.base_url 不能为空")
	}
	cfg.Backend.BaseURL = backendBaseURL
	cfg.Backend.AdminRole = strings.TrimSpace(cfg.Backend.AdminRole)
	if cfg.Backend.AdminRole == "" {
		cfg.Backend.AdminRole = DefaultAdminRole
	}
	if cfg.Backend.RequestTimeoutSeconds < 0 {
		return Config{}, errors.New("backend.request_timeout_seconds 不能为负数")
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.DB.DSN = strings.TrimSpace(cfg.DB.DSN)
	cfg.DB.SQLitePath = strings.TrimSpace(cfg.DB.SQLitePath)
	if cfg.DB.Driver == "" {
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "mysql"
		} else {
			cfg.DB.Driver = "sqlite"
		}
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if cfg.DB.SQLitePath == "" {
			cfg.DB.SQLitePath = defaultSQLitePath
		}
	case "mysql":
		if cfg.DB.DSN == "" {
			return Config{}, errors.New("db.dsn 不能为空（db.driver=mysql）")
		}
	default:
		return Config{}, fmt.Errorf("db.driver 不支持：%s（仅支持 mysql/sqlite）", cfg.DB.Driver)
	}

	if cfg.Security.SessionTTLSeconds <= 0 {
		cfg.Security.SessionTTLSeconds = defaultSessionTTLSeconds
	}

	frontendBaseURL, err := NormalizeHTTPBaseURL(cfg.Frontend.BaseURL, "frontend.base_url")
	if err != nil {
		return Config{}, err
	}
	cfg.Frontend.BaseURL = frontendBaseURL
	cfg.Frontend.DistDir = strings.TrimSpace(cfg.Frontend.DistDir)

	cfg.Debug.Token = strings.TrimSpace(cfg.Debug.Token)
	return cfg, nil
}

func NormalizeHTTPBaseURL(raw string, label string) (string, error) {
	v := strings.TrimRight(strings.TrimSpace(raw), "/")
	if v == "" {
		return "", nil
	}
	u, err := url.Parse(v)
	if err != nil {
		if strings.TrimSpace(label) == "" {
			return "", fmt.Errorf("解析 base_url 失败: %w", err)
		}
		return "", fmt.Errorf("解析 %s 失败: %w", label, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		if strings.TrimSpace(label) == "" {
			return "", errors.New("base_url 仅支持 http/https")
		}
		return "", fmt.Errorf("%s 仅支持 http/https", label)
	}
	if u.Host == "" {
		if strings.TrimSpace(label) == "" {
			return "", errors.New("base_url host 不能为空")
		}
		return "", fmt.Errorf("%s host 不能为空", label)
	}
	return v, nil
}

const (
	DefaultAdminRole = "unstract_admin"

	defaultSQLitePath        = "./data/orgsession.db?_busy_timeout=30000"
	defaultSessionTTLSeconds = 7 * 24 * 3600
)

func defaultConfig() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr: ":8080",

			ReadHeaderTimeoutSeconds: 5,
			ReadTimeoutSeconds:       30,
			IdleTimeoutSeconds:       120,
			MaxHeaderBytes:           1048576,
		},
		Backend: BackendConfig{
			BaseURL:                    "http://localhost:8000",
			RequestTimeoutSeconds:      0,
			DialTimeoutSeconds:         30,
			TLSHandshakeTimeoutSeconds: 10,
			UserAgent:                  "orgsession",
			AdminRole:                  DefaultAdminRole,
		},
		DB: DBConfig{
			SQLitePath: defaultSQLitePath,
		},
		Security: SecurityConfig{
			SessionTTLSeconds: defaultSessionTTLSeconds,
		},
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
