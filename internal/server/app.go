// Package server 组装 HTTP 路由、依赖与中间件，使 main 保持简单可读。
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	gsessions "github.com/gorilla/sessions"

	root "orgsession"
	"orgsession/internal/auth"
	"orgsession/internal/backend"
	"orgsession/internal/bootstrap"
	"orgsession/internal/config"
	"orgsession/internal/security"
	"orgsession/internal/store"
	"orgsession/internal/version"
	"orgsession/internal/web"
	"orgsession/router"
)

const purgeInterval = 10 * time.Minute

type AppOptions struct {
	Config  config.Config
	DB      *sql.DB
	Version version.BuildInfo
}

type App struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.Store
	backend *backend.Client
	runner  *bootstrap.Runner
	version version.BuildInfo
	engine  *gin.Engine

	stop context.CancelFunc
}

func NewApp(opts AppOptions) (*App, error) {
	cfg := opts.Config

	st := store.New(opts.DB)
	st.SetDialect(store.Dialect(cfg.DB.Driver))
	st.SetSessionTTL(time.Duration(cfg.Security.SessionTTLSeconds) * time.Second)

	client, err := backend.NewClient(cfg.Backend)
	if err != nil {
		return nil, err
	}
	// 共享运行不随浏览器请求取消，整体时长以三次后端请求的超时为上限。
	runner := bootstrap.NewRunner(client, bootstrap.Options{
		AdminRole: cfg.Backend.AdminRole,
		Logger:    slog.Default(),
		Timeout:   3 * time.Duration(cfg.Backend.RequestTimeoutSeconds) * time.Second,
	})

	sessionSecret := cfg.Security.SessionSecret
	if sessionSecret == "" {
		slog.Warn("ORGSESSION_SESSION_SECRET 未设置，使用随机密钥（重启后浏览器会话失效）")
		sessionSecret = randomSecret(32)
	}
	hashKey, blockKey, err := auth.DeriveCookieKeys(sessionSecret)
	if err != nil {
		return nil, err
	}
	trustedProxies, err := security.ParsePrefixes(cfg.Security.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("security.trusted_proxy_cidrs: %w", err)
	}
	secureCookies := cfg.Env != "dev" && !cfg.Security.DisableSecureCookies

	app := &App{
		cfg:     cfg,
		db:      opts.DB,
		store:   st,
		backend: client,
		runner:  runner,
		version: opts.Version,
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	sessionStore := cookie.NewStore(hashKey, blockKey)
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Security.SessionTTLSeconds,
		HttpOnly: true,
		Secure:   secureCookies,
		// 登录完成后由后端跳回 /bootstrap，Strict 会让这次跳转丢失会话 cookie。
		SameSite: http.SameSiteLaxMode,
	})
	engine.Use(sessions.Sessions(SessionCookieName, sessionStore))

	var frontendFS fs.FS
	frontendIndexPage := loadEmbeddedIndexHTML()
	if len(frontendIndexPage) > 0 {
		frontendFS = root.WebDistFS
	}

	router.SetRouter(engine, router.Options{
		Web: web.New(web.Options{
			Runner:            runner,
			Store:             st,
			SessionCookieName: SessionCookieName,
			PublicBaseURL:     cfg.Server.PublicBaseURL,
			TrustProxyHeaders: cfg.Security.TrustProxyHeaders,
			TrustedProxies:    trustedProxies,
			SecureCookies:     secureCookies,
		}),
		OrgSessions:       st,
		CookieStore:       gsessions.NewCookieStore(hashKey, blockKey),
		SessionCookieName: SessionCookieName,
		TrustProxyHeaders: cfg.Security.TrustProxyHeaders,
		TrustedProxies:    trustedProxies,
		Debug:             cfg.Debug,
		FrontendBaseURL:   cfg.Frontend.BaseURL,
		FrontendDistDir:   cfg.Frontend.DistDir,
		FrontendIndexPage: frontendIndexPage,
		FrontendFS:        frontendFS,
		Healthz:           app.handleHealthz,
	})
	app.engine = engine

	ctx, cancel := context.WithCancel(context.Background())
	app.stop = cancel
	st.StartPurgeLoop(ctx, purgeInterval, func(err error) {
		slog.Warn("清理过期组织会话失败", "err", err)
	})
	return app, nil
}

func randomSecret(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10) + "-orgsession-fallback"
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func loadEmbeddedIndexHTML() []byte {
	b, err := fs.ReadFile(root.WebDistFS, "web/dist/index.html")
	if err != nil || len(b) == 0 {
		return nil
	}
	return b
}

func (a *App) Handler() http.Handler {
	return a.engine
}

// Close 停止后台清理任务；数据库由调用方关闭。
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		OK      bool   `json:"ok"`
		Env     string `json:"env"`
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`

		DBOK    bool   `json:"db_ok"`
		Backend string `json:"backend"`
	}

	dbOK := false
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbOK = a.db.PingContext(ctx) == nil
	}
	backendURL := ""
	if a.backend != nil {
		backendURL = a.backend.BaseURL()
	}

	out := resp{
		OK:      true,
		Env:     a.cfg.Env,
		Version: a.version.Version,
		Commit:  a.version.Commit,
		Date:    a.version.Date,
		DBOK:    dbOK,
		Backend: backendURL,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}
