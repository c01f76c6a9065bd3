// orgsession-bootstrap 在命令行里对后端执行一次组织会话建立，成功时输出会话详情 JSON。
//
// 退出码：0 成功；2 已分类失败（输出恢复跳转目标）；1 其他错误。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orgsession/internal/backend"
	"orgsession/internal/bootstrap"
	"orgsession/internal/browser"
	"orgsession/internal/config"
	"orgsession/internal/cookies"
	"orgsession/internal/obs"
	"orgsession/internal/security"
	"orgsession/internal/session"
)

const (
	exitOK         = 0
	exitError      = 1
	exitClassified = 2

	// CLI 只有一个会话，single-flight key 固定。
	cliKey = "default"
)

func main() {
	_ = config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("orgsession-bootstrap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		baseURL     = fs.String("base-url", os.Getenv("ORGSESSION_BACKEND_BASE_URL"), "backend base URL, e.g. https://app.example.com")
		rawCookie   = fs.String("cookie", os.Getenv("ORGSESSION_COOKIE"), "document.cookie style string (csrftoken=...; sessionid=...)")
		useBrowser  = fs.Bool("browser", false, "open a browser and capture cookies after interactive login")
		headless    = fs.Bool("headless", false, "run the capture browser headless (needs -user-data-dir with an existing login)")
		userDataDir = fs.String("user-data-dir", "", "browser profile directory for -browser")
		loginPath   = fs.String("login-path", "/api/v1/login", "login page path opened by -browser")
		currentURL  = fs.String("current-url", "", "URL used as redirect_url when the backend reports unauthenticated")
		adminRole   = fs.String("admin-role", config.DefaultAdminRole, "member role treated as admin")
		timeout     = fs.Duration("timeout", 30*time.Second, "overall timeout (browser login included)")
		env         = fs.String("env", "prod", "log level profile: dev enables debug logs")
	)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	logger := obs.NewLoggerTo(stderr, *env)

	baseStr, err := security.ValidateBackendURL(ctx, *baseURL)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -base-url: %v\n", err)
		return exitError
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var seed []*http.Cookie
	if *useBrowser {
		logger.Info("等待浏览器登录", "url", baseStr+*loginPath)
		seed, err = browser.CaptureCookies(ctx, browser.Options{
			LoginURL:    baseStr + *loginPath,
			BaseURL:     baseStr,
			Headless:    *headless,
			UserDataDir: *userDataDir,
		})
		if err != nil {
			fmt.Fprintf(stderr, "browser capture failed: %v\n", err)
			return exitError
		}
	} else {
		seed = cookies.Parse(*rawCookie).Cookies()
	}

	client, err := backend.NewClient(config.BackendConfig{
		BaseURL:                    baseStr,
		DialTimeoutSeconds:         30,
		TLSHandshakeTimeoutSeconds: 10,
		UserAgent:                  "orgsession-bootstrap",
	})
	if err != nil {
		fmt.Fprintf(stderr, "backend client: %v\n", err)
		return exitError
	}

	runner := bootstrap.NewRunner(client, bootstrap.Options{AdminRole: *adminRole, Logger: logger, Timeout: *timeout})
	mem := session.NewMemory()
	out, err := runner.Run(ctx, cliKey, bootstrap.Input{Cookies: seed, CurrentURL: *currentURL}, mem)
	if err != nil {
		if out.Kind != bootstrap.KindUnhandled && out.Redirect != "" {
			fmt.Fprintf(stderr, "bootstrap failed at %s (%s)\n", out.FailedAt, out.Kind)
			fmt.Fprintln(stdout, out.Redirect)
			return exitClassified
		}
		fmt.Fprintf(stderr, "bootstrap failed: %v\n", err)
		return exitError
	}

	d, ok := mem.Current()
	if !ok {
		fmt.Fprintln(stderr, "bootstrap committed but no session recorded")
		return exitError
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return exitError
	}
	return exitOK
}
