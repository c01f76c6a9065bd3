package router

import (
	"crypto/subtle"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"

	"orgsession/internal/security"
)

const debugTokenHeader = "X-Orgsession-Debug-Token"

func setSystemRoutes(r *gin.Engine, opts Options) {
	r.GET("/healthz", wrapHTTPFunc(opts.Healthz))

	if !opts.Debug.Routes {
		return
	}
	allow, err := security.ParsePrefixes(opts.Debug.AllowCIDRs)
	if err != nil {
		slog.Warn("debug.allow_cidrs 无法解析，仅允许本机与 token 访问", "err", err)
		allow = nil
	}
	r.GET("/debug/vars", debugGuard(opts, allow), wrapHTTP(expvar.Handler()))
}

// debugGuard 允许：本机、allow_cidrs 命中的客户端，或携带正确 token 的请求。
// 只有直连方是可信代理时才采信 X-Forwarded-For。
func debugGuard(opts Options, allow []netip.Prefix) gin.HandlerFunc {
	token := strings.TrimSpace(opts.Debug.Token)
	return func(c *gin.Context) {
		if token != "" {
			got := strings.TrimSpace(c.GetHeader(debugTokenHeader))
			if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				c.Next()
				return
			}
		}
		ip, ok := clientIP(c.Request, opts.TrustProxyHeaders, opts.TrustedProxies)
		if ok && (ip.IsLoopback() || prefixesContain(allow, ip)) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusForbidden)
	}
}

func clientIP(r *http.Request, trustProxyHeaders bool, trustedProxies []netip.Prefix) (netip.Addr, bool) {
	if trustProxyHeaders && security.RemoteAddrIn(r, trustedProxies) {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first := xff
			if i := strings.IndexByte(first, ','); i >= 0 {
				first = first[:i]
			}
			if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return ip.Unmap(), true
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func prefixesContain(prefixes []netip.Prefix, ip netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
