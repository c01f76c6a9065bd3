package config

import (
	"os"
	"strconv"
)

func applyEnvOverrides(cfg *Config) {
	applyCoreEnvOverrides(cfg)
	applyServerEnvOverrides(cfg)
	applyBackendEnvOverrides(cfg)
	applySecurityEnvOverrides(cfg)
	applyFrontendEnvOverrides(cfg)
	applyDebugEnvOverrides(cfg)
}

func applyCoreEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORGSESSION_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("ORGSESSION_DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("ORGSESSION_DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("ORGSESSION_SQLITE_PATH"); v != "" {
		cfg.DB.SQLitePath = v
	}
}

func applyServerEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORGSESSION_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ORGSESSION_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("ORGSESSION_SERVER_READ_HEADER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.ReadHeaderTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.ReadTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_SERVER_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Server.IdleTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_SERVER_MAX_HEADER_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.MaxHeaderBytes = n
		}
	}
}

func applyBackendEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORGSESSION_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("ORGSESSION_BACKEND_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Backend.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_BACKEND_DIAL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Backend.DialTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_BACKEND_TLS_HANDSHAKE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Backend.TLSHandshakeTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_BACKEND_USER_AGENT"); v != "" {
		cfg.Backend.UserAgent = v
	}
	if v := os.Getenv("ORGSESSION_BACKEND_ADMIN_ROLE"); v != "" {
		cfg.Backend.AdminRole = v
	}
}

func applySecurityEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORGSESSION_SESSION_SECRET"); v != "" {
		cfg.Security.SessionSecret = v
	}
	if v := os.Getenv("ORGSESSION_SESSION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Security.SessionTTLSeconds = n
		}
	}
	if v := os.Getenv("ORGSESSION_DISABLE_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.DisableSecureCookies = b
		}
	}
	if v := os.Getenv("ORGSESSION_TRUST_PROXY_HEADERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.TrustProxyHeaders = b
		}
	}
	if v := os.Getenv("ORGSESSION_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.Security.TrustedProxyCIDRs = splitCSV(v)
	}
}

func applyFrontendEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRONTEND_BASE_URL"); v != "" {
		cfg.Frontend.BaseURL = v
	}
	if v := os.Getenv("FRONTEND_DIST_DIR"); v != "" {
		cfg.Frontend.DistDir = v
	}
}

func applyDebugEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORGSESSION_DEBUG_ROUTES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug.Routes = b
		}
	}
	if v := os.Getenv("ORGSESSION_DEBUG_ROUTES_ALLOW_CIDRS"); v != "" {
		cfg.Debug.AllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("ORGSESSION_DEBUG_ROUTES_TOKEN"); v != "" {
		cfg.Debug.Token = v
	}
}
