//go:build !embed_web

package orgsession

import "embed"

// WebDistFS 在未启用 embed_web 时为空，前端改由 FRONTEND_DIST_DIR 或 FRONTEND_BASE_URL 提供。
var WebDistFS embed.FS
