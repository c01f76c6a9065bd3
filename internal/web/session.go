package web

import (
	"log/slog"
	"net/http"

	"orgsession/internal/middleware"
)

// Session 处理 GET /api/session：返回当前浏览器已提交的组织会话。
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	d, ok := middleware.OrgSessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, apiResponse{Success: false, Message: "未建立组织会话"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: d})
}

// Logout 处理 POST /api/session/logout：删除当前浏览器的组织会话（幂等）。
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sid := middleware.SIDFromContext(r.Context())
	if sid != "" && h.opts.Store != nil {
		if err := h.opts.Store.DeleteOrgSession(r.Context(), sid); err != nil {
			slog.Error("删除组织会话失败", "request_id", middleware.GetRequestID(r.Context()), "err", err)
			writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "注销失败"})
			return
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
