package httpapi

import (
	"context"
	"net/http"

	"fieldops/internal/events"

	"go.uber.org/zap"
)

// AuditLog 审计事件查询（Redis Stream）
type AuditLog interface {
	Events(ctx context.Context, tenantID string, limit int) ([]events.Event, error)
}

// AuditHandler 审计事件 Handler
type AuditHandler struct {
	audit  AuditLog
	logger *zap.Logger
}

// NewAuditHandler 创建审计 Handler
func NewAuditHandler(audit AuditLog, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ServeHTTP GET /api/v1/audit/events?limit=50
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	items, err := h.audit.Events(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("ListAuditEvents failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to read audit events"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": len(items),
	}))
}
