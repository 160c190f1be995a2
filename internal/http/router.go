package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes(ready func() error) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ready != nil {
			if err := ready(); err != nil {
				r.logger.Warn("Health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, Fail("unavailable"))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterLayoutRoutes：布局 + 区域
func (r *Router) RegisterLayoutRoutes(h *LayoutsHandler) {
	r.Handle("/api/v1/layouts", h.ServeHTTP)
	r.Handle("/api/v1/layouts/", h.ServeHTTP)
	r.Handle("/api/v1/regions/", h.ServeHTTP)
}

// RegisterAssignmentRoutes：工单 + 排班
func (r *Router) RegisterAssignmentRoutes(h *AssignmentsHandler) {
	r.Handle("/api/v1/jobs", h.ServeHTTP)
	r.Handle("/api/v1/jobs/", h.ServeHTTP)
	r.Handle("/api/v1/assignments/check", h.ServeHTTP)
}

// RegisterAuditRoutes：审计事件（仅在启用 Redis 时注册）
func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.Handle("/api/v1/audit/events", h.ServeHTTP)
}
