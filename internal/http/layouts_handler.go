package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/service"

	"go.uber.org/zap"
)

// LayoutsHandler 仪表盘布局 Handler
type LayoutsHandler struct {
	layoutService *service.LayoutService
	logger        *zap.Logger
}

// NewLayoutsHandler 创建布局 Handler
func NewLayoutsHandler(layoutService *service.LayoutService, logger *zap.Logger) *LayoutsHandler {
	return &LayoutsHandler{
		layoutService: layoutService,
		logger:        logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *LayoutsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	layoutID, rest := pathParam(r.URL.Path, "/api/v1/layouts/")
	regionID, regionRest := pathParam(r.URL.Path, "/api/v1/regions/")

	switch {
	case r.URL.Path == "/api/v1/layouts" && r.Method == http.MethodPost:
		h.CreateLayout(w, r)
	case layoutID != "" && rest == "regions" && r.Method == http.MethodGet:
		h.ListRegions(w, r, layoutID)
	case layoutID != "" && rest == "regions" && r.Method == http.MethodPost:
		h.PlaceRegion(w, r, layoutID)
	case regionID != "" && regionRest == "" && r.Method == http.MethodPut:
		h.MoveOrResizeRegion(w, r, regionID)
	case regionID != "" && regionRest == "" && r.Method == http.MethodDelete:
		h.RemoveRegion(w, r, regionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// CreateLayout 创建布局
func (h *LayoutsHandler) CreateLayout(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		LayoutName string `json:"layout_name"`
		Columns    int    `json:"columns"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	l, err := h.layoutService.CreateLayout(r.Context(), service.CreateLayoutRequest{
		TenantID: tenantID,
		OwnerID:  actorIDFromReq(r),
		Name:     payload.LayoutName,
		Columns:  payload.Columns,
	})
	if err != nil {
		h.fail(w, "CreateLayout", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(l))
}

// ListRegions 查询布局下的区域
func (h *LayoutsHandler) ListRegions(w http.ResponseWriter, r *http.Request, layoutID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	regions, err := h.layoutService.ListRegions(r.Context(), tenantID, layoutID, includeDeleted)
	if err != nil {
		h.fail(w, "ListRegions", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": regions,
		"total": len(regions),
	}))
}

// PlaceRegion 放置区域
func (h *LayoutsHandler) PlaceRegion(w http.ResponseWriter, r *http.Request, layoutID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		GridRow    int             `json:"grid_row"`
		GridCol    int             `json:"grid_col"`
		RowSpan    int             `json:"row_span"`
		ColSpan    int             `json:"col_span"`
		RegionType string          `json:"region_type"`
		Title      string          `json:"title"`
		Config     json.RawMessage `json:"config"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	region, err := h.layoutService.PlaceRegion(r.Context(), service.PlaceRegionRequest{
		TenantID:   tenantID,
		ActorID:    actorIDFromReq(r),
		LayoutID:   layoutID,
		GridRow:    payload.GridRow,
		GridCol:    payload.GridCol,
		RowSpan:    payload.RowSpan,
		ColSpan:    payload.ColSpan,
		RegionType: domain.RegionType(strings.TrimSpace(payload.RegionType)),
		Title:      payload.Title,
		Config:     payload.Config,
	})
	if err != nil {
		h.fail(w, "PlaceRegion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(region))
}

// MoveOrResizeRegion 移动/缩放区域（需要 expected_version）
func (h *LayoutsHandler) MoveOrResizeRegion(w http.ResponseWriter, r *http.Request, regionID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		ExpectedVersion int             `json:"expected_version"`
		GridRow         *int            `json:"grid_row"`
		GridCol         *int            `json:"grid_col"`
		RowSpan         *int            `json:"row_span"`
		ColSpan         *int            `json:"col_span"`
		Title           *string         `json:"title"`
		Config          json.RawMessage `json:"config"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	region, err := h.layoutService.MoveOrResizeRegion(r.Context(), service.MoveOrResizeRegionRequest{
		TenantID:        tenantID,
		ActorID:         actorIDFromReq(r),
		RegionID:        regionID,
		ExpectedVersion: payload.ExpectedVersion,
		Patch: domain.RegionPatch{
			GridRow: payload.GridRow,
			GridCol: payload.GridCol,
			RowSpan: payload.RowSpan,
			ColSpan: payload.ColSpan,
			Title:   payload.Title,
			Config:  payload.Config,
		},
	})
	if err != nil {
		h.fail(w, "MoveOrResizeRegion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(region))
}

// RemoveRegion 删除区域；expected_version 取自查询参数
func (h *LayoutsHandler) RemoveRegion(w http.ResponseWriter, r *http.Request, regionID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	region, err := h.layoutService.RemoveRegion(r.Context(), service.RemoveRegionRequest{
		TenantID:        tenantID,
		ActorID:         actorIDFromReq(r),
		RegionID:        regionID,
		ExpectedVersion: parseInt(r.URL.Query().Get("expected_version"), 0),
	})
	if err != nil {
		h.fail(w, "RemoveRegion", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(region))
}

func (h *LayoutsHandler) fail(w http.ResponseWriter, op string, err error) {
	if domain.CodeOf(err) == domain.CodeInternal {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, FailWithError(err))
}
