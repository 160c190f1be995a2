package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/layout"
	"fieldops/internal/repository"
	"fieldops/internal/versioned"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LayoutService 仪表盘布局服务：区域放置、移动/缩放、删除
type LayoutService struct {
	layouts repository.LayoutsRepository
	regions repository.RegionsRepository
	store   *versioned.Store[*domain.Region, layout.Snapshot]
	events  events.Publisher
	logger  *zap.Logger
}

// NewLayoutService 创建布局服务
func NewLayoutService(layouts repository.LayoutsRepository, regions repository.RegionsRepository, publisher events.Publisher, logger *zap.Logger) *LayoutService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LayoutService{
		layouts: layouts,
		regions: regions,
		store:   versioned.NewStore[*domain.Region, layout.Snapshot]("region", regions, logger),
		events:  publisher,
		logger:  logger,
	}
}

// CreateLayoutRequest 创建布局请求
type CreateLayoutRequest struct {
	TenantID string
	OwnerID  string
	Name     string
	Columns  int
}

// CreateLayout 创建布局
func (s *LayoutService) CreateLayout(ctx context.Context, req CreateLayoutRequest) (*domain.Layout, error) {
	if req.TenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidationError("layout_name", "is required")
	}
	if req.Columns < 0 {
		return nil, domain.NewValidationError("columns", "must be >= 0")
	}

	l := &domain.Layout{
		LayoutID: uuid.NewString(),
		TenantID: req.TenantID,
		OwnerID:  req.OwnerID,
		Name:     name,
		Columns:  req.Columns,
	}
	if err := s.layouts.CreateLayout(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create layout: %w", err)
	}

	s.logger.Info("Layout created",
		zap.String("tenant_id", l.TenantID),
		zap.String("layout_id", l.LayoutID),
		zap.Int("columns", l.Columns),
	)
	return l, nil
}

// PlaceRegionRequest 放置区域请求
type PlaceRegionRequest struct {
	TenantID   string
	ActorID    string
	LayoutID   string
	GridRow    int
	GridCol    int
	RowSpan    int
	ColSpan    int
	RegionType domain.RegionType
	Title      string
	Config     json.RawMessage
}

// PlaceRegion 在布局中放置新区域，version 从 1 开始
// 坐标非法返回 ValidationError（不读取任何数据）；与已有区域重叠返回 OverlapError
func (s *LayoutService) PlaceRegion(ctx context.Context, req PlaceRegionRequest) (*domain.Region, error) {
	if req.TenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	if req.LayoutID == "" {
		return nil, domain.NewValidationError("layout_id", "is required")
	}
	if !req.RegionType.Valid() {
		return nil, domain.NewValidationError("region_type", fmt.Sprintf("unknown type %q", req.RegionType))
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		return nil, domain.NewValidationError("config", "must be valid JSON")
	}

	region := &domain.Region{
		RegionID:   uuid.NewString(),
		TenantID:   req.TenantID,
		LayoutID:   req.LayoutID,
		GridRow:    req.GridRow,
		GridCol:    req.GridCol,
		RowSpan:    req.RowSpan,
		ColSpan:    req.ColSpan,
		RegionType: req.RegionType,
		Title:      strings.TrimSpace(req.Title),
		Config:     req.Config,
	}
	if err := layout.ValidateBounds(region); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, req.TenantID, region, func(_ context.Context, r *domain.Region, snapshot layout.Snapshot) error {
		return layout.CheckPlacement(r, snapshot, "")
	})
	if err != nil {
		s.logRejected("Region placement rejected", req.TenantID, req.LayoutID, region.RegionID, err)
		return nil, err
	}

	s.logger.Info("Region placed",
		zap.String("tenant_id", req.TenantID),
		zap.String("layout_id", created.LayoutID),
		zap.String("region_id", created.RegionID),
		zap.Int("grid_row", created.GridRow),
		zap.Int("grid_col", created.GridCol),
		zap.Int("row_span", created.RowSpan),
		zap.Int("col_span", created.ColSpan),
	)
	publish(ctx, s.events, s.logger, events.New(events.RegionPlaced, req.TenantID, req.ActorID,
		created.RegionID, created.LayoutID, created.Version, created))
	return created, nil
}

// MoveOrResizeRegionRequest 移动/缩放区域请求
type MoveOrResizeRegionRequest struct {
	TenantID        string
	ActorID         string
	RegionID        string
	ExpectedVersion int
	Patch           domain.RegionPatch
}

// MoveOrResizeRegion 按期望版本更新区域；成功后 version = ExpectedVersion+1
// 重叠检查与写入在同一原子操作内完成（排除区域自身）
func (s *LayoutService) MoveOrResizeRegion(ctx context.Context, req MoveOrResizeRegionRequest) (*domain.Region, error) {
	if req.TenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	if req.RegionID == "" {
		return nil, domain.NewValidationError("region_id", "is required")
	}
	if req.Patch.IsEmpty() {
		return nil, domain.NewValidationError("patch", "must change at least one field")
	}
	if err := validatePatch(req.Patch); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateWithVersion(ctx, req.TenantID, req.RegionID, req.ExpectedVersion,
		func(_ context.Context, r *domain.Region, snapshot layout.Snapshot) error {
			if r.IsDeleted() {
				return fmt.Errorf("region %s: %w", r.RegionID, domain.ErrNotFound)
			}
			req.Patch.Apply(r)
			return layout.CheckPlacement(r, snapshot, r.RegionID)
		})
	if err != nil {
		s.logRejected("Region update rejected", req.TenantID, "", req.RegionID, err)
		return nil, err
	}

	s.logger.Info("Region updated",
		zap.String("tenant_id", req.TenantID),
		zap.String("region_id", updated.RegionID),
		zap.Int("version", updated.Version),
	)
	publish(ctx, s.events, s.logger, events.New(events.RegionUpdated, req.TenantID, req.ActorID,
		updated.RegionID, updated.LayoutID, updated.Version, updated))
	return updated, nil
}

// RemoveRegionRequest 删除区域请求
type RemoveRegionRequest struct {
	TenantID        string
	ActorID         string
	RegionID        string
	ExpectedVersion int
}

// RemoveRegion 软删除区域（同样受版本控制）；删除后其格子可被重新占用
func (s *LayoutService) RemoveRegion(ctx context.Context, req RemoveRegionRequest) (*domain.Region, error) {
	if req.RegionID == "" {
		return nil, domain.NewValidationError("region_id", "is required")
	}

	removed, err := s.store.UpdateWithVersion(ctx, req.TenantID, req.RegionID, req.ExpectedVersion,
		func(_ context.Context, r *domain.Region, _ layout.Snapshot) error {
			if r.IsDeleted() {
				return fmt.Errorf("region %s: %w", r.RegionID, domain.ErrNotFound)
			}
			now := time.Now().UTC()
			r.DeletedAt = &now
			return nil
		})
	if err != nil {
		s.logRejected("Region removal rejected", req.TenantID, "", req.RegionID, err)
		return nil, err
	}

	s.logger.Info("Region removed",
		zap.String("tenant_id", req.TenantID),
		zap.String("region_id", removed.RegionID),
		zap.Int("version", removed.Version),
	)
	publish(ctx, s.events, s.logger, events.New(events.RegionRemoved, req.TenantID, req.ActorID,
		removed.RegionID, removed.LayoutID, removed.Version, nil))
	return removed, nil
}

// ListRegions 查询布局的区域（默认不含已删除）
func (s *LayoutService) ListRegions(ctx context.Context, tenantID, layoutID string, includeDeleted bool) ([]domain.Region, error) {
	if tenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	if _, err := s.layouts.GetLayout(ctx, tenantID, layoutID); err != nil {
		return nil, err
	}
	regions, err := s.regions.ListRegions(ctx, tenantID, layoutID, repository.ListRegionsOptions{IncludeDeleted: includeDeleted})
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	return regions, nil
}

// validatePatch 对 patch 中给出的坐标做本地校验（读取之前）
func validatePatch(p domain.RegionPatch) error {
	switch {
	case p.GridRow != nil && *p.GridRow < 0:
		return domain.NewValidationError("grid_row", "must be >= 0")
	case p.GridCol != nil && *p.GridCol < 0:
		return domain.NewValidationError("grid_col", "must be >= 0")
	case p.RowSpan != nil && *p.RowSpan < 1:
		return domain.NewValidationError("row_span", "must be >= 1")
	case p.ColSpan != nil && *p.ColSpan < 1:
		return domain.NewValidationError("col_span", "must be >= 1")
	case len(p.Config) > 0 && !json.Valid(p.Config):
		return domain.NewValidationError("config", "must be valid JSON")
	}
	return nil
}

func (s *LayoutService) logRejected(msg, tenantID, layoutID, regionID string, err error) {
	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("region_id", regionID),
		zap.String("code", string(domain.CodeOf(err))),
		zap.Error(err),
	}
	if layoutID != "" {
		fields = append(fields, zap.String("layout_id", layoutID))
	}
	var oe *domain.OverlapError
	if errors.As(err, &oe) {
		fields = append(fields, zap.Strings("colliding_region_ids", oe.RegionIDs))
	}
	if domain.CodeOf(err) == domain.CodeInternal {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Warn(msg, fields...)
}
