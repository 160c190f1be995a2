package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/layout"
	"fieldops/internal/versioned"
)

// MemoryDashboardRepo 布局+区域的内存实现：用于 DB 未就绪时的联调和单元测试
// - 按 tenant_id 隔离
// - 一把互斥锁覆盖整个"检查+写入"，与 Postgres 的布局行锁语义一致
type MemoryDashboardRepo struct {
	mu sync.Mutex

	layouts map[string]map[string]domain.Layout  // tenantID -> layoutID -> Layout
	regions map[string]map[string]*domain.Region // tenantID -> regionID -> Region
}

// NewMemoryDashboardRepo 创建内存仓库
func NewMemoryDashboardRepo() *MemoryDashboardRepo {
	return &MemoryDashboardRepo{
		layouts: map[string]map[string]domain.Layout{},
		regions: map[string]map[string]*domain.Region{},
	}
}

var (
	_ LayoutsRepository = (*MemoryDashboardRepo)(nil)
	_ RegionsRepository = (*MemoryDashboardRepo)(nil)
)

func (r *MemoryDashboardRepo) CreateLayout(_ context.Context, l *domain.Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.layouts[l.TenantID] == nil {
		r.layouts[l.TenantID] = map[string]domain.Layout{}
	}
	if _, exists := r.layouts[l.TenantID][l.LayoutID]; exists {
		return fmt.Errorf("layout %s already exists", l.LayoutID)
	}
	l.CreatedAt = time.Now().UTC()
	r.layouts[l.TenantID][l.LayoutID] = *l
	return nil
}

func (r *MemoryDashboardRepo) GetLayout(_ context.Context, tenantID, layoutID string) (*domain.Layout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.layouts[tenantID][layoutID]
	if !ok {
		return nil, fmt.Errorf("layout %s: %w", layoutID, domain.ErrNotFound)
	}
	return &l, nil
}

func (r *MemoryDashboardRepo) GetRegion(_ context.Context, tenantID, regionID string) (*domain.Region, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regions[tenantID][regionID]
	if !ok {
		return nil, fmt.Errorf("region %s: %w", regionID, domain.ErrNotFound)
	}
	return reg.Clone(), nil
}

func (r *MemoryDashboardRepo) ListRegions(_ context.Context, tenantID, layoutID string, opts ListRegionsOptions) ([]domain.Region, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listRegionsLocked(tenantID, layoutID, opts.IncludeDeleted), nil
}

func (r *MemoryDashboardRepo) Insert(ctx context.Context, tenantID string, region *domain.Region, check versioned.Mutator[*domain.Region, layout.Snapshot]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, err := r.snapshotLocked(tenantID, region.LayoutID)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(ctx, region, snapshot); err != nil {
			return err
		}
	}
	if _, exists := r.regions[tenantID][region.RegionID]; exists {
		return fmt.Errorf("region %s already exists", region.RegionID)
	}

	now := time.Now().UTC()
	region.CreatedAt = now
	region.UpdatedAt = now
	if r.regions[tenantID] == nil {
		r.regions[tenantID] = map[string]*domain.Region{}
	}
	r.regions[tenantID][region.RegionID] = region.Clone()
	return nil
}

func (r *MemoryDashboardRepo) CompareAndSwap(ctx context.Context, tenantID, id string, expectedVersion int, mutate versioned.Mutator[*domain.Region, layout.Snapshot]) (*domain.Region, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.regions[tenantID][id]
	if !ok {
		return nil, fmt.Errorf("region %s: %w", id, domain.ErrNotFound)
	}
	snapshot, err := r.snapshotLocked(tenantID, stored.LayoutID)
	if err != nil {
		return nil, err
	}

	current := stored.Clone()
	if err := versioned.Apply(ctx, "region", current, expectedVersion, snapshot, mutate); err != nil {
		return nil, err
	}
	if current.LayoutID != stored.LayoutID {
		return nil, domain.NewValidationError("layout_id", "cannot be changed")
	}

	current.UpdatedAt = time.Now().UTC()
	r.regions[tenantID][id] = current.Clone()
	return current, nil
}

func (r *MemoryDashboardRepo) snapshotLocked(tenantID, layoutID string) (layout.Snapshot, error) {
	l, ok := r.layouts[tenantID][layoutID]
	if !ok {
		return layout.Snapshot{}, fmt.Errorf("layout %s: %w", layoutID, domain.ErrNotFound)
	}
	return layout.Snapshot{Layout: l, Regions: r.listRegionsLocked(tenantID, layoutID, false)}, nil
}

func (r *MemoryDashboardRepo) listRegionsLocked(tenantID, layoutID string, includeDeleted bool) []domain.Region {
	out := []domain.Region{}
	for _, reg := range r.regions[tenantID] {
		if reg.LayoutID != layoutID || (reg.IsDeleted() && !includeDeleted) {
			continue
		}
		out = append(out, *reg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GridRow != out[j].GridRow {
			return out[i].GridRow < out[j].GridRow
		}
		if out[i].GridCol != out[j].GridCol {
			return out[i].GridCol < out[j].GridCol
		}
		return out[i].RegionID < out[j].RegionID
	})
	return out
}
