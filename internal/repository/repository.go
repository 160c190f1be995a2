// Package repository 数据访问层：Postgres 实现 + DB 不可用时的内存实现
//
// Every method is tenant-scoped by an explicit tenantID parameter. Writes go through the
// versioned.Backend primitives so that the placement and scheduling re-checks run inside
// the same atomic boundary as the write.
package repository

import (
	"context"

	"fieldops/internal/domain"
	"fieldops/internal/layout"
	"fieldops/internal/scheduling"
	"fieldops/internal/versioned"
)

// LayoutsRepository 仪表盘布局Repository接口
type LayoutsRepository interface {
	// CreateLayout 创建布局，layout.LayoutID 由调用方生成
	CreateLayout(ctx context.Context, layout *domain.Layout) error
	// GetLayout 返回 domain.ErrNotFound（包装后）当布局不存在
	GetLayout(ctx context.Context, tenantID, layoutID string) (*domain.Layout, error)
}

// ListRegionsOptions 区域列表查询选项
type ListRegionsOptions struct {
	IncludeDeleted bool
}

// RegionsRepository 仪表盘区域Repository接口
//
// Insert and CompareAndSwap serialize every write of one layout and hand the check a
// layout.Snapshot read under that serialization.
type RegionsRepository interface {
	versioned.Backend[*domain.Region, layout.Snapshot]

	GetRegion(ctx context.Context, tenantID, regionID string) (*domain.Region, error)
	ListRegions(ctx context.Context, tenantID, layoutID string, opts ListRegionsOptions) ([]domain.Region, error)
}

// JobsRepository 工单Repository接口
//
// The JobReader methods read committed data without locks (used for pre-checks). The
// view passed to Insert/CompareAndSwap callbacks is bound to the write: each key it reads
// (technician/date, location/date) stays locked until the write commits.
type JobsRepository interface {
	versioned.Backend[*domain.Job, scheduling.JobReader]
	scheduling.JobReader

	GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error)
}
