package domain

import (
	"encoding/json"
	"time"

	"fieldops/internal/interval"
)

// Layout 仪表盘布局（对应 dashboard_layouts 表）
// 一个租户/用户的一组 Region 所在的网格
type Layout struct {
	LayoutID string `db:"layout_id" json:"layout_id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	OwnerID  string `db:"owner_id" json:"owner_id,omitempty"` // 可选，用户私有布局
	Name     string `db:"layout_name" json:"layout_name"`
	// Columns 网格列数，0 表示不限制
	Columns   int       `db:"columns" json:"columns"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Region 仪表盘区域（对应 dashboard_regions 表）
type Region struct {
	RegionID   string          `db:"region_id" json:"region_id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	LayoutID   string          `db:"layout_id" json:"layout_id"`
	GridRow    int             `db:"grid_row" json:"grid_row"`
	GridCol    int             `db:"grid_col" json:"grid_col"`
	RowSpan    int             `db:"row_span" json:"row_span"`
	ColSpan    int             `db:"col_span" json:"col_span"`
	RegionType RegionType      `db:"region_type" json:"region_type"`
	Title      string          `db:"title" json:"title"`
	Config     json.RawMessage `db:"config" json:"config,omitempty"`
	Version    int             `db:"version" json:"version"`
	// DeletedAt 软删除时间，非空的区域不参与重叠检查
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Rect returns the region's rectangle on the grid.
func (r *Region) Rect() interval.Rect {
	return interval.Rect{Row: r.GridRow, Col: r.GridCol, RowSpan: r.RowSpan, ColSpan: r.ColSpan}
}

// IsDeleted 是否已软删除
func (r *Region) IsDeleted() bool { return r.DeletedAt != nil }

func (r *Region) RecordID() string { return r.RegionID }
func (r *Region) GetVersion() int  { return r.Version }
func (r *Region) SetVersion(v int) { r.Version = v }

// Clone returns a deep copy so callers can mutate without touching stored state.
func (r *Region) Clone() *Region {
	c := *r
	if r.Config != nil {
		c.Config = append(json.RawMessage(nil), r.Config...)
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// RegionType 区域类型
type RegionType string

const (
	RegionTypeChart  RegionType = "chart"
	RegionTypeMetric RegionType = "metric"
	RegionTypeTable  RegionType = "table"
	RegionTypeList   RegionType = "list"
	RegionTypeMap    RegionType = "map"
	RegionTypeText   RegionType = "text"
)

// Valid reports whether t is one of the known region types.
func (t RegionType) Valid() bool {
	switch t {
	case RegionTypeChart, RegionTypeMetric, RegionTypeTable, RegionTypeList, RegionTypeMap, RegionTypeText:
		return true
	}
	return false
}

// RegionPatch 移动/缩放请求中的可选字段（nil 表示不修改）
type RegionPatch struct {
	GridRow *int
	GridCol *int
	RowSpan *int
	ColSpan *int
	Title   *string
	Config  json.RawMessage
}

// IsEmpty reports whether the patch changes nothing.
func (p RegionPatch) IsEmpty() bool {
	return p.GridRow == nil && p.GridCol == nil && p.RowSpan == nil && p.ColSpan == nil &&
		p.Title == nil && p.Config == nil
}

// Apply 将 patch 应用到 region（不做校验）
func (p RegionPatch) Apply(r *Region) {
	if p.GridRow != nil {
		r.GridRow = *p.GridRow
	}
	if p.GridCol != nil {
		r.GridCol = *p.GridCol
	}
	if p.RowSpan != nil {
		r.RowSpan = *p.RowSpan
	}
	if p.ColSpan != nil {
		r.ColSpan = *p.ColSpan
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Config != nil {
		r.Config = append(json.RawMessage(nil), p.Config...)
	}
}
