// Package layout decides whether a region placement is legal within its layout grid.
package layout

import (
	"sort"

	"fieldops/internal/domain"
	"fieldops/internal/interval"
)

// ValidateBounds 校验网格坐标和跨度；在读取任何数据之前即可拒绝
func ValidateBounds(candidate *domain.Region) error {
	switch {
	case candidate.GridRow < 0:
		return domain.NewValidationError("grid_row", "must be >= 0")
	case candidate.GridCol < 0:
		return domain.NewValidationError("grid_col", "must be >= 0")
	case candidate.RowSpan < 1:
		return domain.NewValidationError("row_span", "must be >= 1")
	case candidate.ColSpan < 1:
		return domain.NewValidationError("col_span", "must be >= 1")
	}
	return nil
}

// ValidateWidth rejects regions that extend past the layout's column count.
// columns <= 0 means the layout is unbounded.
func ValidateWidth(candidate *domain.Region, columns int) error {
	if columns > 0 && candidate.GridCol+candidate.ColSpan > columns {
		return domain.NewValidationError("col_span", "exceeds layout width")
	}
	return nil
}

// FindOverlaps 返回与候选区域重叠的已有区域
// 过滤条件：未删除、同一布局、ID != excludeID
func FindOverlaps(candidate *domain.Region, existing []domain.Region, excludeID string) []domain.Region {
	rect := candidate.Rect()
	var hits []domain.Region
	for i := range existing {
		r := &existing[i]
		if r.IsDeleted() || r.LayoutID != candidate.LayoutID {
			continue
		}
		if excludeID != "" && r.RegionID == excludeID {
			continue
		}
		if interval.RectanglesOverlap(rect, r.Rect()) {
			hits = append(hits, *r)
		}
	}
	return hits
}

// AssertNoOverlap fails with *domain.OverlapError when the candidate collides with any
// live region of its layout. It has no side effects.
func AssertNoOverlap(candidate *domain.Region, existing []domain.Region, excludeID string) error {
	hits := FindOverlaps(candidate, existing, excludeID)
	if len(hits) == 0 {
		return nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.RegionID)
	}
	sort.Strings(ids)
	return &domain.OverlapError{LayoutID: candidate.LayoutID, RegionIDs: ids}
}

// CheckPlacement runs every placement rule against a consistent snapshot of the layout:
// bounds, width and overlap. excludeID is the region's own id on update, empty on create.
func CheckPlacement(candidate *domain.Region, snapshot Snapshot, excludeID string) error {
	if err := ValidateBounds(candidate); err != nil {
		return err
	}
	if err := ValidateWidth(candidate, snapshot.Layout.Columns); err != nil {
		return err
	}
	return AssertNoOverlap(candidate, snapshot.Regions, excludeID)
}

// Snapshot 布局快照：在写入的原子边界内读取的布局及其未删除区域
type Snapshot struct {
	Layout  domain.Layout
	Regions []domain.Region
}
