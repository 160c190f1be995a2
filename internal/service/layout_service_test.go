package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/interval"
	"fieldops/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "tenant-1"

func newLayoutFixture(t *testing.T, columns int) (*LayoutService, *recordingPublisher, string) {
	repo := repository.NewMemoryDashboardRepo()
	pub := &recordingPublisher{}
	svc := NewLayoutService(repo, repo, pub, zap.NewNop())
	l, err := svc.CreateLayout(context.Background(), CreateLayoutRequest{TenantID: testTenant, Name: "Ops", Columns: columns})
	require.NoError(t, err)
	return svc, pub, l.LayoutID
}

func place(svc *LayoutService, layoutID string, row, col, rowSpan, colSpan int) (*domain.Region, error) {
	return svc.PlaceRegion(context.Background(), PlaceRegionRequest{
		TenantID: testTenant, ActorID: "user-1", LayoutID: layoutID,
		GridRow: row, GridCol: col, RowSpan: rowSpan, ColSpan: colSpan,
		RegionType: domain.RegionTypeChart,
	})
}

func TestPlaceRegion_DiagonalOverlapRejected(t *testing.T) {
	svc, _, layoutID := newLayoutFixture(t, 0)

	first, err := place(svc, layoutID, 0, 0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	_, err = place(svc, layoutID, 1, 1, 2, 2)
	var oe *domain.OverlapError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, domain.CodeOverlap, domain.CodeOf(err))
	assert.Equal(t, []string{first.RegionID}, oe.RegionIDs)
}

func TestPlaceRegion_AdjacentRegionsSucceed(t *testing.T) {
	svc, pub, layoutID := newLayoutFixture(t, 0)

	_, err := place(svc, layoutID, 0, 0, 1, 1)
	require.NoError(t, err)
	_, err = place(svc, layoutID, 0, 1, 1, 1)
	require.NoError(t, err)

	placed := pub.ofType(events.RegionPlaced)
	require.Len(t, placed, 2)
	assert.Equal(t, layoutID, placed[0].Scope)
	assert.Equal(t, "user-1", placed[0].ActorID)
}

func TestPlaceRegion_Validation(t *testing.T) {
	svc, _, layoutID := newLayoutFixture(t, 4)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PlaceRegionRequest
	}{
		{"negative row", PlaceRegionRequest{GridRow: -1, RowSpan: 1, ColSpan: 1, RegionType: domain.RegionTypeChart}},
		{"zero span", PlaceRegionRequest{RowSpan: 0, ColSpan: 1, RegionType: domain.RegionTypeChart}},
		{"unknown type", PlaceRegionRequest{RowSpan: 1, ColSpan: 1, RegionType: "gauge"}},
		{"bad config", PlaceRegionRequest{RowSpan: 1, ColSpan: 1, RegionType: domain.RegionTypeText, Config: []byte("{")}},
		{"wider than layout", PlaceRegionRequest{GridCol: 3, RowSpan: 1, ColSpan: 2, RegionType: domain.RegionTypeChart}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.TenantID = testTenant
			tt.req.LayoutID = layoutID
			_, err := svc.PlaceRegion(ctx, tt.req)
			assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
		})
	}
}

func TestPlaceRegion_UnknownLayout(t *testing.T) {
	svc, _, _ := newLayoutFixture(t, 0)

	_, err := place(svc, "missing-layout", 0, 0, 1, 1)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestMoveOrResizeRegion_Versioning(t *testing.T) {
	svc, pub, layoutID := newLayoutFixture(t, 0)
	ctx := context.Background()

	region, err := place(svc, layoutID, 0, 0, 1, 1)
	require.NoError(t, err)

	moved, err := svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1,
		Patch: domain.RegionPatch{GridCol: intPtr(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Version)
	assert.Equal(t, 3, moved.GridCol)

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1,
		Patch: domain.RegionPatch{GridCol: intPtr(5)},
	})
	var vce *domain.VersionConflictError
	require.True(t, errors.As(err, &vce))
	assert.Equal(t, 2, vce.Actual)

	assert.Len(t, pub.ofType(events.RegionUpdated), 1)
}

func TestMoveOrResizeRegion_ExcludesItselfButNotNeighbours(t *testing.T) {
	svc, _, layoutID := newLayoutFixture(t, 0)
	ctx := context.Background()

	region, err := place(svc, layoutID, 0, 0, 2, 2)
	require.NoError(t, err)
	neighbour, err := place(svc, layoutID, 0, 3, 2, 2)
	require.NoError(t, err)

	// 扩展到与自身旧位置重叠是允许的
	grown, err := svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1,
		Patch: domain.RegionPatch{RowSpan: intPtr(3), ColSpan: intPtr(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, grown.Version)

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 2,
		Patch: domain.RegionPatch{ColSpan: intPtr(4)},
	})
	var oe *domain.OverlapError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, []string{neighbour.RegionID}, oe.RegionIDs)

	current, err := svc.ListRegions(ctx, testTenant, layoutID, false)
	require.NoError(t, err)
	for _, r := range current {
		if r.RegionID == region.RegionID {
			assert.Equal(t, 2, r.Version, "rejected update must not bump the version")
			assert.Equal(t, 3, r.ColSpan)
		}
	}
}

func TestMoveOrResizeRegion_Validation(t *testing.T) {
	svc, _, layoutID := newLayoutFixture(t, 0)
	ctx := context.Background()
	region, err := place(svc, layoutID, 0, 0, 1, 1)
	require.NoError(t, err)

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1,
		Patch: domain.RegionPatch{RowSpan: intPtr(0)},
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: "missing", ExpectedVersion: 1,
		Patch: domain.RegionPatch{RowSpan: intPtr(2)},
	})
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestRemoveRegion_FreesCells(t *testing.T) {
	svc, pub, layoutID := newLayoutFixture(t, 0)
	ctx := context.Background()

	region, err := place(svc, layoutID, 0, 0, 2, 2)
	require.NoError(t, err)

	removed, err := svc.RemoveRegion(ctx, RemoveRegionRequest{TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.True(t, removed.IsDeleted())
	assert.Equal(t, 2, removed.Version)

	_, err = place(svc, layoutID, 1, 1, 2, 2)
	assert.NoError(t, err)

	_, err = svc.RemoveRegion(ctx, RemoveRegionRequest{TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 2})
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
		TenantID: testTenant, RegionID: region.RegionID, ExpectedVersion: 2,
		Patch: domain.RegionPatch{GridRow: intPtr(9)},
	})
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	all, err := svc.ListRegions(ctx, testTenant, layoutID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, pub.ofType(events.RegionRemoved), 1)
}

// 任意创建/更新/删除序列之后，布局中未删除的区域两两不重叠
func TestLayoutService_RandomSequencesKeepNoOverlapInvariant(t *testing.T) {
	svc, _, layoutID := newLayoutFixture(t, 0)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 400; step++ {
		live, err := svc.ListRegions(ctx, testTenant, layoutID, false)
		require.NoError(t, err)

		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			_, err = place(svc, layoutID, rng.Intn(6), rng.Intn(6), 1+rng.Intn(3), 1+rng.Intn(3))
		case op == 1:
			target := live[rng.Intn(len(live))]
			_, err = svc.MoveOrResizeRegion(ctx, MoveOrResizeRegionRequest{
				TenantID: testTenant, RegionID: target.RegionID, ExpectedVersion: target.Version,
				Patch: domain.RegionPatch{GridRow: intPtr(rng.Intn(6)), GridCol: intPtr(rng.Intn(6)), RowSpan: intPtr(1 + rng.Intn(3))},
			})
		default:
			target := live[rng.Intn(len(live))]
			_, err = svc.RemoveRegion(ctx, RemoveRegionRequest{TenantID: testTenant, RegionID: target.RegionID, ExpectedVersion: target.Version})
		}
		if err != nil {
			require.Equal(t, domain.CodeOverlap, domain.CodeOf(err), "step %d: %v", step, err)
		}

		live, err = svc.ListRegions(ctx, testTenant, layoutID, false)
		require.NoError(t, err)
		for i := range live {
			for j := i + 1; j < len(live); j++ {
				require.False(t, interval.RectanglesOverlap(live[i].Rect(), live[j].Rect()),
					"step %d: %s overlaps %s", step, live[i].RegionID, live[j].RegionID)
			}
		}
	}
}
