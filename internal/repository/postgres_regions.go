package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fieldops/internal/domain"
	"fieldops/internal/layout"
	"fieldops/internal/versioned"
)

// PostgresRegionsRepository 仪表盘区域Repository实现
// 写操作：事务 + 布局行 FOR UPDATE + 区域行 FOR UPDATE + UPDATE ... WHERE version = $n
type PostgresRegionsRepository struct {
	db *sql.DB
}

// NewPostgresRegionsRepository 创建区域Repository
func NewPostgresRegionsRepository(db *sql.DB) *PostgresRegionsRepository {
	return &PostgresRegionsRepository{db: db}
}

// 确保实现了接口
var _ RegionsRepository = (*PostgresRegionsRepository)(nil)

const regionColumns = `
		region_id::text,
		tenant_id,
		layout_id::text,
		grid_row,
		grid_col,
		row_span,
		col_span,
		region_type,
		title,
		config::text,
		version,
		deleted_at,
		created_at,
		updated_at`

func scanRegion(s rowScanner) (domain.Region, error) {
	var reg domain.Region
	var regionType string
	var config sql.NullString
	var deletedAt sql.NullTime

	err := s.Scan(
		&reg.RegionID,
		&reg.TenantID,
		&reg.LayoutID,
		&reg.GridRow,
		&reg.GridCol,
		&reg.RowSpan,
		&reg.ColSpan,
		&regionType,
		&reg.Title,
		&config,
		&reg.Version,
		&deletedAt,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return reg, err
	}

	reg.RegionType = domain.RegionType(regionType)
	if config.Valid {
		reg.Config = json.RawMessage(config.String)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		reg.DeletedAt = &t
	}
	return reg, nil
}

func listRegions(ctx context.Context, q dbtx, tenantID, layoutID string, includeDeleted bool) ([]domain.Region, error) {
	query := `SELECT ` + regionColumns + `
		FROM dashboard_regions
		WHERE tenant_id = $1 AND layout_id = $2 AND ($3 OR deleted_at IS NULL)
		ORDER BY grid_row, grid_col, region_id`

	rows, err := q.QueryContext(ctx, query, tenantID, layoutID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	regions := []domain.Region{}
	for rows.Next() {
		reg, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate regions: %w", err)
	}
	return regions, nil
}

// GetRegion 获取区域（包括已软删除的）
func (r *PostgresRegionsRepository) GetRegion(ctx context.Context, tenantID, regionID string) (*domain.Region, error) {
	if tenantID == "" || !isUUID(regionID) {
		return nil, fmt.Errorf("region %s: %w", regionID, domain.ErrNotFound)
	}
	query := `SELECT ` + regionColumns + `
		FROM dashboard_regions
		WHERE tenant_id = $1 AND region_id = $2`

	reg, err := scanRegion(r.db.QueryRowContext(ctx, query, tenantID, regionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("region %s: %w", regionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get region: %w", err)
	}
	return &reg, nil
}

// ListRegions 查询布局下的区域
func (r *PostgresRegionsRepository) ListRegions(ctx context.Context, tenantID, layoutID string, opts ListRegionsOptions) ([]domain.Region, error) {
	if tenantID == "" || !isUUID(layoutID) {
		return []domain.Region{}, nil
	}
	return listRegions(ctx, r.db, tenantID, layoutID, opts.IncludeDeleted)
}

// Insert 新建区域：锁定布局行后执行 check，再写入
func (r *PostgresRegionsRepository) Insert(ctx context.Context, tenantID string, region *domain.Region, check versioned.Mutator[*domain.Region, layout.Snapshot]) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snapshot, err := lockSnapshot(ctx, tx, tenantID, region.LayoutID)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(ctx, region, snapshot); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO dashboard_regions (
			region_id, tenant_id, layout_id, grid_row, grid_col, row_span, col_span,
			region_type, title, config, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		region.RegionID,
		tenantID,
		region.LayoutID,
		region.GridRow,
		region.GridCol,
		region.RowSpan,
		region.ColSpan,
		string(region.RegionType),
		region.Title,
		nullJSON(region.Config),
		region.Version,
	).Scan(&region.CreatedAt, &region.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert region: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CompareAndSwap 按期望版本更新区域
// 锁顺序与 Insert 一致：先布局行，再区域行
func (r *PostgresRegionsRepository) CompareAndSwap(ctx context.Context, tenantID, id string, expectedVersion int, mutate versioned.Mutator[*domain.Region, layout.Snapshot]) (*domain.Region, error) {
	if tenantID == "" || !isUUID(id) {
		return nil, fmt.Errorf("region %s: %w", id, domain.ErrNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var layoutID string
	err = tx.QueryRowContext(ctx,
		`SELECT layout_id::text FROM dashboard_regions WHERE tenant_id = $1 AND region_id = $2`,
		tenantID, id,
	).Scan(&layoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("region %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get region: %w", err)
	}

	snapshot, err := lockSnapshot(ctx, tx, tenantID, layoutID)
	if err != nil {
		return nil, err
	}

	current, err := scanRegion(tx.QueryRowContext(ctx, `SELECT `+regionColumns+`
		FROM dashboard_regions
		WHERE tenant_id = $1 AND region_id = $2
		FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock region: %w", err)
	}

	if err := versioned.Apply(ctx, "region", &current, expectedVersion, snapshot, mutate); err != nil {
		return nil, err
	}
	if current.LayoutID != layoutID {
		return nil, domain.NewValidationError("layout_id", "cannot be changed")
	}

	var deletedAt any
	if current.DeletedAt != nil {
		deletedAt = *current.DeletedAt
	}
	query := `
		UPDATE dashboard_regions
		SET grid_row = $3,
			grid_col = $4,
			row_span = $5,
			col_span = $6,
			region_type = $7,
			title = $8,
			config = $9,
			deleted_at = $10,
			version = $11,
			updated_at = NOW()
		WHERE tenant_id = $1 AND region_id = $2 AND version = $12
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		tenantID,
		id,
		current.GridRow,
		current.GridCol,
		current.RowSpan,
		current.ColSpan,
		string(current.RegionType),
		current.Title,
		nullJSON(current.Config),
		deletedAt,
		current.Version,
		expectedVersion,
	).Scan(&current.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.VersionConflictError{Entity: "region", ID: id, Expected: expectedVersion}
		}
		return nil, fmt.Errorf("failed to update region: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &current, nil
}
