package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldops/internal/domain"
	"fieldops/internal/layout"
)

// PostgresLayoutsRepository 仪表盘布局Repository实现
type PostgresLayoutsRepository struct {
	db *sql.DB
}

// NewPostgresLayoutsRepository 创建布局Repository
func NewPostgresLayoutsRepository(db *sql.DB) *PostgresLayoutsRepository {
	return &PostgresLayoutsRepository{db: db}
}

// 确保实现了接口
var _ LayoutsRepository = (*PostgresLayoutsRepository)(nil)

// CreateLayout 创建布局
func (r *PostgresLayoutsRepository) CreateLayout(ctx context.Context, l *domain.Layout) error {
	query := `
		INSERT INTO dashboard_layouts (layout_id, tenant_id, owner_id, layout_name, columns)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		l.LayoutID, l.TenantID, nullString(l.OwnerID), l.Name, l.Columns,
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create layout: %w", err)
	}
	return nil
}

// GetLayout 获取布局
func (r *PostgresLayoutsRepository) GetLayout(ctx context.Context, tenantID, layoutID string) (*domain.Layout, error) {
	l, err := getLayout(ctx, r.db, tenantID, layoutID, false)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const layoutColumns = `
		layout_id::text,
		tenant_id,
		COALESCE(owner_id, ''),
		layout_name,
		columns,
		created_at`

// getLayout 读取布局；forUpdate 时加行锁，同一布局的区域写操作由此串行化
func getLayout(ctx context.Context, q dbtx, tenantID, layoutID string, forUpdate bool) (domain.Layout, error) {
	var l domain.Layout
	if tenantID == "" || !isUUID(layoutID) {
		return l, fmt.Errorf("layout %s: %w", layoutID, domain.ErrNotFound)
	}

	query := `SELECT ` + layoutColumns + `
		FROM dashboard_layouts
		WHERE tenant_id = $1 AND layout_id = $2`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	err := q.QueryRowContext(ctx, query, tenantID, layoutID).Scan(
		&l.LayoutID,
		&l.TenantID,
		&l.OwnerID,
		&l.Name,
		&l.Columns,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, fmt.Errorf("layout %s: %w", layoutID, domain.ErrNotFound)
		}
		return l, fmt.Errorf("failed to get layout: %w", err)
	}
	return l, nil
}

// lockSnapshot 锁定布局行并读取其未删除区域（必须在事务内调用）
func lockSnapshot(ctx context.Context, tx *sql.Tx, tenantID, layoutID string) (layout.Snapshot, error) {
	l, err := getLayout(ctx, tx, tenantID, layoutID, true)
	if err != nil {
		return layout.Snapshot{}, err
	}
	regions, err := listRegions(ctx, tx, tenantID, layoutID, false)
	if err != nil {
		return layout.Snapshot{}, err
	}
	return layout.Snapshot{Layout: l, Regions: regions}, nil
}
