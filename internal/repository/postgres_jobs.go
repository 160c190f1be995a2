package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldops/internal/domain"
	"fieldops/internal/scheduling"
	"fieldops/internal/versioned"

	"github.com/lib/pq"
)

// PostgresJobsRepository 工单Repository实现
//
// Writes run in a transaction. The scheduling view handed to the check takes a
// transaction-scoped advisory lock on every (technician, date) and (location, date) key
// before reading it, so two commits touching the same key serialize and the second one
// sees the first one's row.
type PostgresJobsRepository struct {
	db *sql.DB
}

// NewPostgresJobsRepository 创建工单Repository
func NewPostgresJobsRepository(db *sql.DB) *PostgresJobsRepository {
	return &PostgresJobsRepository{db: db}
}

// 确保实现了接口
var _ JobsRepository = (*PostgresJobsRepository)(nil)

const jobColumns = `
		job_id::text,
		tenant_id,
		title,
		COALESCE(technician_id, ''),
		scheduled_date::text,
		start_time::text,
		end_time::text,
		COALESCE(location, ''),
		status,
		version,
		created_at,
		updated_at`

func scanJob(s rowScanner) (domain.Job, error) {
	var j domain.Job
	var start, end, status string

	err := s.Scan(
		&j.JobID,
		&j.TenantID,
		&j.Title,
		&j.TechnicianID,
		&j.ScheduledDate,
		&start,
		&end,
		&j.Location,
		&status,
		&j.Version,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}

	if j.StartTime, err = domain.ParseTimeOfDay(start); err != nil {
		return j, err
	}
	if j.EndTime, err = domain.ParseTimeOfDay(end); err != nil {
		return j, err
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}

func queryJobs(ctx context.Context, q dbtx, query string, args ...any) ([]domain.Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func listJobsForTechnician(ctx context.Context, q dbtx, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error) {
	if excludeIDs == nil {
		// pq.Array(nil) 会变成 NULL，导致 NOT (... = ANY(NULL)) 过滤掉所有行
		excludeIDs = []string{}
	}
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
			AND technician_id = $2
			AND scheduled_date = $3
			AND status = ANY($4)
			AND NOT (job_id::text = ANY($5))
		ORDER BY start_time, job_id`
	return queryJobs(ctx, q, query, tenantID, technicianID, date,
		pq.Array(domain.BlockingStatuses()), pq.Array(excludeIDs))
}

func listJobsAtLocation(ctx context.Context, q dbtx, tenantID, location, date string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
			AND location = $2
			AND scheduled_date = $3
			AND status = ANY($4)
		ORDER BY start_time, job_id`
	return queryJobs(ctx, q, query, tenantID, location, date, pq.Array(domain.BlockingStatuses()))
}

// ListJobsForTechnician 技师某天的工单（不加锁，用于预检查）
func (r *PostgresJobsRepository) ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error) {
	return listJobsForTechnician(ctx, r.db, tenantID, technicianID, date, excludeIDs)
}

// ListJobsAtLocation 某地点某天的工单（不加锁，用于预检查）
func (r *PostgresJobsRepository) ListJobsAtLocation(ctx context.Context, tenantID, location, date string) ([]domain.Job, error) {
	return listJobsAtLocation(ctx, r.db, tenantID, location, date)
}

// GetJob 获取工单
func (r *PostgresJobsRepository) GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	if tenantID == "" || !isUUID(jobID) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND job_id = $2`, tenantID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// Insert 新建工单；check 在同一事务内执行
func (r *PostgresJobsRepository) Insert(ctx context.Context, tenantID string, job *domain.Job, check versioned.Mutator[*domain.Job, scheduling.JobReader]) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if check != nil {
		if err := check(ctx, job, newTxJobReader(tx)); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO jobs (
			job_id, tenant_id, title, technician_id, scheduled_date,
			start_time, end_time, location, status, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		job.JobID,
		tenantID,
		job.Title,
		nullString(job.TechnicianID),
		job.ScheduledDate,
		job.StartTime.String(),
		job.EndTime.String(),
		nullString(job.Location),
		string(job.Status),
		job.Version,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CompareAndSwap 按期望版本更新工单
func (r *PostgresJobsRepository) CompareAndSwap(ctx context.Context, tenantID, id string, expectedVersion int, mutate versioned.Mutator[*domain.Job, scheduling.JobReader]) (*domain.Job, error) {
	if tenantID == "" || !isUUID(id) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+`
		FROM jobs
		WHERE tenant_id = $1 AND job_id = $2
		FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}

	if err := versioned.Apply[*domain.Job, scheduling.JobReader](ctx, "job", &current, expectedVersion, newTxJobReader(tx), mutate); err != nil {
		return nil, err
	}

	query := `
		UPDATE jobs
		SET title = $3,
			technician_id = $4,
			scheduled_date = $5,
			start_time = $6,
			end_time = $7,
			location = $8,
			status = $9,
			version = $10,
			updated_at = NOW()
		WHERE tenant_id = $1 AND job_id = $2 AND version = $11
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		tenantID,
		id,
		current.Title,
		nullString(current.TechnicianID),
		current.ScheduledDate,
		current.StartTime.String(),
		current.EndTime.String(),
		nullString(current.Location),
		string(current.Status),
		current.Version,
		expectedVersion,
	).Scan(&current.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.VersionConflictError{Entity: "job", ID: id, Expected: expectedVersion}
		}
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &current, nil
}

// txJobReader 事务内的只读视图：读取前对键加 pg_advisory_xact_lock（事务结束自动释放）
// 一次事务最多锁一个技师键和一个地点键，且总是先技师后地点，不会形成环路等待
type txJobReader struct {
	tx     *sql.Tx
	locked map[string]bool
}

func newTxJobReader(tx *sql.Tx) *txJobReader {
	return &txJobReader{tx: tx, locked: map[string]bool{}}
}

var _ scheduling.JobReader = (*txJobReader)(nil)

func (r *txJobReader) lock(ctx context.Context, key string) error {
	if r.locked[key] {
		return nil
	}
	if _, err := r.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to acquire scheduling lock: %w", err)
	}
	r.locked[key] = true
	return nil
}

func (r *txJobReader) ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error) {
	if err := r.lock(ctx, technicianLockKey(tenantID, technicianID, date)); err != nil {
		return nil, err
	}
	return listJobsForTechnician(ctx, r.tx, tenantID, technicianID, date, excludeIDs)
}

func (r *txJobReader) ListJobsAtLocation(ctx context.Context, tenantID, location, date string) ([]domain.Job, error) {
	if err := r.lock(ctx, locationLockKey(tenantID, location, date)); err != nil {
		return nil, err
	}
	return listJobsAtLocation(ctx, r.tx, tenantID, location, date)
}

func technicianLockKey(tenantID, technicianID, date string) string {
	return "technician:" + tenantID + ":" + technicianID + ":" + date
}

func locationLockKey(tenantID, location, date string) string {
	return "location:" + tenantID + ":" + location + ":" + date
}
