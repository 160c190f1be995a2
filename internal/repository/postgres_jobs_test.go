package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/scheduling"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJob      = "3c9a7e21-6d4b-4f8a-b2c1-9e0d8f7a6b54"
	existingJob  = "8d2b6f14-1a3c-4e5d-9f7b-2c4e6a8b0d13"
	testTech     = "tech-7"
	testDate     = "2026-05-04"
	testLocation = "Site A"
)

var jobCols = []string{
	"job_id", "tenant_id", "title", "technician_id", "scheduled_date", "start_time", "end_time",
	"location", "status", "version", "created_at", "updated_at",
}

func setupJobsMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresJobsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresJobsRepository(db)
}

func TestPostgresJobs_ListForTechnicianParsesTimes(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND technician_id = \$2 AND scheduled_date = \$3 AND status = ANY\(\$4\) AND NOT \(job_id::text = ANY\(\$5\)\)`).
		WithArgs(testTenant, testTech, testDate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(existingJob, testTenant, "Boiler service", testTech, testDate, "09:00:00", "11:30:00", "", "scheduled", 2, now, now))

	jobs, err := repo.ListJobsForTechnician(context.Background(), testTenant, testTech, testDate, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.MustTimeOfDay("09:00"), jobs[0].StartTime)
	assert.Equal(t, domain.MustTimeOfDay("11:30"), jobs[0].EndTime)
	assert.Equal(t, domain.JobStatusScheduled, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 结束于午夜的工单：TIME 列返回 24:00:00
func TestPostgresJobs_ListForTechnicianMidnightEnd(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND technician_id = \$2`).
		WithArgs(testTenant, testTech, testDate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(existingJob, testTenant, "Night shift", testTech, testDate, "22:00:00", "24:00:00", "", "scheduled", 1, now, now))

	jobs, err := repo.ListJobsForTechnician(context.Background(), testTenant, testTech, testDate, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.EndOfDay, jobs[0].EndTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 提交时的检测必须先拿到 advisory lock 再读取
func TestPostgresJobs_CompareAndSwapLocksBeforeReading(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND job_id = \$2 FOR UPDATE`).
		WithArgs(testTenant, testJob).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(testJob, testTenant, "Install", "", testDate, "13:00:00", "14:00:00", testLocation, "unscheduled", 1, now, now))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("technician:" + testTenant + ":" + testTech + ":" + testDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND technician_id = \$2`).
		WithArgs(testTenant, testTech, testDate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobCols))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("location:" + testTenant + ":" + testLocation + ":" + testDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND location = \$2`).
		WithArgs(testTenant, testLocation, testDate, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobCols))
	mock.ExpectQuery(`UPDATE jobs SET .* WHERE tenant_id = \$1 AND job_id = \$2 AND version = \$11`).
		WithArgs(testTenant, testJob, "Install", testTech, testDate, "13:00", "14:00", testLocation, "scheduled", 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	detector := scheduling.NewDetector()
	updated, err := repo.CompareAndSwap(context.Background(), testTenant, testJob, 1,
		func(ctx context.Context, j *domain.Job, view scheduling.JobReader) error {
			conflicts, err := detector.Detect(ctx, view, scheduling.CandidateForJob(j, testTech))
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return errors.New("unexpected conflict")
			}
			j.TechnicianID = testTech
			j.Status = domain.JobStatusScheduled
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, testTech, updated.TechnicianID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobs_CompareAndSwapMutatorErrorRollsBack(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(testTenant, testJob).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow(testJob, testTenant, "Install", "", testDate, "13:00:00", "14:00:00", "", "unscheduled", 1, now, now))
	mock.ExpectRollback()

	boom := errors.New("blocked")
	_, err := repo.CompareAndSwap(context.Background(), testTenant, testJob, 1,
		func(context.Context, *domain.Job, scheduling.JobReader) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobs_InsertRunsCheckInTransaction(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("technician:" + testTenant + ":" + testTech + ":" + testDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND technician_id = \$2`).
		WithArgs(testTenant, testTech, testDate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(jobCols))
	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(testJob, testTenant, "Install", testTech, testDate, "13:00", "14:00", nil, "scheduled", 1).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	job := &domain.Job{
		JobID: testJob, TenantID: testTenant, Title: "Install", TechnicianID: testTech,
		ScheduledDate: testDate, StartTime: domain.MustTimeOfDay("13:00"), EndTime: domain.MustTimeOfDay("14:00"),
		Status: domain.JobStatusScheduled, Version: 1,
	}
	err := repo.Insert(context.Background(), testTenant, job, func(ctx context.Context, j *domain.Job, view scheduling.JobReader) error {
		_, err := view.ListJobsForTechnician(ctx, testTenant, j.TechnicianID, j.ScheduledDate, []string{j.JobID})
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobs_GetJobNotFound(t *testing.T) {
	db, mock, repo := setupJobsMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM jobs WHERE tenant_id = \$1 AND job_id = \$2`).
		WithArgs(testTenant, testJob).
		WillReturnRows(sqlmock.NewRows(jobCols))

	_, err := repo.GetJob(context.Background(), testTenant, testJob)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	_, err = repo.GetJob(context.Background(), testTenant, "job-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
