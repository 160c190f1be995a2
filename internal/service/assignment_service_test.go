package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/repository"
	"fieldops/internal/scheduling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDate = "2026-05-04"

func newAssignmentFixture(t *testing.T, policy scheduling.SeverityPolicy) (*AssignmentService, *repository.MemoryJobsRepo, *recordingPublisher) {
	t.Helper()
	repo := repository.NewMemoryJobsRepo()
	pub := &recordingPublisher{}
	return NewAssignmentService(repo, policy, pub, zap.NewNop()), repo, pub
}

func mustCreateJob(t *testing.T, svc *AssignmentService, technicianID, start, end string) *domain.Job {
	t.Helper()
	j, err := svc.CreateJob(context.Background(), CreateJobRequest{
		TenantID:      testTenant,
		ActorID:       "dispatcher-1",
		Title:         "Inspect boiler",
		TechnicianID:  technicianID,
		ScheduledDate: testDate,
		StartTime:     domain.MustTimeOfDay(start),
		EndTime:       domain.MustTimeOfDay(end),
	})
	require.NoError(t, err)
	return j
}

func checkReq(technicianID, start, end string) CheckAssignmentRequest {
	return CheckAssignmentRequest{
		TenantID:     testTenant,
		TechnicianID: technicianID,
		Date:         testDate,
		StartTime:    domain.MustTimeOfDay(start),
		EndTime:      domain.MustTimeOfDay(end),
	}
}

func TestCheckAssignmentConflicts_PartialOverlap(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)
	existing := mustCreateJob(t, svc, "tech-1", "09:00", "11:00")

	result, err := svc.CheckAssignmentConflicts(context.Background(), checkReq("tech-1", "10:00", "12:00"))

	require.NoError(t, err)
	assert.True(t, result.HasConflicts)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictTimeOverlap, result.Conflicts[0].Type)
	assert.Equal(t, []string{existing.JobID}, result.Conflicts[0].JobIDs())
	assert.Equal(t, domain.SeverityHigh, result.Conflicts[0].Severity)
	assert.True(t, result.CanProceed)
}

func TestCheckAssignmentConflicts_BackToBack(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)
	mustCreateJob(t, svc, "tech-1", "09:00", "10:00")

	result, err := svc.CheckAssignmentConflicts(context.Background(), checkReq("tech-1", "10:00", "11:00"))

	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
	assert.Empty(t, result.Conflicts)
	assert.True(t, result.CanProceed)
}

func TestCheckAssignmentConflicts_DoubleBookingIsCritical(t *testing.T) {
	svc, repo, _ := newAssignmentFixture(t, nil)
	busy := &domain.Job{
		JobID: "job-busy", Title: "On site", TechnicianID: "tech-1", ScheduledDate: testDate,
		StartTime: domain.MustTimeOfDay("09:00"), EndTime: domain.MustTimeOfDay("11:00"),
		Status: domain.JobStatusInProgress, Version: 1,
	}
	require.NoError(t, repo.Insert(context.Background(), testTenant, busy, nil))

	result, err := svc.CheckAssignmentConflicts(context.Background(), checkReq("tech-1", "10:30", "13:00"))

	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictTechnicianDoubleBooking, result.Conflicts[0].Type)
	assert.Equal(t, domain.SeverityCritical, result.HighestSeverity())
	assert.False(t, result.CanProceed)
}

func TestCheckAssignmentConflicts_Validation(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)

	_, err := svc.CheckAssignmentConflicts(context.Background(), checkReq("tech-1", "11:00", "10:00"))
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	req := checkReq("tech-1", "09:00", "10:00")
	req.Date = "tomorrow"
	_, err = svc.CheckAssignmentConflicts(context.Background(), req)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestCommitAssignment_ClearCommitBumpsVersion(t *testing.T) {
	svc, _, pub := newAssignmentFixture(t, nil)
	j := mustCreateJob(t, svc, "", "09:00", "10:00")
	assert.Equal(t, domain.JobStatusUnscheduled, j.Status)

	updated, err := svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
		TenantID: testTenant, ActorID: "dispatcher-1", JobID: j.JobID, TechnicianID: "tech-1", ExpectedVersion: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "tech-1", updated.TechnicianID)
	assert.Equal(t, domain.JobStatusScheduled, updated.Status)
	require.Len(t, pub.ofType(events.AssignmentCommitted), 1)
	assert.Empty(t, pub.ofType(events.AssignmentOverride))
}

func TestCommitAssignment_NonCriticalNeedsOverride(t *testing.T) {
	svc, _, pub := newAssignmentFixture(t, nil)
	existing := mustCreateJob(t, svc, "tech-1", "09:00", "11:00")
	j := mustCreateJob(t, svc, "", "10:00", "12:00")
	ctx := context.Background()
	req := CommitAssignmentRequest{
		TenantID: testTenant, ActorID: "dispatcher-1", JobID: j.JobID, TechnicianID: "tech-1", ExpectedVersion: 1,
	}

	_, err := svc.CommitAssignment(ctx, req)
	var sce *domain.SchedulingConflictError
	require.True(t, errors.As(err, &sce))
	assert.True(t, sce.Overridable())
	stored, err := svc.GetJob(ctx, testTenant, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version, "rejected commit must not write")

	req.SkipConflictCheck = true
	updated, err := svc.CommitAssignment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	overrides := pub.ofType(events.AssignmentOverride)
	require.Len(t, overrides, 1)
	assert.Equal(t, "dispatcher-1", overrides[0].ActorID)
	result, ok := overrides[0].Payload.(domain.ConflictCheckResult)
	require.True(t, ok)
	assert.Equal(t, []string{existing.JobID}, result.Conflicts[0].JobIDs())
}

func TestCommitAssignment_CriticalBlocksEvenWithOverride(t *testing.T) {
	svc, _, pub := newAssignmentFixture(t, nil)
	mustCreateJob(t, svc, "tech-1", "09:00", "12:00")
	j := mustCreateJob(t, svc, "", "10:00", "11:00")

	_, err := svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
		TenantID: testTenant, ActorID: "dispatcher-1", JobID: j.JobID, TechnicianID: "tech-1",
		ExpectedVersion: 1, SkipConflictCheck: true,
	})

	var sce *domain.SchedulingConflictError
	require.True(t, errors.As(err, &sce))
	assert.False(t, sce.Result.CanProceed)
	assert.Equal(t, domain.CodeSchedulingConflict, domain.CodeOf(err))
	assert.Len(t, pub.ofType(events.AssignmentBlocked), 1)
	assert.Empty(t, pub.ofType(events.AssignmentCommitted))
}

func TestCommitAssignment_OverrideStillChecksVersion(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)
	j := mustCreateJob(t, svc, "", "09:00", "10:00")
	ctx := context.Background()

	_, err := svc.CommitAssignment(ctx, CommitAssignmentRequest{
		TenantID: testTenant, JobID: j.JobID, TechnicianID: "tech-1", ExpectedVersion: 1,
	})
	require.NoError(t, err)

	_, err = svc.CommitAssignment(ctx, CommitAssignmentRequest{
		TenantID: testTenant, JobID: j.JobID, TechnicianID: "tech-2", ExpectedVersion: 1, SkipConflictCheck: true,
	})
	assert.Equal(t, domain.CodeVersionConflict, domain.CodeOf(err))
}

func TestCommitAssignment_ReassignExcludesItself(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)
	j := mustCreateJob(t, svc, "tech-1", "09:00", "10:00")

	updated, err := svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
		TenantID: testTenant, JobID: j.JobID, TechnicianID: "tech-1", ExpectedVersion: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
}

func TestCommitAssignment_FinishedJobRejected(t *testing.T) {
	svc, repo, _ := newAssignmentFixture(t, nil)
	done := &domain.Job{
		JobID: "job-done", Title: "Done", ScheduledDate: testDate,
		StartTime: domain.MustTimeOfDay("09:00"), EndTime: domain.MustTimeOfDay("10:00"),
		Status: domain.JobStatusCompleted, Version: 1,
	}
	require.NoError(t, repo.Insert(context.Background(), testTenant, done, nil))

	_, err := svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
		TenantID: testTenant, JobID: "job-done", TechnicianID: "tech-1", ExpectedVersion: 1,
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
		TenantID: testTenant, JobID: "job-missing", TechnicianID: "tech-1", ExpectedVersion: 1,
	})
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestCommitAssignment_InjectedPolicy(t *testing.T) {
	lenient := scheduling.DefaultThresholdPolicy()
	lenient.MinorOverlapMinutes = 30
	svc, _, _ := newAssignmentFixture(t, lenient)
	mustCreateJob(t, svc, "tech-1", "09:00", "10:15")
	j := mustCreateJob(t, svc, "", "10:00", "11:00")

	result, err := svc.CheckAssignmentConflicts(context.Background(), CheckAssignmentRequest{
		TenantID: testTenant, TechnicianID: "tech-1", Date: testDate,
		StartTime: j.StartTime, EndTime: j.EndTime, ExcludeJobIDs: []string{j.JobID},
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.SeverityLow, result.Conflicts[0].Severity)
}

func TestCreateJob_AssignedJobIsChecked(t *testing.T) {
	svc, _, pub := newAssignmentFixture(t, nil)
	mustCreateJob(t, svc, "tech-1", "09:00", "12:00")

	_, err := svc.CreateJob(context.Background(), CreateJobRequest{
		TenantID: testTenant, Title: "Second", TechnicianID: "tech-1", ScheduledDate: testDate,
		StartTime: domain.MustTimeOfDay("10:00"), EndTime: domain.MustTimeOfDay("11:00"),
	})
	assert.Equal(t, domain.CodeSchedulingConflict, domain.CodeOf(err))

	unassigned := mustCreateJob(t, svc, "", "10:00", "11:00")
	assert.Equal(t, 1, unassigned.Version)
	assert.Len(t, pub.ofType(events.JobCreated), 2)

	_, err = svc.CreateJob(context.Background(), CreateJobRequest{
		TenantID: testTenant, ScheduledDate: testDate,
		StartTime: domain.MustTimeOfDay("10:00"), EndTime: domain.MustTimeOfDay("10:00"),
	})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

// 同一技师的多个并发分配：检测与写入原子，最多一个成功
func TestCommitAssignment_ConcurrentCommitsSerialize(t *testing.T) {
	svc, _, _ := newAssignmentFixture(t, nil)
	const workers = 16
	jobs := make([]*domain.Job, workers)
	for i := range jobs {
		jobs[i] = mustCreateJob(t, svc, "", "09:00", "10:00")
	}

	var wins, blocked int32
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *domain.Job) {
			defer wg.Done()
			_, err := svc.CommitAssignment(context.Background(), CommitAssignmentRequest{
				TenantID: testTenant, JobID: j.JobID, TechnicianID: "tech-1", ExpectedVersion: 1, SkipConflictCheck: true,
			})
			switch domain.CodeOf(err) {
			case "":
				atomic.AddInt32(&wins, 1)
			case domain.CodeSchedulingConflict:
				atomic.AddInt32(&blocked, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(j)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(workers-1), blocked)
}
