package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/repository"
	"fieldops/internal/scheduling"
	"fieldops/internal/versioned"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignmentService 技师排班服务：冲突检查、分配提交
type AssignmentService struct {
	jobs     repository.JobsRepository
	store    *versioned.Store[*domain.Job, scheduling.JobReader]
	detector *scheduling.Detector
	resolver *scheduling.Resolver
	events   events.Publisher
	logger   *zap.Logger
}

// NewAssignmentService 创建排班服务；policy 为 nil 时使用默认阈值策略
func NewAssignmentService(jobs repository.JobsRepository, policy scheduling.SeverityPolicy, publisher events.Publisher, logger *zap.Logger) *AssignmentService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		jobs:     jobs,
		store:    versioned.NewStore[*domain.Job, scheduling.JobReader]("job", jobs, logger),
		detector: scheduling.NewDetector(),
		resolver: scheduling.NewResolver(policy),
		events:   publisher,
		logger:   logger,
	}
}

// CheckAssignmentRequest 冲突检查请求
type CheckAssignmentRequest struct {
	TenantID      string
	TechnicianID  string
	Date          string
	StartTime     domain.TimeOfDay
	EndTime       domain.TimeOfDay
	Location      string
	ExcludeJobIDs []string
}

// CheckAssignmentConflicts 只读检查：不写入，不加锁
// 结果仅供参考，提交时会在写入的原子操作内重新检测
func (s *AssignmentService) CheckAssignmentConflicts(ctx context.Context, req CheckAssignmentRequest) (*domain.ConflictCheckResult, error) {
	c := scheduling.Candidate{
		TenantID:      req.TenantID,
		TechnicianID:  req.TechnicianID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Location:      req.Location,
		ExcludeJobIDs: req.ExcludeJobIDs,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	conflicts, err := s.detector.Detect(ctx, s.jobs, c)
	if err != nil {
		return nil, err
	}
	result := s.resolver.Resolve(conflicts)

	s.logger.Debug("Assignment conflicts checked",
		zap.String("tenant_id", req.TenantID),
		zap.String("technician_id", c.TechnicianID),
		zap.String("date", c.Date),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Bool("can_proceed", result.CanProceed),
	)
	return &result, nil
}

// CommitAssignmentRequest 分配提交请求
type CommitAssignmentRequest struct {
	TenantID        string
	ActorID         string
	JobID           string
	TechnicianID    string
	ExpectedVersion int
	// SkipConflictCheck 仅对本次提交有效，只能跳过非 critical 冲突
	SkipConflictCheck bool
}

// CommitAssignment 将工单分配给技师；成功后 version = ExpectedVersion+1
//
// Conflict detection always re-runs inside the write's atomic boundary. Critical conflicts
// block the write even with SkipConflictCheck; non-critical ones block it unless
// SkipConflictCheck is set, in which case the override is logged and published.
func (s *AssignmentService) CommitAssignment(ctx context.Context, req CommitAssignmentRequest) (*domain.Job, error) {
	if req.JobID == "" {
		return nil, domain.NewValidationError("job_id", "is required")
	}
	technicianID := strings.TrimSpace(req.TechnicianID)
	if technicianID == "" {
		return nil, domain.NewValidationError("technician_id", "is required")
	}

	attempt := scheduling.NewAttempt()
	var result domain.ConflictCheckResult

	updated, err := s.store.UpdateWithVersion(ctx, req.TenantID, req.JobID, req.ExpectedVersion,
		func(ctx context.Context, j *domain.Job, view scheduling.JobReader) error {
			if !j.Status.Blocks() {
				return domain.NewValidationError("status", fmt.Sprintf("job is %s and cannot be assigned", j.Status))
			}
			var err error
			result, err = s.assess(ctx, view, attempt, j, technicianID, req.SkipConflictCheck)
			if err != nil {
				return err
			}
			j.TechnicianID = technicianID
			if j.Status == domain.JobStatusUnscheduled {
				j.Status = domain.JobStatusScheduled
			}
			return nil
		})
	if err != nil {
		s.logCommitRejected(ctx, req, technicianID, err)
		return nil, err
	}
	if err := attempt.Transition(scheduling.StateCommitted); err != nil {
		s.logger.Error("Assignment attempt in unexpected state", zap.String("job_id", req.JobID), zap.Error(err))
	}

	if result.HasConflicts {
		s.recordOverride(ctx, req.ActorID, updated, result)
	}
	s.logger.Info("Assignment committed",
		zap.String("tenant_id", req.TenantID),
		zap.String("job_id", updated.JobID),
		zap.String("technician_id", updated.TechnicianID),
		zap.Int("version", updated.Version),
	)
	publish(ctx, s.events, s.logger, events.New(events.AssignmentCommitted, req.TenantID, req.ActorID,
		updated.JobID, updated.TechnicianID, updated.Version, updated))
	return updated, nil
}

// CreateJobRequest 创建工单请求；TechnicianID 非空时同时完成分配（同样做冲突检测）
type CreateJobRequest struct {
	TenantID          string
	ActorID           string
	Title             string
	TechnicianID      string
	ScheduledDate     string
	StartTime         domain.TimeOfDay
	EndTime           domain.TimeOfDay
	Location          string
	SkipConflictCheck bool
}

// CreateJob 创建工单，version 从 1 开始
func (s *AssignmentService) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.Job, error) {
	date, err := domain.NormalizeDate(req.ScheduledDate)
	if err != nil {
		return nil, domain.NewValidationError("scheduled_date", err.Error())
	}
	if req.EndTime <= req.StartTime {
		return nil, domain.NewValidationError("end_time", "must be after start_time")
	}

	job := &domain.Job{
		JobID:         uuid.NewString(),
		TenantID:      req.TenantID,
		Title:         strings.TrimSpace(req.Title),
		TechnicianID:  strings.TrimSpace(req.TechnicianID),
		ScheduledDate: date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Location:      strings.TrimSpace(req.Location),
		Status:        domain.JobStatusUnscheduled,
	}
	if job.IsAssigned() {
		job.Status = domain.JobStatusScheduled
	}

	attempt := scheduling.NewAttempt()
	var result domain.ConflictCheckResult
	var check versioned.Mutator[*domain.Job, scheduling.JobReader]
	if job.IsAssigned() {
		check = func(ctx context.Context, j *domain.Job, view scheduling.JobReader) error {
			var err error
			result, err = s.assess(ctx, view, attempt, j, j.TechnicianID, req.SkipConflictCheck)
			return err
		}
	}

	created, err := s.store.Create(ctx, req.TenantID, job, check)
	if err != nil {
		s.logger.Warn("Job creation rejected",
			zap.String("tenant_id", req.TenantID),
			zap.String("technician_id", job.TechnicianID),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	if result.HasConflicts {
		s.recordOverride(ctx, req.ActorID, created, result)
	}

	s.logger.Info("Job created",
		zap.String("tenant_id", req.TenantID),
		zap.String("job_id", created.JobID),
		zap.String("technician_id", created.TechnicianID),
	)
	publish(ctx, s.events, s.logger, events.New(events.JobCreated, req.TenantID, req.ActorID,
		created.JobID, created.TechnicianID, created.Version, created))
	return created, nil
}

// GetJob 获取工单
func (s *AssignmentService) GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	if tenantID == "" {
		return nil, domain.NewValidationError("tenant_id", "is required")
	}
	return s.jobs.GetJob(ctx, tenantID, jobID)
}

// assess 在写入的原子边界内检测冲突并推进尝试状态机
func (s *AssignmentService) assess(ctx context.Context, view scheduling.JobReader, attempt *scheduling.Attempt, j *domain.Job, technicianID string, override bool) (domain.ConflictCheckResult, error) {
	c := scheduling.CandidateForJob(j, technicianID)
	if err := c.Validate(); err != nil {
		return domain.ConflictCheckResult{}, err
	}
	conflicts, err := s.detector.Detect(ctx, view, c)
	if err != nil {
		return domain.ConflictCheckResult{}, err
	}
	result := s.resolver.Resolve(conflicts)

	proceed, err := attempt.Decide(result, override)
	if err != nil {
		return result, err
	}
	if !proceed {
		return result, &domain.SchedulingConflictError{JobID: j.JobID, TechnicianID: technicianID, Result: result}
	}
	return result, nil
}

// recordOverride 审计：谁跳过了哪些冲突
func (s *AssignmentService) recordOverride(ctx context.Context, actorID string, job *domain.Job, result domain.ConflictCheckResult) {
	bypassed := make([]string, 0, len(result.Conflicts))
	for _, c := range result.Conflicts {
		for _, id := range c.JobIDs() {
			bypassed = append(bypassed, fmt.Sprintf("%s:%s:%s", c.Type, c.Severity, id))
		}
	}
	s.logger.Warn("Scheduling conflict overridden",
		zap.String("tenant_id", job.TenantID),
		zap.String("actor_id", actorID),
		zap.String("job_id", job.JobID),
		zap.String("technician_id", job.TechnicianID),
		zap.String("highest_severity", string(result.HighestSeverity())),
		zap.Strings("bypassed_conflicts", bypassed),
	)
	publish(ctx, s.events, s.logger, events.New(events.AssignmentOverride, job.TenantID, actorID,
		job.JobID, job.TechnicianID, job.Version, result))
}

func (s *AssignmentService) logCommitRejected(ctx context.Context, req CommitAssignmentRequest, technicianID string, err error) {
	fields := []zap.Field{
		zap.String("tenant_id", req.TenantID),
		zap.String("job_id", req.JobID),
		zap.String("technician_id", technicianID),
		zap.Int("expected_version", req.ExpectedVersion),
		zap.String("code", string(domain.CodeOf(err))),
	}
	var sce *domain.SchedulingConflictError
	if errors.As(err, &sce) {
		fields = append(fields,
			zap.Bool("can_proceed", sce.Result.CanProceed),
			zap.String("highest_severity", string(sce.Result.HighestSeverity())),
		)
		s.logger.Warn("Assignment rejected", fields...)
		if !sce.Result.CanProceed {
			publish(ctx, s.events, s.logger, events.New(events.AssignmentBlocked, req.TenantID, req.ActorID,
				req.JobID, technicianID, req.ExpectedVersion, sce.Result))
		}
		return
	}
	if domain.CodeOf(err) == domain.CodeInternal {
		s.logger.Error("Assignment failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Warn("Assignment rejected", append(fields, zap.Error(err))...)
}
