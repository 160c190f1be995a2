package httpapi

import (
	"net/http"

	"fieldops/internal/domain"
	"fieldops/internal/service"

	"go.uber.org/zap"
)

// AssignmentsHandler 工单/排班 Handler
type AssignmentsHandler struct {
	assignmentService *service.AssignmentService
	logger            *zap.Logger
}

// NewAssignmentsHandler 创建排班 Handler
func NewAssignmentsHandler(assignmentService *service.AssignmentService, logger *zap.Logger) *AssignmentsHandler {
	return &AssignmentsHandler{
		assignmentService: assignmentService,
		logger:            logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *AssignmentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID, rest := pathParam(r.URL.Path, "/api/v1/jobs/")

	switch {
	case r.URL.Path == "/api/v1/assignments/check" && r.Method == http.MethodPost:
		h.CheckAssignment(w, r)
	case r.URL.Path == "/api/v1/jobs" && r.Method == http.MethodPost:
		h.CreateJob(w, r)
	case jobID != "" && rest == "" && r.Method == http.MethodGet:
		h.GetJob(w, r, jobID)
	case jobID != "" && rest == "assignment" && r.Method == http.MethodPost:
		h.CommitAssignment(w, r, jobID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// CheckAssignment 只读冲突检查
func (h *AssignmentsHandler) CheckAssignment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		TechnicianID  string           `json:"technician_id"`
		Date          string           `json:"date"`
		StartTime     domain.TimeOfDay `json:"start_time"`
		EndTime       domain.TimeOfDay `json:"end_time"`
		Location      string           `json:"location"`
		ExcludeJobIDs []string         `json:"exclude_job_ids"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	result, err := h.assignmentService.CheckAssignmentConflicts(r.Context(), service.CheckAssignmentRequest{
		TenantID:      tenantID,
		TechnicianID:  payload.TechnicianID,
		Date:          payload.Date,
		StartTime:     payload.StartTime,
		EndTime:       payload.EndTime,
		Location:      payload.Location,
		ExcludeJobIDs: payload.ExcludeJobIDs,
	})
	if err != nil {
		h.fail(w, "CheckAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// CreateJob 创建工单
func (h *AssignmentsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title             string           `json:"title"`
		TechnicianID      string           `json:"technician_id"`
		ScheduledDate     string           `json:"scheduled_date"`
		StartTime         domain.TimeOfDay `json:"start_time"`
		EndTime           domain.TimeOfDay `json:"end_time"`
		Location          string           `json:"location"`
		SkipConflictCheck bool             `json:"skip_conflict_check"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	job, err := h.assignmentService.CreateJob(r.Context(), service.CreateJobRequest{
		TenantID:          tenantID,
		ActorID:           actorIDFromReq(r),
		Title:             payload.Title,
		TechnicianID:      payload.TechnicianID,
		ScheduledDate:     payload.ScheduledDate,
		StartTime:         payload.StartTime,
		EndTime:           payload.EndTime,
		Location:          payload.Location,
		SkipConflictCheck: payload.SkipConflictCheck,
	})
	if err != nil {
		h.fail(w, "CreateJob", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(job))
}

// GetJob 查询工单
func (h *AssignmentsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	job, err := h.assignmentService.GetJob(r.Context(), tenantID, jobID)
	if err != nil {
		h.fail(w, "GetJob", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(job))
}

// CommitAssignment 提交分配
func (h *AssignmentsHandler) CommitAssignment(w http.ResponseWriter, r *http.Request, jobID string) {
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	var payload struct {
		TechnicianID      string `json:"technician_id"`
		ExpectedVersion   int    `json:"expected_version"`
		SkipConflictCheck bool   `json:"skip_conflict_check"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	job, err := h.assignmentService.CommitAssignment(r.Context(), service.CommitAssignmentRequest{
		TenantID:          tenantID,
		ActorID:           actorIDFromReq(r),
		JobID:             jobID,
		TechnicianID:      payload.TechnicianID,
		ExpectedVersion:   payload.ExpectedVersion,
		SkipConflictCheck: payload.SkipConflictCheck,
	})
	if err != nil {
		h.fail(w, "CommitAssignment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(job))
}

func (h *AssignmentsHandler) fail(w http.ResponseWriter, op string, err error) {
	if domain.CodeOf(err) == domain.CodeInternal {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, FailWithError(err))
}
