package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode 机器可读的错误码（对外接口使用）
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeOverlap            ErrorCode = "OVERLAP"
	CodeVersionConflict    ErrorCode = "VERSION_CONFLICT"
	CodeSchedulingConflict ErrorCode = "SCHEDULING_CONFLICT"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// ErrNotFound is wrapped by repositories when a tenant-scoped lookup finds nothing.
var ErrNotFound = errors.New("not found")

// ValidationError 参数/边界校验失败，在任何读取之前即可拒绝
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}

// NewValidationError is a shorthand constructor.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// OverlapError 区域与同一布局中已有区域重叠；调用方必须换坐标，原样重试无意义
type OverlapError struct {
	LayoutID  string
	RegionIDs []string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("region overlaps existing regions in layout %s: %s",
		e.LayoutID, strings.Join(e.RegionIDs, ", "))
}

// VersionConflictError 版本过期；调用方需重新读取当前版本后重试
type VersionConflictError struct {
	Entity   string
	ID       string
	Expected int
	Actual   int // 0 when the stored version is unknown
}

func (e *VersionConflictError) Error() string {
	if e.Actual > 0 {
		return fmt.Sprintf("%s %s: version conflict (expected %d, current %d)", e.Entity, e.ID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s %s: version conflict (expected %d)", e.Entity, e.ID, e.Expected)
}

// SchedulingConflictError 排班冲突，携带完整冲突列表和 can_proceed
type SchedulingConflictError struct {
	JobID        string
	TechnicianID string
	Result       ConflictCheckResult
}

func (e *SchedulingConflictError) Error() string {
	kind := "advisory"
	if !e.Result.CanProceed {
		kind = "blocking"
	}
	return fmt.Sprintf("job %s: %d %s scheduling conflict(s) for technician %s",
		e.JobID, len(e.Result.Conflicts), kind, e.TechnicianID)
}

// Overridable reports whether the caller may retry with an explicit override.
func (e *SchedulingConflictError) Overridable() bool {
	return e.Result.CanProceed
}

// CodeOf maps an error (possibly wrapped) to its machine-readable code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	var oe *OverlapError
	var vce *VersionConflictError
	var sce *SchedulingConflictError
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &oe):
		return CodeOverlap
	case errors.As(err, &vce):
		return CodeVersionConflict
	case errors.As(err, &sce):
		return CodeSchedulingConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}
