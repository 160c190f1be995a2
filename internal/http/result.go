package httpapi

import (
	"errors"

	"fieldops/internal/domain"
)

// Result 统一响应信封
// - code: 2000 成功，-1 失败
// - type: 'success' | 'error' | 'warning'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// ErrorDetail 失败时 result 字段的内容
type ErrorDetail struct {
	ErrorCode       domain.ErrorCode            `json:"error_code"`
	Field           string                      `json:"field,omitempty"`
	RegionIDs       []string                    `json:"region_ids,omitempty"`
	ExpectedVersion int                         `json:"expected_version,omitempty"`
	CurrentVersion  int                         `json:"current_version,omitempty"`
	ConflictCheck   *domain.ConflictCheckResult `json:"conflict_check,omitempty"`
}

// FailWithError maps a domain error onto the envelope. Overridable scheduling conflicts
// are reported as warnings; internal errors never leak their message.
func FailWithError(err error) Result[any] {
	detail := ErrorDetail{ErrorCode: domain.CodeOf(err)}
	res := Result[any]{Code: ResultError, Type: "error", Message: err.Error()}

	var ve *domain.ValidationError
	var oe *domain.OverlapError
	var vce *domain.VersionConflictError
	var sce *domain.SchedulingConflictError
	switch {
	case errors.As(err, &ve):
		detail.Field = ve.Field
	case errors.As(err, &oe):
		detail.RegionIDs = oe.RegionIDs
	case errors.As(err, &vce):
		detail.ExpectedVersion = vce.Expected
		detail.CurrentVersion = vce.Actual
	case errors.As(err, &sce):
		result := sce.Result
		detail.ConflictCheck = &result
		if sce.Overridable() {
			res.Type = "warning"
		}
	}
	if detail.ErrorCode == domain.CodeInternal {
		res.Message = "internal error"
	}
	res.Result = detail
	return res
}
