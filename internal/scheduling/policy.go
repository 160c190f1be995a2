package scheduling

import (
	"fmt"

	"fieldops/internal/domain"
)

// SeverityPolicy 冲突严重程度分级策略（可替换）
type SeverityPolicy interface {
	ClassifySeverity(c domain.Conflict) domain.Severity
}

// ThresholdPolicy is the default, conservative severity policy:
//   - technician_double_booking is always critical;
//   - time_overlap is critical when the overlap covers at least CriticalOverlapRatio of
//     the shorter of the two jobs, low when it is at most MinorOverlapMinutes, high otherwise;
//   - location_conflict gets LocationSeverity.
type ThresholdPolicy struct {
	// CriticalOverlapRatio 重叠占较短工单时长的比例阈值；1.0 表示完全覆盖才算 critical
	CriticalOverlapRatio float64
	// MinorOverlapMinutes 小于等于该分钟数的部分重叠降级为 low；0 表示不降级
	MinorOverlapMinutes int
	LocationSeverity    domain.Severity
}

// DefaultThresholdPolicy 默认策略：完全重叠为 critical，其余为非 critical
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		CriticalOverlapRatio: 1.0,
		MinorOverlapMinutes:  0,
		LocationSeverity:     domain.SeverityMedium,
	}
}

// Validate checks the thresholds.
func (p ThresholdPolicy) Validate() error {
	if p.CriticalOverlapRatio <= 0 || p.CriticalOverlapRatio > 1 {
		return fmt.Errorf("critical overlap ratio must be in (0, 1], got %v", p.CriticalOverlapRatio)
	}
	if p.MinorOverlapMinutes < 0 {
		return fmt.Errorf("minor overlap minutes must be >= 0, got %d", p.MinorOverlapMinutes)
	}
	if p.LocationSeverity.Rank() == 0 {
		return fmt.Errorf("unknown location severity %q", p.LocationSeverity)
	}
	return nil
}

// ClassifySeverity implements SeverityPolicy.
func (p ThresholdPolicy) ClassifySeverity(c domain.Conflict) domain.Severity {
	switch c.Type {
	case domain.ConflictTechnicianDoubleBooking:
		return domain.SeverityCritical
	case domain.ConflictLocation:
		return p.LocationSeverity
	case domain.ConflictTimeOverlap:
		shorter := c.CandidateMinutes
		for _, j := range c.ConflictingJobs {
			if l := j.Span().Len(); shorter == 0 || (l > 0 && l < shorter) {
				shorter = l
			}
		}
		if shorter > 0 && float64(c.OverlapMinutes)/float64(shorter) >= p.CriticalOverlapRatio {
			return domain.SeverityCritical
		}
		if p.MinorOverlapMinutes > 0 && c.OverlapMinutes <= p.MinorOverlapMinutes {
			return domain.SeverityLow
		}
		return domain.SeverityHigh
	}
	// 未知类型按最严格处理
	return domain.SeverityCritical
}

// Evaluate 汇总冲突列表：can_proceed 当且仅当没有 critical 冲突
func Evaluate(conflicts []domain.Conflict) domain.ConflictCheckResult {
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}
	canProceed := true
	for _, c := range conflicts {
		if c.Severity == domain.SeverityCritical {
			canProceed = false
			break
		}
	}
	return domain.ConflictCheckResult{
		HasConflicts: len(conflicts) > 0,
		Conflicts:    conflicts,
		CanProceed:   canProceed,
	}
}

// Resolver 冲突解决策略：分级 + 裁决
type Resolver struct {
	policy SeverityPolicy
}

// NewResolver uses DefaultThresholdPolicy when policy is nil.
func NewResolver(policy SeverityPolicy) *Resolver {
	if policy == nil {
		policy = DefaultThresholdPolicy()
	}
	return &Resolver{policy: policy}
}

// Resolve classifies every conflict and computes the verdict.
func (r *Resolver) Resolve(conflicts []domain.Conflict) domain.ConflictCheckResult {
	classified := make([]domain.Conflict, len(conflicts))
	for i, c := range conflicts {
		c.Severity = r.policy.ClassifySeverity(c)
		classified[i] = c
	}
	return Evaluate(classified)
}
