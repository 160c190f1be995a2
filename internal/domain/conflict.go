package domain

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictTimeOverlap             ConflictType = "time_overlap"
	ConflictTechnicianDoubleBooking ConflictType = "technician_double_booking"
	ConflictLocation                ConflictType = "location_conflict"
)

// Severity 冲突严重程度（有序）
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low < medium < high < critical. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ParseSeverity 解析严重程度字符串
func ParseSeverity(s string) (Severity, bool) {
	v := Severity(s)
	return v, v.Rank() > 0
}

// Conflict 检测出的冲突（派生数据，不持久化）
type Conflict struct {
	Type            ConflictType `json:"type"`
	Severity        Severity     `json:"severity"`
	Description     string       `json:"description"`
	ConflictingJobs []Job        `json:"conflicting_jobs"`
	// OverlapMinutes 与候选时间段重叠的分钟数（供严重程度策略使用）
	OverlapMinutes int `json:"overlap_minutes"`
	// CandidateMinutes 候选工单时长
	CandidateMinutes int `json:"-"`
}

// JobIDs returns the ids of the conflicting jobs.
func (c Conflict) JobIDs() []string {
	ids := make([]string, 0, len(c.ConflictingJobs))
	for _, j := range c.ConflictingJobs {
		ids = append(ids, j.JobID)
	}
	return ids
}

// ConflictCheckResult 冲突检查结果（每次请求计算，不持久化）
type ConflictCheckResult struct {
	HasConflicts bool       `json:"has_conflicts"`
	Conflicts    []Conflict `json:"conflicts"`
	CanProceed   bool       `json:"can_proceed"`
}

// HighestSeverity returns the most severe level present, or "" when there are no conflicts.
func (r ConflictCheckResult) HighestSeverity() Severity {
	var top Severity
	for _, c := range r.Conflicts {
		if c.Severity.Rank() > top.Rank() {
			top = c.Severity
		}
	}
	return top
}
