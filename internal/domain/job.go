package domain

import (
	"time"

	"fieldops/internal/interval"
)

// Job 工单（对应 jobs 表）
// 同一技师同一天可以有多个工单；时间段互不重叠由冲突策略保证，而非存储约束
type Job struct {
	JobID    string `db:"job_id" json:"job_id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Title    string `db:"title" json:"title"`
	// TechnicianID 空字符串表示未分配
	TechnicianID  string    `db:"technician_id" json:"technician_id,omitempty"`
	ScheduledDate string    `db:"scheduled_date" json:"scheduled_date"` // YYYY-MM-DD
	StartTime     TimeOfDay `db:"start_time" json:"start_time"`
	EndTime       TimeOfDay `db:"end_time" json:"end_time"`
	Location      string    `db:"location" json:"location,omitempty"` // 可选
	Status        JobStatus `db:"status" json:"status"`
	Version       int       `db:"version" json:"version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Span returns the job's [start, end) window in minutes.
func (j *Job) Span() interval.Span {
	return interval.Span{Start: int(j.StartTime), End: int(j.EndTime)}
}

// IsAssigned 是否已分配技师
func (j *Job) IsAssigned() bool { return j.TechnicianID != "" }

func (j *Job) RecordID() string { return j.JobID }
func (j *Job) GetVersion() int  { return j.Version }
func (j *Job) SetVersion(v int) { j.Version = v }

// Clone returns a copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// JobStatus 工单状态
type JobStatus string

const (
	JobStatusUnscheduled JobStatus = "unscheduled"
	JobStatusScheduled   JobStatus = "scheduled"
	JobStatusDispatched  JobStatus = "dispatched"
	JobStatusInProgress  JobStatus = "in_progress"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusUnscheduled, JobStatusScheduled, JobStatusDispatched,
		JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// IsActive 技师正在执行（已派工或进行中）
func (s JobStatus) IsActive() bool {
	return s == JobStatusDispatched || s == JobStatusInProgress
}

// Blocks reports whether a job in this status occupies the technician's time.
// Completed and cancelled jobs never take part in conflict detection.
func (s JobStatus) Blocks() bool {
	return s != JobStatusCompleted && s != JobStatusCancelled
}

// BlockingStatuses 参与冲突检测的状态列表（用于 SQL 过滤）
func BlockingStatuses() []string {
	return []string{
		string(JobStatusUnscheduled),
		string(JobStatusScheduled),
		string(JobStatusDispatched),
		string(JobStatusInProgress),
	}
}
