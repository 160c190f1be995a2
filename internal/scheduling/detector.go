// Package scheduling detects technician scheduling conflicts and turns them into a
// block/allow decision.
package scheduling

import (
	"context"
	"fmt"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/interval"
)

// JobReader 冲突检测所需的只读查询（均按租户隔离）
// At commit time the reader is the transaction-bound view of the write, so detection
// sees the same snapshot the write will be applied to.
type JobReader interface {
	// ListJobsForTechnician returns the technician's jobs on date, minus excludeIDs.
	ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error)
	// ListJobsAtLocation returns every job at location on date.
	ListJobsAtLocation(ctx context.Context, tenantID, location, date string) ([]domain.Job, error)
}

// Candidate 待检查的分配
type Candidate struct {
	TenantID      string
	TechnicianID  string
	Date          string
	StartTime     domain.TimeOfDay
	EndTime       domain.TimeOfDay
	Location      string
	ExcludeJobIDs []string
}

// Span returns the candidate window.
func (c Candidate) Span() interval.Span {
	return interval.Span{Start: int(c.StartTime), End: int(c.EndTime)}
}

// Validate 校验候选分配的必填字段和时间段
func (c *Candidate) Validate() error {
	if c.TenantID == "" {
		return domain.NewValidationError("tenant_id", "is required")
	}
	if c.TechnicianID == "" {
		return domain.NewValidationError("technician_id", "is required")
	}
	date, err := domain.NormalizeDate(c.Date)
	if err != nil {
		return domain.NewValidationError("date", err.Error())
	}
	c.Date = date
	if c.EndTime <= c.StartTime {
		return domain.NewValidationError("end_time", "must be after start_time")
	}
	c.Location = strings.TrimSpace(c.Location)
	return nil
}

// CandidateForJob builds the candidate for assigning job to technicianID.
// The job itself is always excluded so it never collides with its own booking.
func CandidateForJob(job *domain.Job, technicianID string) Candidate {
	return Candidate{
		TenantID:      job.TenantID,
		TechnicianID:  technicianID,
		Date:          job.ScheduledDate,
		StartTime:     job.StartTime,
		EndTime:       job.EndTime,
		Location:      job.Location,
		ExcludeJobIDs: []string{job.JobID},
	}
}

// Detector 时间冲突检测器（无状态）
type Detector struct{}

// NewDetector creates a detector.
func NewDetector() *Detector { return &Detector{} }

// Detect reports every existing job that collides with the candidate. The returned
// conflicts are unclassified; severity is assigned by the Resolver.
// An empty result means no conflicts.
func (d *Detector) Detect(ctx context.Context, reader JobReader, c Candidate) ([]domain.Conflict, error) {
	span := c.Span()
	excluded := make(map[string]struct{}, len(c.ExcludeJobIDs))
	for _, id := range c.ExcludeJobIDs {
		excluded[id] = struct{}{}
	}

	jobs, err := reader.ListJobsForTechnician(ctx, c.TenantID, c.TechnicianID, c.Date, c.ExcludeJobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load technician jobs: %w", err)
	}

	var conflicts []domain.Conflict
	for _, job := range jobs {
		if _, skip := excluded[job.JobID]; skip || !job.Status.Blocks() {
			continue
		}
		overlap := interval.OverlapLength(span, job.Span())
		if overlap == 0 {
			continue
		}
		conflictType := domain.ConflictTimeOverlap
		desc := fmt.Sprintf("Technician already has job %q from %s to %s", job.Title, job.StartTime, job.EndTime)
		if job.Status.IsActive() {
			conflictType = domain.ConflictTechnicianDoubleBooking
			desc = fmt.Sprintf("Technician is %s on job %q from %s to %s",
				strings.ReplaceAll(string(job.Status), "_", " "), job.Title, job.StartTime, job.EndTime)
		}
		conflicts = append(conflicts, domain.Conflict{
			Type:             conflictType,
			Description:      desc,
			ConflictingJobs:  []domain.Job{job},
			OverlapMinutes:   overlap,
			CandidateMinutes: span.Len(),
		})
	}

	if c.Location == "" {
		return conflicts, nil
	}

	atLocation, err := reader.ListJobsAtLocation(ctx, c.TenantID, c.Location, c.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs at location: %w", err)
	}
	for _, job := range atLocation {
		if _, skip := excluded[job.JobID]; skip {
			continue
		}
		// 同一技师的工单已在上面处理；未分配的工单不构成冲突
		if job.TechnicianID == "" || job.TechnicianID == c.TechnicianID || !job.Status.Blocks() {
			continue
		}
		overlap := interval.OverlapLength(span, job.Span())
		if overlap == 0 {
			continue
		}
		conflicts = append(conflicts, domain.Conflict{
			Type: domain.ConflictLocation,
			Description: fmt.Sprintf("Another technician is booked at %s for job %q from %s to %s",
				c.Location, job.Title, job.StartTime, job.EndTime),
			ConflictingJobs:  []domain.Job{job},
			OverlapMinutes:   overlap,
			CandidateMinutes: span.Len(),
		})
	}

	return conflicts, nil
}
