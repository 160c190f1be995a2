package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/scheduling"
	"fieldops/internal/versioned"
)

// MemoryJobsRepo 工单内存实现
// 写操作持有互斥锁执行整个"检测+写入"；回调拿到的视图直接读 map，不能再调用导出方法
type MemoryJobsRepo struct {
	mu   sync.Mutex
	jobs map[string]map[string]*domain.Job // tenantID -> jobID -> Job
}

// NewMemoryJobsRepo 创建内存工单仓库
func NewMemoryJobsRepo() *MemoryJobsRepo {
	return &MemoryJobsRepo{jobs: map[string]map[string]*domain.Job{}}
}

var _ JobsRepository = (*MemoryJobsRepo)(nil)

func (r *MemoryJobsRepo) GetJob(_ context.Context, tenantID, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[tenantID][jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return j.Clone(), nil
}

func (r *MemoryJobsRepo) ListJobsForTechnician(_ context.Context, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forTechnicianLocked(tenantID, technicianID, date, excludeIDs), nil
}

func (r *MemoryJobsRepo) ListJobsAtLocation(_ context.Context, tenantID, location, date string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atLocationLocked(tenantID, location, date), nil
}

func (r *MemoryJobsRepo) Insert(ctx context.Context, tenantID string, job *domain.Job, check versioned.Mutator[*domain.Job, scheduling.JobReader]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if check != nil {
		if err := check(ctx, job, lockedJobView{r}); err != nil {
			return err
		}
	}
	if _, exists := r.jobs[tenantID][job.JobID]; exists {
		return fmt.Errorf("job %s already exists", job.JobID)
	}

	now := time.Now().UTC()
	job.TenantID = tenantID
	job.CreatedAt = now
	job.UpdatedAt = now
	if r.jobs[tenantID] == nil {
		r.jobs[tenantID] = map[string]*domain.Job{}
	}
	r.jobs[tenantID][job.JobID] = job.Clone()
	return nil
}

func (r *MemoryJobsRepo) CompareAndSwap(ctx context.Context, tenantID, id string, expectedVersion int, mutate versioned.Mutator[*domain.Job, scheduling.JobReader]) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[tenantID][id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}

	current := stored.Clone()
	if err := versioned.Apply[*domain.Job, scheduling.JobReader](ctx, "job", current, expectedVersion, lockedJobView{r}, mutate); err != nil {
		return nil, err
	}

	current.UpdatedAt = time.Now().UTC()
	r.jobs[tenantID][id] = current.Clone()
	return current, nil
}

func (r *MemoryJobsRepo) forTechnicianLocked(tenantID, technicianID, date string, excludeIDs []string) []domain.Job {
	skip := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}
	out := []domain.Job{}
	for _, j := range r.jobs[tenantID] {
		if j.TechnicianID != technicianID || j.ScheduledDate != date || skip[j.JobID] || !j.Status.Blocks() {
			continue
		}
		out = append(out, *j)
	}
	sortJobs(out)
	return out
}

func (r *MemoryJobsRepo) atLocationLocked(tenantID, location, date string) []domain.Job {
	out := []domain.Job{}
	for _, j := range r.jobs[tenantID] {
		if j.Location != location || j.ScheduledDate != date || !j.Status.Blocks() {
			continue
		}
		out = append(out, *j)
	}
	sortJobs(out)
	return out
}

func sortJobs(jobs []domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTime != jobs[j].StartTime {
			return jobs[i].StartTime < jobs[j].StartTime
		}
		return jobs[i].JobID < jobs[j].JobID
	})
}

// lockedJobView 在 r.mu 已持有时使用的 JobReader
type lockedJobView struct {
	r *MemoryJobsRepo
}

func (v lockedJobView) ListJobsForTechnician(_ context.Context, tenantID, technicianID, date string, excludeIDs []string) ([]domain.Job, error) {
	return v.r.forTechnicianLocked(tenantID, technicianID, date, excludeIDs), nil
}

func (v lockedJobView) ListJobsAtLocation(_ context.Context, tenantID, location, date string) ([]domain.Job, error) {
	return v.r.atLocationLocked(tenantID, location, date), nil
}
