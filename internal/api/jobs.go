package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"search-digest/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// SearchJob tracks one background pipeline run that the frontend polls.
type SearchJob struct {
	ID        string                 `json:"jobId"`
	Query     string                 `json:"query"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Result    *models.PipelineResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*SearchJob
}

func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*SearchJob)}
}

func (m *JobManager) CreateJob(query string) (string, *SearchJob) {
	job := &SearchJob{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*SearchJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *SearchJob) {
		job.Status = JobStatusProcessing
	})
}

func (m *JobManager) MarkComplete(id string, result *models.PipelineResult) {
	m.withJob(id, func(job *SearchJob) {
		job.Status = JobStatusComplete
		job.Result = result
	})
}

func (m *JobManager) MarkFailed(id string, msg string, result *models.PipelineResult) {
	m.withJob(id, func(job *SearchJob) {
		job.Status = JobStatusFailed
		job.Error = strings.TrimSpace(msg)
		job.Result = result
	})
}

func (m *JobManager) withJob(id string, fn func(job *SearchJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *SearchJob) clone() *SearchJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	if job.Result != nil {
		res := *job.Result
		copyJob.Result = &res
	}
	return &copyJob
}
