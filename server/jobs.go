package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	jobRunning   = "processing"
	jobCompleted = "completed"
	jobFailed    = "failed"

	// 已结束的任务保留一小时，最多保留 1000 个
	jobRetention    = time.Hour
	maxFinishedJobs = 1000
)

// ProcessJob 后台视频处理任务状态
type ProcessJob struct {
	ID         string     `json:"job_id"`
	VideoPath  string     `json:"video_path"`
	Status     string     `json:"status"`
	VideoID    int64      `json:"video_id,omitempty"`
	Highlights int        `json:"highlights"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type jobTracker struct {
	mu          sync.RWMutex
	jobs        map[string]*ProcessJob
	retention   time.Duration
	maxFinished int
}

func newJobTracker() *jobTracker {
	return &jobTracker{
		jobs:        make(map[string]*ProcessJob),
		retention:   jobRetention,
		maxFinished: maxFinishedJobs,
	}
}

func (t *jobTracker) start(path string) ProcessJob {
	job := &ProcessJob{
		ID:        uuid.NewString(),
		VideoPath: path,
		Status:    jobRunning,
		StartedAt: time.Now(),
	}
	t.mu.Lock()
	t.pruneLocked(job.StartedAt)
	t.jobs[job.ID] = job
	t.mu.Unlock()
	return *job
}

// pruneLocked 清理过期的已结束任务，处理中的任务不清理
func (t *jobTracker) pruneLocked(now time.Time) {
	var finished []*ProcessJob
	for id, job := range t.jobs {
		if job.FinishedAt == nil {
			continue
		}
		if now.Sub(*job.FinishedAt) > t.retention {
			delete(t.jobs, id)
			continue
		}
		finished = append(finished, job)
	}
	if len(finished) <= t.maxFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].FinishedAt.Before(*finished[j].FinishedAt) })
	for _, job := range finished[:len(finished)-t.maxFinished] {
		delete(t.jobs, job.ID)
	}
}

func (t *jobTracker) finish(id string, videoID int64, highlights int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.FinishedAt = &now
	job.VideoID = videoID
	job.Highlights = highlights
	if err != nil {
		job.Status = jobFailed
		job.Error = err.Error()
		return
	}
	job.Status = jobCompleted
}

func (t *jobTracker) get(id string) (ProcessJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return ProcessJob{}, false
	}
	return *job, true
}
