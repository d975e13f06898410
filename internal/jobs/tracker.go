// Package jobs tracks generation job lifecycle. Jobs are held in
// memory for fast lookups; every transition is also published to NATS
// when a connection is configured, for external observers.
//
// Events are published to subjects:
//   - jobs.{job_id}.started
//   - jobs.{job_id}.progress
//   - jobs.{job_id}.completed
//   - jobs.{job_id}.failed
package jobs

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one tracked generation job.
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker manages job lifecycle. The NATS connection is optional; with
// nil, tracking is in-memory only.
type Tracker struct {
	nc     *nats.Conn
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewTracker creates a tracker. nc may be nil.
func NewTracker(nc *nats.Conn, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{nc: nc, logger: logger, jobs: make(map[string]*Job)}
}

// Create registers a new pending job and returns a snapshot of it.
func (t *Tracker) Create(id, kind string) *Job {
	now := time.Now()
	job := &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.jobs[id] = job
	snapshot := *job
	t.mu.Unlock()

	return &snapshot
}

// Started marks the job running.
func (t *Tracker) Started(id string) {
	t.update(id, "started", func(job *Job) {
		job.Status = StatusRunning
	})
}

// Progress records the phase the job has reached.
func (t *Tracker) Progress(id, phase string) {
	t.update(id, "progress", func(job *Job) {
		job.Phase = phase
	})
}

// Complete marks the job finished with its result.
func (t *Tracker) Complete(id string, result any) {
	t.update(id, "completed", func(job *Job) {
		job.Status = StatusCompleted
		job.Result = result
	})
}

// Fail marks the job failed.
func (t *Tracker) Fail(id string, err error) {
	t.update(id, "failed", func(job *Job) {
		job.Status = StatusFailed
		job.Error = err.Error()
	})
}

// Get returns a snapshot of the job by id. The snapshot is safe to
// read and marshal while the job keeps transitioning.
func (t *Tracker) Get(id string) (*Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

func (t *Tracker) update(id, event string, mutate func(*Job)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	mutate(job)
	job.UpdatedAt = time.Now()
	snapshot := *job
	t.mu.Unlock()

	t.publish(snapshot, event)
}

// publish sends the job snapshot to NATS. Publish failures are logged,
// never propagated; event delivery is best effort.
func (t *Tracker) publish(job Job, event string) {
	if t.nc == nil {
		return
	}
	payload, err := json.Marshal(job)
	if err != nil {
		t.logger.Warn("failed to marshal job event", zap.String("job", job.ID), zap.Error(err))
		return
	}
	subject := "jobs." + job.ID + "." + event
	if err := t.nc.Publish(subject, payload); err != nil {
		t.logger.Warn("failed to publish job event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
