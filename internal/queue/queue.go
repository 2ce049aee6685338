// Package queue runs independent generation jobs under a bounded-concurrency
// gate. Each job drives its own pipeline instance; instances never share
// state, so ordering across jobs is unspecified and one job's failure has no
// effect on its siblings.
package queue

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgen/internal/models"
)

// Status is the lifecycle state of a queued job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of generation work. Result is populated when the job
// finishes; done is closed at the same time.
type Job struct {
	ID          string                 `json:"id"`
	Trigger     string                 `json:"trigger"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Duration    time.Duration          `json:"duration,omitempty"`
	Result      *models.PipelineResult `json:"result,omitempty"`

	done chan struct{}
}

// Runner executes one job's pipeline. It never returns an error; the result
// carries success or failure.
type Runner interface {
	Run(ctx context.Context, job *Job) *models.PipelineResult
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job *Job) *models.PipelineResult

func (f RunnerFunc) Run(ctx context.Context, job *Job) *models.PipelineResult { return f(ctx, job) }

// Queue is a bounded worker pool over generation jobs.
type Queue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	runner      Runner
}

// New creates a queue with the given capacity and worker count.
func New(maxSize, workers int, runner Runner) *Queue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if runner == nil {
		panic("queue.New: runner is required")
	}

	return &Queue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		history:     make([]*Job, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		runner:      runner,
	}
}

// Start begins processing jobs with the configured number of workers.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting generation queue", "workers", q.workers, "max_size", q.maxSize)
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop shuts the queue down after the workers finish their current jobs.
// In-flight pipelines are not aborted; each runs to its own natural end.
func (q *Queue) Stop() {
	close(q.stopChan)
	q.wg.Wait()
}

// Length returns the number of jobs waiting to start.
func (q *Queue) Length() int { return len(q.jobs) }

// Enqueue adds a job. A full queue rejects rather than blocks.
func (q *Queue) Enqueue(job *Job) error {
	if job == nil {
		return stdErrors.New("job cannot be nil")
	}
	if job.ID == "" {
		return stdErrors.New("job ID is required")
	}

	job.Status = StatusQueued
	job.CreatedAt = time.Now()
	job.done = make(chan struct{})

	select {
	case q.jobs <- job:
		return nil
	default:
		return stdErrors.New("generation queue is full")
	}
}

// Wait blocks until the job finishes or ctx expires. A context timeout only
// stops the waiting: the job keeps running to completion and its result
// remains observable through Snapshot.
func (q *Queue) Wait(ctx context.Context, job *Job) (*models.PipelineResult, error) {
	select {
	case <-job.done:
		q.mu.RLock()
		defer q.mu.RUnlock()
		return job.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns a copy of a job by id, checking active jobs first and then
// the bounded history.
func (q *Queue) Snapshot(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if j, ok := q.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range q.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

// ActiveJobs returns a copy of the currently running jobs.
func (q *Queue) ActiveJobs() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*Job, 0, len(q.active))
	for _, job := range q.active {
		cp := *job
		active = append(active, &cp)
	}
	return active
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job != nil {
				q.process(ctx, job, id)
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job, workerID int) {
	started := time.Now()
	q.mu.Lock()
	job.StartedAt = &started
	job.Status = StatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Job started", "job_id", job.ID, "trigger", job.Trigger, "worker", workerID)

	result := q.runner.Run(ctx, job)

	completed := time.Now()
	q.mu.Lock()
	job.CompletedAt = &completed
	job.Duration = completed.Sub(started)
	job.Result = result
	if result != nil && result.Success {
		job.Status = StatusCompleted
	} else {
		job.Status = StatusFailed
	}
	delete(q.active, job.ID)
	q.addToHistory(job)
	q.mu.Unlock()
	close(job.done)

	slog.Info("Job finished",
		"job_id", job.ID,
		"status", string(job.Status),
		"duration", job.Duration)
}

func (q *Queue) addToHistory(job *Job) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}
