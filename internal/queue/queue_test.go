package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.home.luguber.info/inful/docgen/internal/models"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed atomic.Int32
	q := New(10, 2, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		processed.Add(1)
		return &models.PipelineResult{RunID: job.ID, Success: true}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	jobs := []*Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	for _, j := range jobs {
		if err := q.Enqueue(j); err != nil {
			t.Fatalf("Enqueue(%s): %v", j.ID, err)
		}
	}
	for _, j := range jobs {
		res, err := q.Wait(context.Background(), j)
		if err != nil {
			t.Fatalf("Wait(%s): %v", j.ID, err)
		}
		if !res.Success {
			t.Errorf("%s: expected success", j.ID)
		}
	}
	if processed.Load() != 3 {
		t.Errorf("processed = %d", processed.Load())
	}
	q.Stop()
}

func TestEnqueueValidation(t *testing.T) {
	q := New(1, 1, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		return &models.PipelineResult{Success: true}
	}))

	if err := q.Enqueue(nil); err == nil {
		t.Error("nil job accepted")
	}
	if err := q.Enqueue(&Job{}); err == nil {
		t.Error("job without ID accepted")
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	// No workers started: the buffer fills and stays full.
	q := New(1, 1, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		return &models.PipelineResult{Success: true}
	}))

	if err := q.Enqueue(&Job{ID: "first"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(&Job{ID: "second"}); err == nil {
		t.Fatal("expected rejection when full")
	}
}

func TestWaitTimeoutDoesNotAbortJob(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	q := New(10, 1, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		<-release
		finished.Store(true)
		return &models.PipelineResult{RunID: job.ID, Success: true}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	job := &Job{ID: "slow"}
	if err := q.Enqueue(job); err != nil {
		t.Fatal(err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	if _, err := q.Wait(waitCtx, job); err == nil {
		t.Fatal("expected wait timeout")
	}
	if finished.Load() {
		t.Fatal("job finished before release; test invalid")
	}

	// The job keeps running to its natural end after the waiter gave up.
	close(release)
	if _, err := q.Wait(context.Background(), job); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if !finished.Load() {
		t.Error("job did not complete")
	}

	snap, ok := q.Snapshot("slow")
	if !ok {
		t.Fatal("job missing from history")
	}
	if snap.Status != StatusCompleted {
		t.Errorf("status = %s", snap.Status)
	}
	q.Stop()
}

func TestFailedRunMarksJobFailed(t *testing.T) {
	q := New(10, 1, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		return &models.PipelineResult{RunID: job.ID, Success: false, Errors: []string{"boom"}}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	job := &Job{ID: "bad"}
	if err := q.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Wait(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	snap, ok := q.Snapshot("bad")
	if !ok {
		t.Fatal("job missing")
	}
	if snap.Status != StatusFailed {
		t.Errorf("status = %s", snap.Status)
	}
	q.Stop()
}

func TestConcurrentJobsAreIndependent(t *testing.T) {
	var mu sync.Mutex
	outcomes := map[string]bool{}

	q := New(10, 4, RunnerFunc(func(ctx context.Context, job *Job) *models.PipelineResult {
		ok := job.Trigger != "doomed"
		mu.Lock()
		outcomes[job.ID] = ok
		mu.Unlock()
		return &models.PipelineResult{RunID: job.ID, Success: ok}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	jobs := []*Job{
		{ID: "1", Trigger: "watch"},
		{ID: "2", Trigger: "doomed"},
		{ID: "3", Trigger: "scheduled"},
	}
	for _, j := range jobs {
		if err := q.Enqueue(j); err != nil {
			t.Fatal(err)
		}
	}
	for _, j := range jobs {
		if _, err := q.Wait(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}

	// One job's failure leaves the others untouched.
	s1, _ := q.Snapshot("1")
	s2, _ := q.Snapshot("2")
	s3, _ := q.Snapshot("3")
	if s1.Status != StatusCompleted || s3.Status != StatusCompleted {
		t.Errorf("sibling statuses = %s, %s", s1.Status, s3.Status)
	}
	if s2.Status != StatusFailed {
		t.Errorf("doomed status = %s", s2.Status)
	}
	q.Stop()
}
