package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler processes one job. Returning an error counts the attempt as failed
// and triggers the job's retry policy.
type Handler func(ctx context.Context, job *Job) error

// queue holds the per-queue state: retained jobs, the waiting list and the
// dispatch loop feeding the bounded worker pool.
type queue struct {
	name string

	mu      sync.Mutex
	jobs    map[string]*Job
	waiting []*Job
	handler Handler
	started bool

	wake chan struct{}
	sem  chan struct{}
	wg   sync.WaitGroup
}

func newQueue(name string) *queue {
	return &queue{
		name: name,
		jobs: make(map[string]*Job),
		wake: make(chan struct{}, 1),
	}
}

func (q *queue) enqueue(job *Job) {
	q.mu.Lock()
	q.jobs[job.id] = job
	q.waiting = append(q.waiting, job)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next pops the first runnable waiting job. When none is runnable yet it
// returns the earliest time one becomes runnable (zero time: nothing waiting).
func (q *queue) next(now time.Time) (*Job, time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var earliest time.Time
	for i, job := range q.waiting {
		ready := job.readyAt()
		if ready.IsZero() || !ready.After(now) {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return job, time.Time{}
		}
		if earliest.IsZero() || ready.Before(earliest) {
			earliest = ready
		}
	}
	return nil, earliest
}

// dispatch runs until ctx is cancelled, feeding runnable jobs to workers
// while respecting the concurrency cap.
func (q *queue) dispatch(ctx context.Context, concurrency int, handler Handler) {
	q.sem = make(chan struct{}, concurrency)

	for {
		job, earliest := q.next(time.Now())
		if job == nil {
			if !q.waitForWork(ctx, earliest) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			// Put the job back so a snapshot still sees it as waiting
			q.mu.Lock()
			q.waiting = append([]*Job{job}, q.waiting...)
			q.mu.Unlock()
			return
		case q.sem <- struct{}{}:
		}

		job.setState(JobStateActive)
		q.wg.Add(1)
		go q.run(ctx, job, handler)
	}
}

// waitForWork blocks until a job is enqueued, a retry backoff elapses or the
// context is cancelled. Returns false on cancellation.
func (q *queue) waitForWork(ctx context.Context, earliest time.Time) bool {
	var timerC <-chan time.Time
	if !earliest.IsZero() {
		t := time.NewTimer(time.Until(earliest))
		defer t.Stop()
		timerC = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	case <-timerC:
		return true
	}
}

func (q *queue) run(ctx context.Context, job *Job, handler Handler) {
	defer q.wg.Done()
	defer func() { <-q.sem }()

	err := q.execute(ctx, job, handler)

	if err == nil {
		job.recordSuccess()
		q.finalize(job, job.retainOnComplete)
		return
	}

	if job.recordFailure(err, time.Now()) {
		log.Warn().Err(err).Str("queue", q.name).Str("job_id", job.id).
			Int("attempts", job.Snapshot().Attempts).Msg("job failed, scheduling retry")
		q.mu.Lock()
		q.waiting = append(q.waiting, job)
		q.mu.Unlock()
		q.signal()
		return
	}

	log.Error().Err(err).Str("queue", q.name).Str("job_id", job.id).
		Msg("job failed permanently, attempts exhausted")
	q.finalize(job, job.retainOnFail)
}

// execute invokes the handler, converting a panic into an attempt failure so
// one bad job cannot take the worker pool down.
func (q *queue) execute(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

// finalize drops the job from the retained set unless retention is requested
func (q *queue) finalize(job *Job, retain bool) {
	if !retain {
		q.mu.Lock()
		delete(q.jobs, job.id)
		q.mu.Unlock()
	}
	q.signal()
}

// list returns snapshots of retained jobs matching any of the given states
func (q *queue) list(states []JobState) []JobSnapshot {
	q.mu.Lock()
	jobs := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		jobs = append(jobs, job)
	}
	q.mu.Unlock()

	wanted := make(map[JobState]struct{}, len(states))
	for _, s := range states {
		wanted[s] = struct{}{}
	}

	snapshots := make([]JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snap := job.Snapshot()
		if _, ok := wanted[snap.State]; ok {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots
}
