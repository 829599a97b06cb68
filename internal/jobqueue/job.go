package jobqueue

import (
	"sync"
	"time"
)

// Job is one unit of work. Producers receive a *Job back from Enqueue as an
// opaque handle; handlers receive the same *Job to read the payload and
// report progress.
type Job struct {
	id      string
	queue   string
	payload any

	mu          sync.Mutex
	state       JobState
	progress    float64
	attempts    int
	maxAttempts int
	backoff     Backoff
	nextRetryAt time.Time
	lastErr     error
	createdAt   time.Time

	retainOnComplete bool
	retainOnFail     bool
}

// ID returns the job's opaque unique identifier
func (j *Job) ID() string { return j.id }

// Queue returns the name of the queue the job belongs to
func (j *Job) Queue() string { return j.queue }

// Payload returns the enqueue payload
func (j *Job) Payload() any { return j.payload }

// ReportProgress records fractional progress (0-100) for the running job.
// Values are clamped; progress is observable through ListJobs snapshots.
func (j *Job) ReportProgress(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.mu.Lock()
	j.progress = pct
	j.mu.Unlock()
}

// State returns the job's current state
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Snapshot returns a point-in-time copy of the job's observable fields
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := JobSnapshot{
		ID:          j.id,
		Queue:       j.queue,
		State:       j.state,
		Progress:    j.progress,
		Payload:     j.payload,
		Attempts:    j.attempts,
		MaxAttempts: j.maxAttempts,
		CreatedAt:   j.createdAt,
		NextRetryAt: j.nextRetryAt,
	}
	if j.lastErr != nil {
		snap.LastError = j.lastErr.Error()
	}
	return snap
}

// JobSnapshot is a point-in-time copy of a job's observable state
type JobSnapshot struct {
	ID          string    `json:"id"`
	Queue       string    `json:"queue"`
	State       JobState  `json:"state"`
	Progress    float64   `json:"progress"`
	Payload     any       `json:"payload"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	NextRetryAt time.Time `json:"next_retry_at,omitzero"`
}

func (j *Job) setState(s JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// recordFailure bumps the attempt count and either schedules the next retry
// or marks the job permanently failed. Returns true when the job will retry.
func (j *Job) recordFailure(err error, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.attempts++
	j.lastErr = err

	if j.attempts < j.maxAttempts {
		j.state = JobStateWaiting
		j.nextRetryAt = now.Add(j.backoff.delayFor(j.attempts))
		return true
	}

	j.state = JobStateFailed
	return false
}

func (j *Job) recordSuccess() {
	j.mu.Lock()
	j.attempts++
	j.state = JobStateCompleted
	j.progress = 100
	j.mu.Unlock()
}

// readyAt returns when the job becomes runnable (zero time means immediately)
func (j *Job) readyAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextRetryAt
}
