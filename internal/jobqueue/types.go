// Package jobqueue implements the in-process task queue behind the
// categorization and training pipeline: named queues, per-job retry policies
// with backoff, a concurrency cap per queue, fractional job progress and
// point-in-time state introspection.
package jobqueue

import (
	"errors"
	"time"
)

// Common errors returned by queue operations
var (
	ErrManagerClosed     = errors.New("job queue manager has been closed")
	ErrNilHandler        = errors.New("cannot consume with a nil handler")
	ErrAlreadyConsuming  = errors.New("queue already has a registered consumer")
	ErrUnknownQueue      = errors.New("unknown queue")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

// JobState represents the current state of a job
type JobState string

const (
	// JobStateWaiting means the job is queued (or waiting out a retry backoff)
	JobStateWaiting JobState = "waiting"
	// JobStateActive means a handler is currently executing the job
	JobStateActive JobState = "active"
	// JobStateCompleted means the handler returned successfully
	JobStateCompleted JobState = "completed"
	// JobStateFailed means all attempts are exhausted; the job will not run again
	JobStateFailed JobState = "failed"
)

// AllStates lists every job state, in lifecycle order
var AllStates = []JobState{JobStateWaiting, JobStateActive, JobStateCompleted, JobStateFailed}

// BackoffType selects how the retry delay grows between attempts
type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// Backoff configures the delay between retry attempts
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

// Options configures a single enqueued job
type Options struct {
	// Attempts is the total number of attempts allowed (default 1: no retry)
	Attempts int
	// Backoff applies between failed attempts
	Backoff Backoff
	// RetainOnComplete keeps the job inspectable after success (default true
	// via DefaultOptions)
	RetainOnComplete bool
	// RetainOnFail keeps the job inspectable after permanent failure
	RetainOnFail bool
}

// DefaultOptions returns the options applied when the caller passes the zero
// value: a single attempt, retained in both terminal states
func DefaultOptions() Options {
	return Options{
		Attempts:         1,
		RetainOnComplete: true,
		RetainOnFail:     true,
	}
}

// delayFor computes the backoff delay before the given retry (attemptsMade
// counts the attempts already executed, so it is >= 1 here)
func (b Backoff) delayFor(attemptsMade int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	delay := b.Delay
	for i := 1; i < attemptsMade; i++ {
		delay *= 2
	}
	return delay
}
