package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestEnqueueAndConsume_Completes(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var handled atomic.Int32
	err := m.Consume("test", 1, func(ctx context.Context, job *Job) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	job, err := m.Enqueue(context.Background(), "test", map[string]string{"k": "v"}, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID())

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateCompleted })
	assert.Equal(t, int32(1), handled.Load())

	snap := job.Snapshot()
	assert.Equal(t, float64(100), snap.Progress)
	assert.Equal(t, 1, snap.Attempts)
}

func TestRetry_ExhaustsAttemptsThenFails(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var calls atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, m.Consume("retrying", 1, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return boom
	}))

	job, err := m.Enqueue(context.Background(), "retrying", nil, Options{
		Attempts:     3,
		Backoff:      Backoff{Type: BackoffFixed, Delay: 10 * time.Millisecond},
		RetainOnFail: true,
	})
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateFailed })
	assert.Equal(t, int32(3), calls.Load())

	snap := job.Snapshot()
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, "boom", snap.LastError)
}

func TestRetry_SucceedsOnSecondAttempt(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var calls atomic.Int32
	require.NoError(t, m.Consume("flaky", 1, func(ctx context.Context, job *Job) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	job, err := m.Enqueue(context.Background(), "flaky", nil, Options{
		Attempts:         3,
		Backoff:          Backoff{Type: BackoffExponential, Delay: 5 * time.Millisecond},
		RetainOnComplete: true,
	})
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateCompleted })
	assert.Equal(t, int32(2), calls.Load())
}

func TestExponentialBackoff_DelayDoubling(t *testing.T) {
	b := Backoff{Type: BackoffExponential, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, b.delayFor(1))
	assert.Equal(t, 4*time.Second, b.delayFor(2))
	assert.Equal(t, 8*time.Second, b.delayFor(3))

	fixed := Backoff{Type: BackoffFixed, Delay: time.Second}
	assert.Equal(t, time.Second, fixed.delayFor(5))
}

func TestConcurrencyCap_IsEnforced(t *testing.T) {
	m := NewManager()
	defer m.Close()

	const maxActive = 3
	var running, peak int32
	var mu sync.Mutex
	release := make(chan struct{})

	require.NoError(t, m.Consume("capped", maxActive, func(ctx context.Context, job *Job) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))

	jobs := make([]*Job, 0, 10)
	for i := 0; i < 10; i++ {
		job, err := m.Enqueue(context.Background(), "capped", i, Options{})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == maxActive
	})
	close(release)

	waitFor(t, 2*time.Second, func() bool {
		for _, j := range jobs {
			if j.State() != JobStateCompleted {
				return false
			}
		}
		return true
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(maxActive), peak, "no more than %d jobs may run at once", maxActive)
}

func TestListJobs_FiltersByStateAndExposesProgress(t *testing.T) {
	m := NewManager()
	defer m.Close()

	inHandler := make(chan struct{})
	release := make(chan struct{})
	var signalOnce sync.Once

	require.NoError(t, m.Consume("listing", 1, func(ctx context.Context, job *Job) error {
		job.ReportProgress(42)
		signalOnce.Do(func() { close(inHandler) })
		<-release
		return nil
	}))

	active, err := m.Enqueue(context.Background(), "listing", "payload-a", Options{})
	require.NoError(t, err)
	waiting, err := m.Enqueue(context.Background(), "listing", "payload-b", Options{})
	require.NoError(t, err)

	<-inHandler

	actives := m.ListJobs("listing", JobStateActive)
	require.Len(t, actives, 1)
	assert.Equal(t, active.ID(), actives[0].ID)
	assert.Equal(t, float64(42), actives[0].Progress)
	assert.Equal(t, "payload-a", actives[0].Payload)

	waitings := m.ListJobs("listing", JobStateWaiting)
	require.Len(t, waitings, 1)
	assert.Equal(t, waiting.ID(), waitings[0].ID)

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		return len(m.ListJobs("listing", JobStateCompleted)) == 2
	})

	// No states means all states
	assert.Len(t, m.ListJobs("listing"), 2)
	assert.Empty(t, m.ListJobs("no-such-queue"))
}

func TestRetention_DropsUnretainedJobs(t *testing.T) {
	m := NewManager()
	defer m.Close()

	require.NoError(t, m.Consume("drop", 1, func(ctx context.Context, job *Job) error {
		return nil
	}))

	job, err := m.Enqueue(context.Background(), "drop", nil, Options{
		Attempts:         1,
		RetainOnComplete: false,
		RetainOnFail:     false,
	})
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateCompleted })
	waitFor(t, time.Second, func() bool { return len(m.ListJobs("drop")) == 0 })
}

func TestHandlerPanic_CountsAsFailure(t *testing.T) {
	m := NewManager()
	defer m.Close()

	require.NoError(t, m.Consume("panicky", 1, func(ctx context.Context, job *Job) error {
		panic("unexpected")
	}))

	job, err := m.Enqueue(context.Background(), "panicky", nil, Options{Attempts: 1, RetainOnFail: true})
	require.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateFailed })
	assert.Contains(t, job.Snapshot().LastError, "panicked")
}

func TestConsume_Validation(t *testing.T) {
	m := NewManager()
	defer m.Close()

	assert.ErrorIs(t, m.Consume("q", 1, nil), ErrNilHandler)
	assert.ErrorIs(t, m.Consume("q", 0, func(ctx context.Context, job *Job) error { return nil }), ErrInvalidConcurrency)

	ok := func(ctx context.Context, job *Job) error { return nil }
	require.NoError(t, m.Consume("q", 1, ok))
	assert.ErrorIs(t, m.Consume("q", 1, ok), ErrAlreadyConsuming)
}

func TestClose_RejectsFurtherEnqueues(t *testing.T) {
	m := NewManager()
	m.Close()

	_, err := m.Enqueue(context.Background(), "q", nil, Options{})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestEnqueueBeforeConsume_RunsOnceConsumerRegisters(t *testing.T) {
	m := NewManager()
	defer m.Close()

	job, err := m.Enqueue(context.Background(), "late", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, JobStateWaiting, job.State())

	require.NoError(t, m.Consume("late", 1, func(ctx context.Context, job *Job) error {
		return nil
	}))

	waitFor(t, 2*time.Second, func() bool { return job.State() == JobStateCompleted })
}
