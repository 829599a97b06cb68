package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue names used by the pipeline
const (
	QueueCategorization = "categorization"
	QueueTraining       = "training"
)

// Manager owns the named queues. Queues are created lazily on first use, so
// producers and consumers can come up in any order.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	qmu    sync.RWMutex
	queues map[string]*queue
	closed bool
}

// NewManager creates a job queue manager
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[string]*queue),
	}
}

func (m *Manager) getOrCreate(name string) (*queue, error) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	q, ok := m.queues[name]
	if !ok {
		q = newQueue(name)
		m.queues[name] = q
	}
	return q, nil
}

// Enqueue adds a job to the named queue and returns its handle. The zero
// Options value is replaced with DefaultOptions; Attempts below 1 is raised
// to 1.
func (m *Manager) Enqueue(ctx context.Context, queueName string, payload any, opts Options) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	q, err := m.getOrCreate(queueName)
	if err != nil {
		return nil, err
	}

	job := &Job{
		id:               uuid.New().String(),
		queue:            queueName,
		payload:          payload,
		state:            JobStateWaiting,
		maxAttempts:      opts.Attempts,
		backoff:          opts.Backoff,
		createdAt:        time.Now(),
		retainOnComplete: opts.RetainOnComplete,
		retainOnFail:     opts.RetainOnFail,
	}

	q.enqueue(job)
	return job, nil
}

// Consume registers the handler for a queue and starts its dispatch loop.
// At most `concurrency` handlers run concurrently for this queue, across all
// jobs on it. A queue accepts exactly one consumer registration.
func (m *Manager) Consume(queueName string, concurrency int, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if concurrency < 1 {
		return ErrInvalidConcurrency
	}

	q, err := m.getOrCreate(queueName)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyConsuming
	}
	q.started = true
	q.handler = handler
	q.mu.Unlock()

	go q.dispatch(m.ctx, concurrency, handler)
	return nil
}

// ListJobs returns a snapshot of retained jobs in the named queue matching
// any of the given states. No states means all states. An unknown queue
// yields an empty snapshot, not an error: a queue nobody has touched yet has
// no jobs by definition.
func (m *Manager) ListJobs(queueName string, states ...JobState) []JobSnapshot {
	m.qmu.RLock()
	q, ok := m.queues[queueName]
	m.qmu.RUnlock()
	if !ok {
		return nil
	}
	if len(states) == 0 {
		states = AllStates
	}
	return q.list(states)
}

// Close stops all dispatch loops and waits for in-flight handlers to return
func (m *Manager) Close() {
	m.qmu.Lock()
	if m.closed {
		m.qmu.Unlock()
		return
	}
	m.closed = true
	queues := make([]*queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.qmu.Unlock()

	m.cancel()
	for _, q := range queues {
		q.wg.Wait()
	}
}
