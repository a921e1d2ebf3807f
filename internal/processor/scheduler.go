package processor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

const defaultQueueSize = 1024

// WorkFunc processes a single item identifier and reports its outcome
type WorkFunc func(ctx context.Context, id int64) domain.WorkOutcome

// Handle resolves once the unit it was returned for has produced an outcome
type Handle struct {
	id      int64
	done    chan struct{}
	outcome domain.WorkOutcome
}

func newHandle(id int64) *Handle {
	return &Handle{
		id:   id,
		done: make(chan struct{}),
	}
}

// resolvedHandle returns a handle that already carries its outcome
func resolvedHandle(outcome domain.WorkOutcome) *Handle {
	h := newHandle(outcome.ID)
	h.resolve(outcome)
	return h
}

// ID returns the identifier the unit was submitted for
func (h *Handle) ID() int64 {
	return h.id
}

// Done is closed when the outcome is available
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the outcome if the handle has resolved
func (h *Handle) Outcome() (domain.WorkOutcome, bool) {
	select {
	case <-h.done:
		return h.outcome, true
	default:
		return domain.WorkOutcome{}, false
	}
}

// resolve must be called exactly once per handle
func (h *Handle) resolve(outcome domain.WorkOutcome) {
	h.outcome = outcome
	close(h.done)
}

type task struct {
	ctx    context.Context
	handle *Handle
	fn     WorkFunc
}

// Scheduler runs work units on a fixed pool of workers shared by every batch run.
// At most `workers` units execute at the same time; the rest wait in the queue.
type Scheduler struct {
	workers int
	queue   chan *task
	wg      sync.WaitGroup
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// stopped is guarded by mu so that no task is enqueued after the final drain
	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewScheduler creates a scheduler with a fixed worker pool. Call Start before submitting work.
func NewScheduler(workers int, queueSize int, logger *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		workers: workers,
		queue:   make(chan *task, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Workers returns the size of the worker pool
func (s *Scheduler) Workers() int {
	return s.workers
}

// Start launches the worker pool
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}

		s.logger.Info("scheduler started",
			zap.Int("workers", s.workers),
			zap.Int("queue_size", cap(s.queue)),
		)
	})
}

// Stop shuts the pool down. Units already running finish; units still queued
// resolve with domain.ErrSchedulerStopped so that no barrier waits forever on them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.wg.Wait()

		dropped := s.drain()

		s.logger.Info("scheduler stopped",
			zap.Int("dropped_units", dropped),
		)
	})
}

// Submit enqueues a unit for the identifier. It blocks only while the queue is full.
func (s *Scheduler) Submit(ctx context.Context, id int64, fn WorkFunc) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return nil, domain.ErrSchedulerStopped
	}

	t := &task{
		ctx:    ctx,
		handle: newHandle(id),
		fn:     fn,
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, domain.ErrSchedulerStopped
	case s.queue <- t:
		return t.handle, nil
	}
}

// AwaitAll blocks until every handle has resolved and returns the outcomes in
// submission order. If ctx ends first, handles that have not resolved are
// reported as failures wrapping domain.ErrOutcomePending.
func (s *Scheduler) AwaitAll(ctx context.Context, handles []*Handle) []domain.WorkOutcome {
	outcomes := make([]domain.WorkOutcome, len(handles))

	for i, h := range handles {
		if outcome, ok := h.Outcome(); ok {
			outcomes[i] = outcome
			continue
		}

		select {
		case <-h.done:
			outcomes[i] = h.outcome
		case <-ctx.Done():
			outcomes[i] = domain.Failure(h.id, fmt.Errorf("%w: %v", domain.ErrOutcomePending, ctx.Err()))
		}
	}

	return outcomes
}

// worker executes queued units until the scheduler is stopped
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("worker stopping", zap.Int("worker_id", id))
			return
		case t := <-s.queue:
			s.run(id, t)
		}
	}
}

// run executes one unit; a panic becomes a failure outcome for that unit only
func (s *Scheduler) run(workerID int, t *task) {
	var outcome domain.WorkOutcome

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("work unit panicked",
				zap.Int("worker_id", workerID),
				zap.Int64("item_id", t.handle.id),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			outcome = domain.Failure(t.handle.id, fmt.Errorf("work unit panicked: %v", r))
		}
		t.handle.resolve(outcome)
	}()

	outcome = t.fn(t.ctx, t.handle.id)
}

// drain resolves every task left in the queue and returns how many there were
func (s *Scheduler) drain() int {
	dropped := 0
	for {
		select {
		case t := <-s.queue:
			t.handle.resolve(domain.Failure(t.handle.id, domain.ErrSchedulerStopped))
			dropped++
		default:
			return dropped
		}
	}
}
