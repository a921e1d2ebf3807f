package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

// RunState is the lifecycle state of one batch run
type RunState int

const (
	RunNotStarted RunState = iota
	RunListing
	RunDispatching
	RunAwaitingCompletion
	RunAggregated
)

func (s RunState) String() string {
	switch s {
	case RunNotStarted:
		return "not_started"
	case RunListing:
		return "listing"
	case RunDispatching:
		return "dispatching"
	case RunAwaitingCompletion:
		return "awaiting_completion"
	case RunAggregated:
		return "aggregated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// batchRun holds the state of a single ProcessAll call. Runs never share it.
type batchRun struct {
	id      string
	state   RunState
	started time.Time
	logger  *zap.Logger
}

func (r *batchRun) transition(to RunState) {
	r.logger.Debug("batch run state changed",
		zap.String("run_id", r.id),
		zap.Stringer("from", r.state),
		zap.Stringer("to", to),
	)
	r.state = to
}

// ItemBatchProcessor marks every stored item as processed using the shared scheduler
type ItemBatchProcessor struct {
	repo       domain.ItemRepository
	scheduler  *Scheduler
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewBatchProcessor creates a batch processor. A zero runTimeout waits for every unit without limit.
func NewBatchProcessor(repo domain.ItemRepository, scheduler *Scheduler, runTimeout time.Duration, logger *zap.Logger) *ItemBatchProcessor {
	if runTimeout < 0 {
		runTimeout = 0
	}
	return &ItemBatchProcessor{
		repo:       repo,
		scheduler:  scheduler,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// ProcessAll processes all stored items concurrently (implements domain.BatchProcessor).
// Per-item failures are reported in the result; only a failed listing is returned as an error.
// The run ignores cancellation of ctx: the configured run timeout is its only bound.
func (p *ItemBatchProcessor) ProcessAll(ctx context.Context) (*domain.BatchResult, error) {
	run := &batchRun{
		id:      uuid.New().String(),
		state:   RunNotStarted,
		started: time.Now(),
		logger:  p.logger,
	}

	ctx = context.WithoutCancel(ctx)
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	run.transition(RunListing)
	ids, err := p.repo.ListIDs(ctx)
	if err != nil {
		p.logger.Error("batch run failed to list items",
			zap.String("run_id", run.id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}

	run.transition(RunDispatching)
	handles := make([]*Handle, 0, len(ids))
	for _, id := range ids {
		h, err := p.scheduler.Submit(ctx, id, p.processItem)
		if err != nil {
			// The unit never ran, but the identifier still gets its outcome.
			h = resolvedHandle(domain.Failure(id, err))
		}
		handles = append(handles, h)
	}

	run.transition(RunAwaitingCompletion)
	outcomes := p.scheduler.AwaitAll(ctx, handles)

	run.transition(RunAggregated)
	result := Aggregate(outcomes)

	for _, failure := range result.Failures {
		p.logger.Warn("item not processed",
			zap.String("run_id", run.id),
			zap.Int64("item_id", failure.ID),
			zap.Error(failure.Err),
		)
	}

	p.logger.Info("batch run completed",
		zap.String("run_id", run.id),
		zap.Int("total", len(ids)),
		zap.Int("processed", len(result.Items)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", time.Since(run.started)),
	)

	return result, nil
}

// processItem is the work unit for one identifier: one read, at most one write, no retries
func (p *ItemBatchProcessor) processItem(ctx context.Context, id int64) domain.WorkOutcome {
	item, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return domain.Failure(id, err)
		}
		return domain.Failure(id, &domain.StoreError{Op: "get", ID: id, Err: err})
	}
	if item == nil {
		return domain.Failure(id, domain.ErrItemNotFound)
	}

	item.Status = domain.ItemStatusProcessed

	saved, err := p.repo.Save(ctx, item)
	if err != nil {
		return domain.Failure(id, &domain.StoreError{Op: "save", ID: id, Err: err})
	}
	if saved == nil {
		saved = item
	}

	return domain.Success(saved)
}

// Verify that ItemBatchProcessor implements domain.BatchProcessor interface
var _ domain.BatchProcessor = (*ItemBatchProcessor)(nil)
