package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

// MemoryRepository keeps items in process memory.
// Every read and write copies the item, so callers never alias stored state.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[int64]*domain.Item
	nextID int64
	closed bool
	logger *zap.Logger
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		items:  make(map[int64]*domain.Item),
		logger: logger,
	}
}

// ListIDs returns the identifiers of all stored items in ascending order
func (r *MemoryRepository) ListIDs(ctx context.Context) ([]int64, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	ids := make([]int64, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// List returns copies of all stored items ordered by ID
func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Item, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	items := make([]*domain.Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// GetByID returns a copy of the item
func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}
	return item.Clone(), nil
}

// Save upserts the item, assigning the next ID when it has none
func (r *MemoryRepository) Save(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	stored := item.Clone()
	if stored.Status == "" {
		stored.Status = domain.ItemStatusCreated
	}

	r.mu.Lock()
	if stored.ID == 0 {
		r.nextID++
		stored.ID = r.nextID
	} else if stored.ID > r.nextID {
		r.nextID = stored.ID
	}
	r.items[stored.ID] = stored
	r.mu.Unlock()

	r.logger.Debug("item saved", zap.Int64("id", stored.ID))

	return stored.Clone(), nil
}

// Delete removes the item
func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	if err := r.check(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}
	delete(r.items, id)
	return nil
}

// CheckConnection reports whether the repository is still open
func (r *MemoryRepository) CheckConnection(ctx context.Context) error {
	return r.check(ctx)
}

// EnsureCollections is a no-op for the in-memory repository
func (r *MemoryRepository) EnsureCollections(ctx context.Context) error {
	return r.check(ctx)
}

// Close marks the repository closed; later calls fail
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return fmt.Errorf("repository closed")
	}
	return nil
}

// Verify that MemoryRepository implements domain.Store interface
var _ domain.Store = (*MemoryRepository)(nil)
