package domain

import "context"

// ItemCache defines the interface for caching items by ID
type ItemCache interface {
	// Get retrieves a cached item
	Get(ctx context.Context, id int64) (*Item, bool)

	// Set stores an item under its ID
	Set(ctx context.Context, item *Item) error

	// Delete removes an item from the cache
	Delete(ctx context.Context, id int64) error

	// CleanExpired removes all expired entries from the cache
	CleanExpired(ctx context.Context) error
}
