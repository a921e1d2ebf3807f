package domain

import (
	"context"
	"time"
)

// ItemRepository defines the interface for item persistence
type ItemRepository interface {
	// ListIDs returns a snapshot of all stored item identifiers
	ListIDs(ctx context.Context) ([]int64, error)

	// List returns all stored items
	List(ctx context.Context) ([]*Item, error)

	// GetByID retrieves an item by ID, returning ErrItemNotFound when absent
	GetByID(ctx context.Context, id int64) (*Item, error)

	// Save inserts or replaces an item. A zero ID is assigned by the store.
	Save(ctx context.Context, item *Item) (*Item, error)

	// Delete removes an item by ID, returning ErrItemNotFound when absent
	Delete(ctx context.Context, id int64) error
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the database connection is healthy
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/tables exist
	EnsureCollections(ctx context.Context) error
}

// HealthStatus is the last known state of a store's connection pool
type HealthStatus struct {
	IsHealthy   bool
	LastCheck   time.Time
	LastError   error
	Connections int
}

// HealthReporter is implemented by stores that track their connection pool
type HealthReporter interface {
	Health() *HealthStatus
}

// Store is a repository that can also report its health and be closed
type Store interface {
	ItemRepository
	HealthChecker
	Close() error
}

// EmailValidator decides whether an email address is acceptable
type EmailValidator interface {
	IsValid(email string) bool
}
