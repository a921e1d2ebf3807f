package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

const createItemsTable = `
	CREATE TABLE IF NOT EXISTS items (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'CREATED',
		email       TEXT NOT NULL
	)`

// PostgresRepository stores items in PostgreSQL through a pgx connection pool
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a pooled connection and verifies it with a ping
func NewPostgresRepository(ctx context.Context, dsn string, maxConnections int, logger *zap.Logger) (*PostgresRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if maxConnections < 1 {
		maxConnections = 10
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(maxConnections)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL", zap.Int("max_connections", maxConnections))

	return &PostgresRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// EnsureCollections creates the items table if it does not exist
func (r *PostgresRepository) EnsureCollections(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createItemsTable); err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}
	return nil
}

// ListIDs returns the identifiers of all items
func (r *PostgresRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan item ids: %w", err)
	}
	return ids, nil
}

// List returns all items ordered by ID
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, status, email FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		item := &domain.Item{}
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.Email); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return items, nil
}

// GetByID retrieves an item by ID
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	item := &domain.Item{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, status, email FROM items WHERE id = $1`, id,
	).Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Save inserts a new item or replaces an existing one
func (r *PostgresRepository) Save(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("item is nil")
	}

	stored := item.Clone()
	if stored.Status == "" {
		stored.Status = domain.ItemStatusCreated
	}

	var err error
	if stored.ID == 0 {
		err = r.pool.QueryRow(ctx, `
			INSERT INTO items (name, description, status, email)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			stored.Name, stored.Description, stored.Status, stored.Email,
		).Scan(&stored.ID)
	} else {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO items (id, name, description, status, email)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				status = EXCLUDED.status,
				email = EXCLUDED.email`,
			stored.ID, stored.Name, stored.Description, stored.Status, stored.Email,
		)
	}
	if err != nil {
		r.logger.Error("failed to save item",
			zap.Int64("id", stored.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to save item: %w", err)
	}

	return stored, nil
}

// Delete removes an item by ID
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}
	return nil
}

// CheckConnection pings the database
func (r *PostgresRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Verify that PostgresRepository implements domain.Store interface
var _ domain.Store = (*PostgresRepository)(nil)
