package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restream/reindexer/v4"
	// Драйвер cproto (RPC/TCP).
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/domain"
)

const (
	// Имя пространства имен (таблицы) для хранения элементов.
	itemsNamespace = "items"

	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// ReindexerRepository хранит элементы в Reindexer.
// Держит главное соединение и пул дополнительных, запросы раскидываются по пулу round-robin.
type ReindexerRepository struct {
	dsn      string
	poolSize int
	logger   *zap.Logger

	mu          sync.RWMutex
	db          *reindexer.Reindexer
	connections []*reindexer.Reindexer
	next        atomic.Uint64

	// Хранит *HealthStatus, читается без блокировок.
	healthStatus atomic.Value

	collectionsInitialized atomic.Bool
	collectionsMu          sync.Mutex
}

// NewReindexerRepository создает репозиторий и сразу подключается к базе.
func NewReindexerRepository(dsn string, maxConnections int, logger *zap.Logger) (*ReindexerRepository, error) {
	if maxConnections < 1 {
		maxConnections = 1
	}

	repo := &ReindexerRepository{
		dsn:         dsn,
		poolSize:    maxConnections,
		logger:      logger,
		connections: make([]*reindexer.Reindexer, 0, maxConnections),
	}

	// Пока не подключились, считаем себя нездоровыми.
	repo.healthStatus.Store(&domain.HealthStatus{
		IsHealthy: false,
		LastCheck: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе: %w", err)
	}

	return repo, nil
}

// Connect устанавливает соединения с базой (с повторными попытками).
func (r *ReindexerRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.connectWithRetry(ctx, defaultMaxRetries)
}

func (r *ReindexerRepository) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Линейно растущая пауза между попытками.
		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("повторная попытка подключения",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if err := r.testConnection(ctx, db); err != nil {
			lastErr = err
			db.Close()
			r.logger.Warn("тест соединения провален",
				zap.Int("попытка", attempt+1),
				zap.Error(err),
			)
			continue
		}

		r.closeAll()
		r.db = db

		r.connections = make([]*reindexer.Reindexer, 0, r.poolSize)
		for i := 0; i < r.poolSize; i++ {
			conn := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
			if err := r.testConnection(ctx, conn); err != nil {
				conn.Close()
				r.logger.Warn("не удалось создать соединение в пуле",
					zap.Int("индекс", i),
					zap.Error(err),
				)
				continue
			}
			r.connections = append(r.connections, conn)
		}

		r.updateHealthStatus(true, nil, len(r.connections)+1)

		r.logger.Info("успешно подключились к Reindexer",
			zap.Int("размер_пула", len(r.connections)),
		)

		return nil
	}

	r.updateHealthStatus(false, lastErr, 0)

	return fmt.Errorf("не удалось подключиться после %d попыток: %w", maxRetries, lastErr)
}

// testConnection делает реальный ping базы.
func (r *ReindexerRepository) testConnection(ctx context.Context, db *reindexer.Reindexer) error {
	if db == nil {
		return fmt.Errorf("объект соединения nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return db.Ping()
}

// closeAll закрывает все соединения. Вызывается под r.mu.
func (r *ReindexerRepository) closeAll() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	for i, conn := range r.connections {
		if conn != nil {
			conn.Close()
			r.connections[i] = nil
		}
	}
	r.connections = r.connections[:0]
}

// getConnection возвращает соединение из пула по кругу.
func (r *ReindexerRepository) getConnection() *reindexer.Reindexer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.connections) == 0 {
		return r.db
	}

	n := r.next.Add(1)
	return r.connections[n%uint64(len(r.connections))]
}

func (r *ReindexerRepository) updateHealthStatus(isHealthy bool, err error, connections int) {
	r.healthStatus.Store(&domain.HealthStatus{
		IsHealthy:   isHealthy,
		LastCheck:   time.Now(),
		LastError:   err,
		Connections: connections,
	})
}

// Health возвращает последнее известное состояние подключения.
func (r *ReindexerRepository) Health() *domain.HealthStatus {
	status, ok := r.healthStatus.Load().(*domain.HealthStatus)
	if !ok || status == nil {
		return &domain.HealthStatus{IsHealthy: false}
	}
	return status
}

// markUnhealthy фиксирует ошибку запроса в статусе здоровья.
func (r *ReindexerRepository) markUnhealthy(err error) {
	r.updateHealthStatus(false, err, r.Health().Connections)
}

// EnsureCollections открывает неймспейс items (и создает его при отсутствии) на всех соединениях.
func (r *ReindexerRepository) EnsureCollections(ctx context.Context) error {
	if r.collectionsInitialized.Load() {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()

	if r.collectionsInitialized.Load() {
		return nil
	}

	r.mu.RLock()
	db := r.db
	conns := append([]*reindexer.Reindexer(nil), r.connections...)
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("соединение с базой не установлено")
	}

	opts := reindexer.DefaultNamespaceOptions()

	// Схема (поля и индексы) берется из тегов domain.Item.
	if err := db.OpenNamespace(itemsNamespace, opts, domain.Item{}); err != nil {
		return fmt.Errorf("ошибка открытия неймспейса: %w", err)
	}

	for i, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.OpenNamespace(itemsNamespace, opts, domain.Item{}); err != nil {
			r.logger.Warn("ошибка открытия неймспейса для соединения из пула",
				zap.Int("индекс", i),
				zap.Error(err),
			)
		}
	}

	r.collectionsInitialized.Store(true)
	r.logger.Info("коллекции инициализированы", zap.String("namespace", itemsNamespace))

	return nil
}

// ListIDs возвращает идентификаторы всех элементов (выбираем только поле id).
func (r *ReindexerRepository) ListIDs(ctx context.Context) ([]int64, error) {
	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}

	iter := db.Query(itemsNamespace).Select("id").Sort("id", false).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.markUnhealthy(err)
		return nil, fmt.Errorf("ошибка запроса идентификаторов: %w", err)
	}

	ids := make([]int64, 0, iter.Count())
	for iter.Next() {
		if item, ok := iter.Object().(*domain.Item); ok {
			ids = append(ids, item.ID)
		}
	}

	return ids, nil
}

// List возвращает все элементы, отсортированные по ID.
func (r *ReindexerRepository) List(ctx context.Context) ([]*domain.Item, error) {
	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}

	iter := db.Query(itemsNamespace).Sort("id", false).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.markUnhealthy(err)
		return nil, fmt.Errorf("ошибка запроса списка: %w", err)
	}

	items := make([]*domain.Item, 0, iter.Count())
	for iter.Next() {
		item, ok := iter.Object().(*domain.Item)
		if !ok {
			r.logger.Error("ошибка приведения типов",
				zap.String("тип", fmt.Sprintf("%T", iter.Object())),
			)
			continue
		}
		// Объекты из итератора могут разделяться кешем Reindexer, отдаем копию.
		items = append(items, item.Clone())
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// GetByID получает элемент по его ID.
func (r *ReindexerRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}

	iter := db.Query(itemsNamespace).Where("id", reindexer.EQ, id).Limit(1).Exec()
	defer iter.Close()

	if err := iter.Error(); err != nil {
		r.logger.Error("ошибка выполнения запроса",
			zap.Int64("id", id),
			zap.Error(err),
		)
		r.markUnhealthy(err)
		return nil, fmt.Errorf("ошибка запроса: %w", err)
	}

	if !iter.Next() {
		return nil, fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}

	elem := iter.Object()
	item, ok := elem.(*domain.Item)
	if !ok {
		r.logger.Error("ошибка приведения типов",
			zap.Int64("id", id),
			zap.String("тип", fmt.Sprintf("%T", elem)),
		)
		return nil, fmt.Errorf("внутренняя ошибка десериализации")
	}

	return item.Clone(), nil
}

// Save вставляет или заменяет элемент.
// Для нового элемента (ID == 0) идентификатор выдает сама база через serial().
func (r *ReindexerRepository) Save(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if item == nil {
		return nil, fmt.Errorf("элемент nil")
	}

	if err := r.EnsureCollections(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки коллекций: %w", err)
	}

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("нет доступного соединения с БД")
	}

	stored := item.Clone()
	if stored.Status == "" {
		stored.Status = domain.ItemStatusCreated
	}

	var err error
	if stored.ID == 0 {
		// Прецепт serial() заполняет stored.ID на стороне сервера.
		err = db.Upsert(itemsNamespace, stored, "id=serial()")
	} else {
		err = db.Upsert(itemsNamespace, stored)
	}
	if err != nil {
		r.logger.Error("ошибка сохранения элемента",
			zap.Int64("id", stored.ID),
			zap.Error(err),
		)
		r.markUnhealthy(err)
		return nil, fmt.Errorf("ошибка при сохранении: %w", err)
	}

	if stored.ID == 0 {
		return nil, fmt.Errorf("база не выдала идентификатор элементу")
	}

	return stored, nil
}

// Delete удаляет элемент по ID.
func (r *ReindexerRepository) Delete(ctx context.Context, id int64) error {
	db := r.getConnection()
	if db == nil {
		return fmt.Errorf("нет доступного соединения с БД")
	}

	deleted, err := db.Query(itemsNamespace).Where("id", reindexer.EQ, id).Delete()
	if err != nil {
		r.logger.Error("ошибка удаления элемента",
			zap.Int64("id", id),
			zap.Error(err),
		)
		r.markUnhealthy(err)
		return fmt.Errorf("ошибка при удалении: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}

	return nil
}

// CheckConnection проверяет здоровье соединения (для health check'ов).
func (r *ReindexerRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("соединение не установлено")
	}

	if err := r.testConnection(ctx, db); err != nil {
		r.markUnhealthy(err)
		return fmt.Errorf("проверка связи не прошла: %w", err)
	}

	r.updateHealthStatus(true, nil, r.Health().Connections)
	return nil
}

// Close закрывает все соединения с базой данных.
func (r *ReindexerRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeAll()
	r.updateHealthStatus(false, fmt.Errorf("соединение закрыто"), 0)

	return nil
}

// Проверка интерфейсов на этапе компиляции.
var _ domain.Store = (*ReindexerRepository)(nil)
var _ domain.HealthReporter = (*ReindexerRepository)(nil)
