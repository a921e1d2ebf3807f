package usecases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/itemservice/internal/domain"
	"github.com/your-org/itemservice/internal/validation"
)

// ErrTooManyRequests возвращается, когда не удалось дождаться слота лимитера.
var ErrTooManyRequests = errors.New("превышен лимит запросов")

// ItemUsecase отвечает за бизнес-логику работы с элементами.
// Связывает хранилище, кэш, валидацию и пакетную обработку:
// 1. Кэширование чтений (Cache-Aside) со схлопыванием одинаковых запросов.
// 2. Ограничение числа одновременных обращений к хранилищу.
// 3. Инвалидация кэша после изменений и после пакетной обработки.
type ItemUsecase struct {
	repo      domain.ItemRepository
	cache     domain.ItemCache
	processor domain.BatchProcessor
	emails    domain.EmailValidator
	logger    *zap.Logger

	limiter *semaphore.Weighted
	loads   singleflight.Group

	// Фоновые задачи (инвалидация и прогрев кэша).
	wg sync.WaitGroup
}

// NewItemUsecase создает usecase. maxConcurrentOps ограничивает одновременные походы в хранилище.
func NewItemUsecase(
	repo domain.ItemRepository,
	cache domain.ItemCache,
	processor domain.BatchProcessor,
	emails domain.EmailValidator,
	logger *zap.Logger,
	maxConcurrentOps int,
) *ItemUsecase {
	if maxConcurrentOps < 1 {
		maxConcurrentOps = 10
	}

	return &ItemUsecase{
		repo:      repo,
		cache:     cache,
		processor: processor,
		emails:    emails,
		logger:    logger,
		limiter:   semaphore.NewWeighted(int64(maxConcurrentOps)),
	}
}

// acquire занимает слот лимитера или возвращает ошибку, если контекст отменен.
func (u *ItemUsecase) acquire(ctx context.Context) error {
	if err := u.limiter.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrTooManyRequests, err)
	}
	return nil
}

// ListItems возвращает все элементы.
func (u *ItemUsecase) ListItems(ctx context.Context) ([]*domain.Item, error) {
	if err := u.acquire(ctx); err != nil {
		return nil, err
	}
	defer u.limiter.Release(1)

	items, err := u.repo.List(ctx)
	if err != nil {
		u.logger.Error("ошибка получения списка", zap.Error(err))
		return nil, err
	}
	if items == nil {
		items = []*domain.Item{}
	}
	return items, nil
}

// GetItem получает элемент по ID.
// Сначала кэш; при промахе одновременные запросы одного ID идут в базу одним походом.
func (u *ItemUsecase) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	if item, ok := u.cache.Get(ctx, id); ok {
		u.logger.Debug("попадание в кэш", zap.Int64("id", id))
		return item, nil
	}

	v, err, _ := u.loads.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		if err := u.acquire(ctx); err != nil {
			return nil, err
		}
		defer u.limiter.Release(1)

		item, err := u.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		u.cacheAsync(item)
		return item, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrItemNotFound) {
			u.logger.Error("не удалось получить элемент из БД",
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
		return nil, err
	}

	// Результат singleflight общий для всех ожидающих, отдаем каждому свою копию.
	return v.(*domain.Item).Clone(), nil
}

// CreateItem валидирует и сохраняет новый элемент со статусом CREATED.
func (u *ItemUsecase) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if err := validation.ValidateItem(item, u.emails); err != nil {
		return nil, err
	}

	if err := u.acquire(ctx); err != nil {
		return nil, err
	}
	defer u.limiter.Release(1)

	// Новый элемент всегда начинает со статуса CREATED, что бы ни прислал клиент.
	toSave := item.Clone()
	toSave.ID = 0
	toSave.Status = domain.ItemStatusCreated

	saved, err := u.repo.Save(ctx, toSave)
	if err != nil {
		u.logger.Error("ошибка создания в БД", zap.Error(err))
		return nil, err
	}

	u.logger.Info("элемент создан",
		zap.Int64("id", saved.ID),
		zap.String("name", saved.Name),
	)

	return saved, nil
}

// UpdateItem заменяет существующий элемент. Если статус не передан, сохраняется прежний.
func (u *ItemUsecase) UpdateItem(ctx context.Context, id int64, item *domain.Item) (*domain.Item, error) {
	if err := validation.ValidateItem(item, u.emails); err != nil {
		return nil, err
	}

	if err := u.acquire(ctx); err != nil {
		return nil, err
	}
	defer u.limiter.Release(1)

	existing, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	toSave := item.Clone()
	toSave.ID = id
	if toSave.Status == "" {
		toSave.Status = existing.Status
	}

	saved, err := u.repo.Save(ctx, toSave)
	if err != nil {
		u.logger.Error("ошибка обновления в БД",
			zap.Int64("id", id),
			zap.Error(err),
		)
		return nil, err
	}

	// Кэш удаляем, чтобы следующее чтение взяло свежие данные.
	u.invalidateAsync(id)

	u.logger.Info("элемент обновлен", zap.Int64("id", id))

	return saved, nil
}

// DeleteItem удаляет элемент и чистит кэш.
func (u *ItemUsecase) DeleteItem(ctx context.Context, id int64) error {
	if err := u.acquire(ctx); err != nil {
		return err
	}
	defer u.limiter.Release(1)

	if err := u.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrItemNotFound) {
			u.logger.Error("ошибка удаления из БД",
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
		return err
	}

	u.invalidateAsync(id)

	u.logger.Info("элемент удален", zap.Int64("id", id))

	return nil
}

// ProcessItems переводит все элементы в статус PROCESSED и возвращает успешно обработанные.
// Кэш всех затронутых элементов чистится синхронно, чтобы сразу после ответа не читать старый статус.
// Неудачные тоже: после таймаута прогона единица работы может еще успеть записать.
func (u *ItemUsecase) ProcessItems(ctx context.Context) (*domain.BatchResult, error) {
	if err := u.acquire(ctx); err != nil {
		return nil, err
	}
	defer u.limiter.Release(1)

	result, err := u.processor.ProcessAll(ctx)
	if err != nil {
		u.logger.Error("ошибка пакетной обработки", zap.Error(err))
		return nil, err
	}

	cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	evict := func(id int64) {
		if err := u.cache.Delete(cacheCtx, id); err != nil {
			u.logger.Warn("не удалось очистить кэш",
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
	}
	for _, item := range result.Items {
		evict(item.ID)
	}
	for _, failure := range result.Failures {
		evict(failure.ID)
	}

	u.logger.Info("пакет обработан",
		zap.Int("всего", result.Total()),
		zap.Int("успешно", len(result.Items)),
		zap.Int("с_ошибкой", len(result.Failures)),
	)

	return result, nil
}

// cacheAsync кладет элемент в кэш в фоне, не задерживая ответ.
func (u *ItemUsecase) cacheAsync(item *domain.Item) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := u.cache.Set(ctx, item); err != nil {
			u.logger.Warn("не удалось закэшировать элемент",
				zap.Int64("id", item.ID),
				zap.Error(err),
			)
		}
	}()
}

// invalidateAsync удаляет запись из кэша в фоне.
func (u *ItemUsecase) invalidateAsync(id int64) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := u.cache.Delete(ctx, id); err != nil {
			u.logger.Warn("не удалось очистить кэш",
				zap.Int64("id", id),
				zap.Error(err),
			)
		}
	}()
}

// Shutdown ждет завершения фоновых задач.
func (u *ItemUsecase) Shutdown() {
	u.wg.Wait()
	u.logger.Info("бизнес-логика остановлена")
}
