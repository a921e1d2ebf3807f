package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/itemservice/internal/cache"
	"github.com/your-org/itemservice/internal/config"
	"github.com/your-org/itemservice/internal/domain"
	"github.com/your-org/itemservice/internal/handlers"
	"github.com/your-org/itemservice/internal/middleware"
	"github.com/your-org/itemservice/internal/processor"
	"github.com/your-org/itemservice/internal/repositories"
	"github.com/your-org/itemservice/internal/usecases"
	"github.com/your-org/itemservice/internal/validation"
	"github.com/your-org/itemservice/pkg/logger"
)

const (
	serviceName = "itemservice"

	// Сколько раз пытаемся поднять хранилище при старте и пауза между попытками.
	storeInitRetries    = 5
	storeInitRetryDelay = 2 * time.Second

	// Время на аккуратное завершение работы сервера (доделать текущие запросы).
	shutdownTimeout = 30 * time.Second

	healthCheckInterval = 30 * time.Second
)

// App держит вместе все зависимости и управляет их жизненным циклом (старт/стоп).
type App struct {
	config    *config.Config
	logger    *zap.Logger
	store     domain.Store
	cache     *cache.ShardedCache
	scheduler *processor.Scheduler
	usecase   *usecases.ItemUsecase
	server    *http.Server

	initOnce sync.Once
	initErr  error

	// Фоновые задачи отменяются разом при выключении.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp создает заготовку приложения. Настройка происходит в Initialize().
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize настраивает все компоненты. Повторный вызов возвращает результат первого.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize собирает приложение снизу вверх:
// логгер -> конфиг -> хранилище -> кэш -> планировщик -> пакетный обработчик -> бизнес-логика -> HTTP.
func (a *App) doInitialize() error {
	if err := logger.Init(logger.Options{Level: "info", Service: serviceName}); err != nil {
		return fmt.Errorf("не удалось инициализировать логгер: %w", err)
	}
	a.logger = logger.Get()

	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Нет файла: работаем на значениях по умолчанию и ENV.
	if err := config.Load(configPath); err != nil {
		a.logger.Warn("не удалось загрузить конфиг-файл, используем значения по умолчанию и ENV",
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("критическая ошибка конфигурации: %w", err)
		}
	}
	a.config = config.Get()

	// Логгер пересобираем уже по настройкам из конфига.
	if err := logger.Init(logger.Options{
		Level:       a.config.Log.Level,
		Development: a.config.Log.Development,
		Service:     serviceName,
	}); err != nil {
		return fmt.Errorf("не удалось настроить логгер: %w", err)
	}
	a.logger = logger.Get()

	a.logger.Info("конфигурация загружена",
		zap.String("адрес", a.config.Server.Addr()),
		zap.String("хранилище", a.config.Store.Driver),
		zap.Int("воркеров_пакета", a.config.Concurrency.BatchWorkers),
		zap.Duration("таймаут_пакета", a.config.Batch.RunTimeout),
	)

	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	a.cache = cache.NewShardedCache(a.config.Cache.Shards, a.config.Cache.TTL)
	a.cache.StartCleanupWorker()

	a.scheduler = processor.NewScheduler(
		a.config.Concurrency.BatchWorkers,
		a.config.Concurrency.BatchQueueSize,
		a.logger,
	)
	a.scheduler.Start()
	a.logger.Info("планировщик пакетной обработки запущен",
		zap.Int("воркеров", a.scheduler.Workers()),
		zap.Int("размер_очереди", a.config.Concurrency.BatchQueueSize),
	)

	batch := processor.NewBatchProcessor(a.store, a.scheduler, a.config.Batch.RunTimeout, a.logger)

	a.usecase = usecases.NewItemUsecase(
		a.store,
		a.cache,
		batch,
		validation.NewEmailValidator(),
		a.logger,
		a.config.Concurrency.DBMaxConnections,
	)

	a.initializeServer()

	a.logger.Info("приложение готово к работе")
	return nil
}

// initializeStore поднимает хранилище выбранного драйвера с повторными попытками:
// база может стартовать медленнее приложения.
func (a *App) initializeStore() error {
	var err error

	for attempt := 0; attempt < storeInitRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("повторная попытка подключения к хранилищу",
				zap.Int("попытка", attempt+1),
				zap.Duration("пауза", storeInitRetryDelay),
			)
			time.Sleep(storeInitRetryDelay)
		}

		store, openErr := a.openStore()
		if openErr != nil {
			err = openErr
			a.logger.Warn("не удалось открыть хранилище",
				zap.Int("попытка", attempt+1),
				zap.Error(openErr),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		checkErr := store.CheckConnection(ctx)
		cancel()
		if checkErr != nil {
			_ = store.Close()
			err = checkErr
			a.logger.Warn("нет связи с хранилищем",
				zap.Int("попытка", attempt+1),
				zap.Error(checkErr),
			)
			continue
		}

		// Коллекция / таблица создается, если ее нет.
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		ensureErr := store.EnsureCollections(ctx)
		cancel()
		if ensureErr != nil {
			_ = store.Close()
			err = ensureErr
			a.logger.Warn("не удалось подготовить коллекции",
				zap.Int("попытка", attempt+1),
				zap.Error(ensureErr),
			)
			continue
		}

		a.store = store
		a.logger.Info("хранилище инициализировано",
			zap.String("драйвер", a.config.Store.Driver),
			zap.Int("попыток_затрачено", attempt+1),
		)
		return nil
	}

	return fmt.Errorf("не удалось подключиться к хранилищу после %d попыток: %w", storeInitRetries, err)
}

// openStore создает клиент хранилища по store.driver.
func (a *App) openStore() (domain.Store, error) {
	switch a.config.Store.Driver {
	case config.DriverReindexer:
		repo, err := repositories.NewReindexerRepository(
			a.config.Store.Reindexer.DSN,
			a.config.Store.Reindexer.MaxConnections,
			a.logger,
		)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		repo, err := repositories.NewPostgresRepository(
			ctx,
			a.config.Store.Postgres.DSN,
			a.config.Store.Postgres.MaxConnections,
			a.logger,
		)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return repositories.NewMemoryRepository(a.logger), nil
	}
}

// initializeServer настраивает HTTP-роутинг и middleware.
func (a *App) initializeServer() {
	itemHandler := handlers.NewItemHandler(a.usecase, a.logger)
	rateLimiter := middleware.NewRateLimiter(a.config.Server.RateLimit, a.config.Server.RatePeriod)

	r := chi.NewRouter()

	// Health check без middleware, чтобы отвечать быстро.
	r.Get("/health", handlers.NewHealthHandler(a.store, a.config.Store.Driver, a.logger).Check)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.RateLimitMiddleware(rateLimiter, a.logger))
		r.Use(chimw.Throttle(a.config.Concurrency.HTTPMaxWorkers))

		r.Group(func(r chi.Router) {
			r.Use(middleware.TimeoutMiddleware(a.config.Server.RequestTimeout))
			itemHandler.Routes(r)
		})

		// Пакетный прогон ждет все элементы; его ограничивает batch.run_timeout.
		itemHandler.BatchRoutes(r)
	})

	a.server = &http.Server{
		Addr:         a.config.Server.Addr(),
		Handler:      r,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// periodicHealthCheck пишет в лог состояние хранилища.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("фоновая проверка здоровья остановлена")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
			if err := a.store.CheckConnection(ctx); err != nil {
				a.logger.Warn("фоновая проверка: проблема с хранилищем", zap.Error(err))
			} else {
				a.logger.Debug("фоновая проверка: хранилище доступно",
					zap.Int("элементов_в_кэше", a.cache.Len()),
				)
			}
			cancel()
		}
	}
}

// Start запускает фоновые задачи и HTTP сервер в отдельной горутине.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.periodicHealthCheck()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("запуск HTTP сервера", zap.String("адрес", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("сервер упал с ошибкой", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown останавливает компоненты в обратном порядке, дожидаясь текущих запросов.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("начинаем остановку приложения...")

		a.cancel()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("ошибка при остановке сервера", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		if a.usecase != nil {
			a.usecase.Shutdown()
		}

		// Незапущенные единицы работы получат ErrSchedulerStopped.
		if a.scheduler != nil {
			a.scheduler.Stop()
		}

		if a.cache != nil {
			a.cache.StopCleanupWorker()
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Error("ошибка при закрытии хранилища", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("все фоновые процессы завершены")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("таймаут ожидания завершения процессов")
		}

		a.logger.Info("приложение остановлено")
		_ = logger.Sync()
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Фатальная ошибка запуска: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка при остановке: %v\n", err)
		os.Exit(1)
	}
}
