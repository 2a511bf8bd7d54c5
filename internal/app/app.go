package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/BookReviewGo/internal/auth"
	"github.com/utafrali/BookReviewGo/internal/config"
	"github.com/utafrali/BookReviewGo/internal/event"
	handler "github.com/utafrali/BookReviewGo/internal/handler/http"
	"github.com/utafrali/BookReviewGo/internal/repository"
	"github.com/utafrali/BookReviewGo/internal/repository/memory"
	"github.com/utafrali/BookReviewGo/internal/repository/postgres"
	"github.com/utafrali/BookReviewGo/internal/repository/elasticsearch"
	rediscache "github.com/utafrali/BookReviewGo/internal/repository/redis"
	"github.com/utafrali/BookReviewGo/internal/service"
	"github.com/utafrali/BookReviewGo/migrations"
	"github.com/utafrali/BookReviewGo/pkg/database"
	"github.com/utafrali/BookReviewGo/pkg/health"
	pkgkafka "github.com/utafrali/BookReviewGo/pkg/kafka"
	"github.com/utafrali/BookReviewGo/pkg/middleware"
	"github.com/utafrali/BookReviewGo/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics, traces and events.
const ServiceName = "bookreview"

// App wires together all dependencies and runs the book review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

type stores struct {
	books   repository.BookRepository
	reviews repository.ReviewRepository
	users   repository.UserRepository
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	st, err := a.initStorage(ctx, healthHandler)
	if err != nil {
		_ = a.closeResources()
		return nil, err
	}

	var cache repository.BookCache
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			_ = a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redisClient = client
		cache = rediscache.NewBookCache(client, cfg.BookCacheTTL)
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("connected to Redis",
			slog.String("addr", cfg.Redis().Addr()),
			slog.Duration("ttl", cfg.BookCacheTTL),
		)
	}

	eventProducer := event.NewNoopProducer(logger)
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		eventProducer = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry)
	aggregator := service.NewRatingAggregator(st.books, st.reviews, cache, eventProducer, logger)
	bookService := service.NewBookService(st.books, st.reviews, cache, eventProducer, logger)
	if cfg.SearchEnabled {
		index, err := elasticsearch.New(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			_ = a.closeResources()
			return nil, fmt.Errorf("init elasticsearch index: %w", err)
		}
		bookService.WithSearchIndex(index)
		healthHandler.RegisterNonCritical("elasticsearch", index.Ping)
		logger.Info("elasticsearch book search enabled",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	}
	reviewService := service.NewReviewService(st.reviews, st.books, aggregator, eventProducer, logger)
	userService := service.NewUserService(st.users, jwtManager, logger)

	// HTTP router.
	router := handler.NewRouter(bookService, reviewService, userService, jwtManager.TokenValidator(), healthHandler, logger, handler.RouterConfig{
		ServiceName: ServiceName,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		RateLimit:         cfg.RateLimit(),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initStorage opens the configured backend and registers its readiness check.
func (a *App) initStorage(ctx context.Context, healthHandler *health.Handler) (*stores, error) {
	if a.cfg.StorageBackend == config.StorageMemory {
		store := memory.NewStore()
		healthHandler.RegisterCritical("memory", func(context.Context) error {
			return store.Ping()
		})
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return &stores{books: store.Books(), reviews: store.Reviews(), users: store.Users()}, nil
	}

	pgCfg := a.cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	// Configure slow query logging.
	if a.cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(a.cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	return &stores{
		books:   postgres.NewBookRepository(pool),
		reviews: postgres.NewReviewRepository(pool),
		users:   postgres.NewUserRepository(pool),
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storage", a.cfg.StorageBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.closeResources()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: the HTTP server drains
// first, then pending spans are flushed, then Kafka, Redis and PostgreSQL are
// closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error

	// Flush spans after the HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redisClient = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}

	return errors.Join(errs...)
}
