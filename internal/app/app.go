package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-docrequest/internal/config"
	"go-docrequest/internal/database"
	"go-docrequest/internal/event"
	"go-docrequest/internal/handler"
	"go-docrequest/internal/metrics"
	"go-docrequest/internal/model"
	"go-docrequest/internal/notify"
	"go-docrequest/internal/ratelimit"
	"go-docrequest/internal/repository"
	"go-docrequest/internal/router"
	"go-docrequest/internal/service"
	"go-docrequest/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	a := &App{}
	fail := func(err error) (*App, error) {
		a.cleanup()
		return nil, err
	}

	store, err := storage.New(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	slog.Info("applying migrations")
	if err := database.Migrate(cfg.DatabaseURL, slog.Default()); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	db, err := database.New(context.Background(), database.Options{
		URL:              cfg.DatabaseURL,
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.onClose(db.Close)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse REDIS_URL: %w", err))
		}
		rdb = redis.NewClient(opts)
		a.onClose(func() { _ = rdb.Close() })
	}

	pool := db.Pool
	adminAccounts, err := repository.NewAccountRepository(pool, model.KindAdmin)
	if err != nil {
		return fail(err)
	}
	studentAccounts, err := repository.NewAccountRepository(pool, model.KindStudent)
	if err != nil {
		return fail(err)
	}
	adminTokens, err := repository.NewTokenRepository(pool, model.KindAdmin)
	if err != nil {
		return fail(err)
	}
	studentTokens, err := repository.NewTokenRepository(pool, model.KindStudent)
	if err != nil {
		return fail(err)
	}
	requestRepo := repository.NewRequestRepository(pool)
	noteRepo := repository.NewNoteRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	typeRepo := repository.NewRequestTypeRepository(pool)

	m := metrics.NewRegistry()

	signer, err := service.NewTokenSigner(cfg.TokenSecret, cfg.TokenIssuer)
	if err != nil {
		return fail(fmt.Errorf("initialize token signer: %w", err))
	}
	authenticator := service.NewAuthenticator(signer, cfg.TokenTTL, adminTokens, studentTokens)
	authService, err := service.NewAuthService(signer, cfg.TokenTTL,
		[]service.AccountStore{adminAccounts, studentAccounts},
		[]service.TokenStore{adminTokens, studentTokens})
	if err != nil {
		return fail(fmt.Errorf("initialize auth service: %w", err))
	}
	if err := authService.EnsureBootstrapAdmin(context.Background(), cfg.BootstrapAdminID, cfg.BootstrapAdminSecret); err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	}

	counter, err := newCounter(cfg, db, rdb)
	if err != nil {
		return fail(err)
	}

	bus := event.NewBus()

	var sender notify.Sender = notify.NewLogSender(slog.Default())
	if cfg.NotifyBackend == config.BackendRedis {
		sender = notify.NewRedisSender(rdb, cfg.NotifyChannel)
	}
	dispatcher := notify.NewDispatcher(bus, sender, m)
	dispatcher.Start()
	a.onClose(dispatcher.Stop)

	auditService := service.NewAuditService(auditRepo, bus)
	auditService.Start()
	a.onClose(auditService.Stop)

	catalog := service.NewRequestTypeCatalog(typeRepo, cfg.SchemaCacheTTL)
	validator := service.NewSubmissionValidator(catalog)
	requestService := service.NewRequestService(requestRepo, store, validator, bus, m)
	noteService := service.NewNoteService(noteRepo, requestRepo, bus)

	tasks := []service.CleanupTask{
		{Name: "admin_tokens", Run: func(ctx context.Context) (int64, error) { return adminTokens.PurgeExpired(ctx, time.Now()) }},
		{Name: "student_tokens", Run: func(ctx context.Context) (int64, error) { return studentTokens.PurgeExpired(ctx, time.Now()) }},
	}
	if pg, ok := counter.(*ratelimit.PostgresCounter); ok {
		tasks = append(tasks, service.CleanupTask{Name: "rate_windows", Run: pg.Purge})
	}
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go service.NewJanitor(cfg.CleanupInterval, tasks...).Start(janitorCtx)
	a.onClose(stopJanitor)

	checks := []handler.HealthCheck{
		{Name: "database", Check: db.Health},
		{Name: "storage", Check: store.Ping},
	}
	if rdb != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	appRouter := router.New(cfg, router.Deps{
		Authenticator: authenticator,
		Counter:       counter,
		Metrics:       m,
	}, router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Request: handler.NewRequestHandler(requestService, cfg.MaxUploadSize, cfg.UploadSpoolDir),
		Note:    handler.NewNoteHandler(noteService),
		Form:    handler.NewFormHandler(catalog),
		Audit:   handler.NewAuditHandler(auditService),
		Health:  handler.NewHealthHandler(checks...),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func newCounter(cfg *config.Config, db *database.DB, rdb *redis.Client) (ratelimit.Counter, error) {
	opts := ratelimit.Options{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax}

	switch cfg.RateLimitBackend {
	case config.BackendPostgres:
		return ratelimit.NewPostgres(db.Pool, opts), nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis rate limit backend needs REDIS_URL")
		}
		return ratelimit.NewRedis(rdb, opts), nil
	case config.BackendMemory:
		slog.Warn("in-memory rate windows are per process")
		return ratelimit.NewMemory(opts), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}
}

// onClose registers fn to run at shutdown. Funcs run in reverse order.
func (a *App) onClose(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		slog.Info("shutdown requested", "signal", sig.String())
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
