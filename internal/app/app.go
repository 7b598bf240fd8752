// Package app assembles the booking service from its configuration and
// runs the HTTP server until its context is cancelled.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/booking"
	"github.com/iliyamo/trainer-slot-booking/internal/config"
	"github.com/iliyamo/trainer-slot-booking/internal/database"
	"github.com/iliyamo/trainer-slot-booking/internal/handler"
	"github.com/iliyamo/trainer-slot-booking/internal/middleware"
	"github.com/iliyamo/trainer-slot-booking/internal/queue"
	"github.com/iliyamo/trainer-slot-booking/internal/repository"
	"github.com/iliyamo/trainer-slot-booking/internal/router"
	"github.com/iliyamo/trainer-slot-booking/internal/schedule"
	"github.com/iliyamo/trainer-slot-booking/internal/service"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

const shutdownTimeout = 10 * time.Second

type publisher interface {
	service.EventPublisher
	Close() error
}

// App owns every long-lived resource of a running server.
type App struct {
	cfg       config.Config
	log       *zap.Logger
	db        *sql.DB
	rdb       *redis.Client
	publisher publisher
	echo      *echo.Echo
}

// New opens the database, applies pending migrations and wires the HTTP
// stack.  Redis and RabbitMQ are optional: without them caching, rate
// limiting and event publication are disabled.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	applied, err := database.Migrate(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.String("dialect", string(dialect)), zap.Strings("applied", applied))

	a := &App{cfg: cfg, log: log, db: db}

	a.rdb = config.NewRedisClient(cfg.Redis)
	if cfg.Redis.Addr != "" && a.rdb == nil {
		log.Warn("redis unreachable; caching and rate limiting disabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Events.Enabled {
		a.publisher = queue.NewPublisher(cfg.Events.RabbitMQURL, cfg.Events.Queue, log)
	} else {
		a.publisher = queue.NopPublisher{}
	}

	slots := repository.NewSlotRepo(db)
	sessions := repository.NewSessionRepo(db)
	engine := booking.NewEngine(db, slots, sessions, log)
	cache := middleware.NewScheduleCache(cfg.Cache, a.rdb, log)

	opts := service.Options{
		OpTimeout: cfg.OpTimeout,
		Retry:     service.RetryPolicy{MaxRetries: cfg.MaxRetries},
		Publisher: a.publisher,
		Log:       log,
	}
	// a typed nil would make the service call through to a nil cache
	if cache != nil {
		opts.Cache = cache
	}
	svc := service.NewScheduling(engine, schedule.NewQuery(slots, sessions), slots, sessions, opts)

	a.echo = newEcho(cfg, log, db, svc, a.rdb, cache)
	return a, nil
}

func newEcho(cfg config.Config, log *zap.Logger, db *sql.DB, svc handler.Scheduler, rdb *redis.Client, cache *middleware.ScheduleCache) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &handler.EchoValidator{V: validation.Default()}

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	g := router.Protected(e, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
	})
	router.RegisterSlots(g, handler.NewSlotHandler(svc, log), cache)
	router.RegisterSessions(g, handler.NewSessionHandler(svc, log))
	return e
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.echo }

// Run serves HTTP until ctx is cancelled and then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	addr := ":" + a.cfg.Port
	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", addr), zap.String("env", a.cfg.Env))
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			a.Close()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.echo.Shutdown(sctx); err != nil {
		a.log.Error("server shutdown failed", zap.Error(err))
	}
	a.Close()
	a.log.Info("server stopped")
	return nil
}

// Close releases the broker connection, Redis client and database.
func (a *App) Close() {
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("close publisher", zap.Error(err))
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
}
