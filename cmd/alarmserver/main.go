package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jmougeot/alarm-server/internal/api"
	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/authzcache"
	"github.com/jmougeot/alarm-server/internal/bootstrap"
	"github.com/jmougeot/alarm-server/internal/config"
	"github.com/jmougeot/alarm-server/internal/gateway"
	"github.com/jmougeot/alarm-server/internal/httputil"
	"github.com/jmougeot/alarm-server/internal/postgres"
	"github.com/jmougeot/alarm-server/internal/store"
	"github.com/jmougeot/alarm-server/internal/telemetry"
	"github.com/jmougeot/alarm-server/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// server holds the shared dependencies used by route handlers and middleware.
type server struct {
	cfg         *config.Config
	db          *pgxpool.Pool
	rdb         *redis.Client
	store       store.Store
	authService *auth.Service
	gatewayHub  *gateway.Hub
	verdicts    *authzcache.Cache
}

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting alarm server")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard. Set an explicit origin when in production.")
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, "alarm-server", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, cfg.ValkeyDialTimeout)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Valkey connected")

	firstRun, err := bootstrap.IsFirstRun(ctx, db)
	if err != nil {
		return fmt.Errorf("check first run: %w", err)
	}
	if firstRun {
		log.Info().Msg("First run detected, running initialization")
		if err := bootstrap.RunFirstInit(ctx, db, cfg); err != nil {
			return fmt.Errorf("first-run initialization: %w", err)
		}
		log.Info().Msg("First-run initialization complete")
	}

	pgStore := postgres.NewStore(db, log.Logger)

	authService := auth.NewService(pgStore, rdb, cfg.JWTSecret, cfg.JWTIssuer,
		cfg.JWTAccessTTL, cfg.JWTRefreshTTL, auth.Argon2Params{
			Memory:      cfg.Argon2Memory,
			Iterations:  cfg.Argon2Iterations,
			Parallelism: cfg.Argon2Parallelism,
			SaltLength:  cfg.Argon2SaltLength,
			KeyLength:   cfg.Argon2KeyLength,
		})
	verifier := auth.NewTokenVerifier(pgStore, cfg.JWTSecret, cfg.JWTIssuer)

	var metricsRegistry prometheus.Registerer
	if cfg.MetricsEnabled {
		metricsRegistry = prometheus.NewRegistry()
	}

	// A RedisPublisher fans alarm and access-grant frames out across every
	// process sharing this Valkey instance; a single-process deployment
	// still works with it wired in, it is simply the only subscriber.
	redisPub := gateway.NewRedisPublisher(rdb, log.Logger)
	verdicts := authzcache.New(rdb)
	gatewayHub := gateway.NewHub(pgStore, verifier, redisPub, verdicts, cfg.GatewayHeartbeatInterval, metricsRegistry, log.Logger)

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	go runWithBackoff(subCtx, "gateway-subscriber", func(ctx context.Context) error {
		return gatewayHub.RunSubscriber(ctx, redisPub)
	})

	app := fiber.New(fiber.Config{
		AppName: "alarm-server",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			code := httputil.CodeInternalError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
				message = fiberErr.Message
				code = fiberStatusToCode(fiberErr.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{Code: code, Message: message},
			})
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAPIRequests,
		Expiration: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second,
	}))

	srv := &server{
		cfg:         cfg,
		db:          db,
		rdb:         rdb,
		store:       pgStore,
		authService: authService,
		gatewayHub:  gatewayHub,
		verdicts:    verdicts,
	}
	srv.registerRoutes(app, metricsRegistry)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		subCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *server) registerRoutes(app *fiber.App, metricsRegistry prometheus.Registerer) {
	requireAuth := auth.RequireAuth(s.cfg.JWTSecret, s.cfg.JWTIssuer)

	health := &api.HealthHandler{DB: s.db, Redis: s.rdb}
	app.Get("/api/v1/health", health.Health)

	if reg, ok := metricsRegistry.(*prometheus.Registry); ok {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	authHandler := &api.AuthHandler{Auth: s.authService}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Use(limiter.New(limiter.Config{
		Max:        s.cfg.RateLimitAuthCount,
		Expiration: time.Duration(s.cfg.RateLimitAuthWindowSeconds) * time.Second,
	}))
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", requireAuth, authHandler.Logout)

	groupHandler := api.NewGroupHandler(s.store, s.gatewayHub.Broadcaster(), log.Logger)
	groupGroup := app.Group("/api/v1/groups", requireAuth)
	groupGroup.Post("/", groupHandler.Create)
	groupGroup.Get("/", groupHandler.List)
	groupGroup.Post("/:id/members", groupHandler.AddMember)
	groupGroup.Delete("/:id/members/:userID", groupHandler.RemoveMember)

	pageHandler := api.NewPageHandler(s.store, s.verdicts, s.gatewayHub.Broadcaster(), log.Logger)
	pageGroup := app.Group("/api/v1/pages", requireAuth)
	pageGroup.Post("/", pageHandler.Create)
	pageGroup.Get("/", pageHandler.List)
	pageGroup.Get("/:id/access", pageHandler.GetAccess)
	pageGroup.Put("/:id/permissions", pageHandler.SetPermission)
	pageGroup.Delete("/:id/permissions/:subjectType/:subjectID", pageHandler.DeletePermission)

	gatewayHandler := api.NewGatewayHandler(s.gatewayHub)
	app.Get("/api/v1/gateway", gatewayHandler.Upgrade)

	// Catch-all handler returns 404 for any request that does not match a
	// defined route. Fiber v3 treats app.Use() middleware as route matches,
	// so without this the router considers unmatched requests handled and
	// returns the default 200 status with an empty body.
	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when
// it returns a non-nil, non-cancelled error. The delay starts at 1 second and
// doubles on each consecutive failure up to a 2-minute cap.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = 2 * time.Minute
	)
	delay := initialDelay
	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("service", name).Dur("retry_in", delay).
				Msg("Background service stopped, restarting after delay")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		return
	}
}

// fiberStatusToCode maps an HTTP status code from Fiber's built-in errors
// (404, 405, etc.) to the closest structured error code.
func fiberStatusToCode(status int) httputil.Code {
	switch status {
	case fiber.StatusNotFound:
		return httputil.CodeNotFound
	case fiber.StatusMethodNotAllowed:
		return httputil.CodeValidationError
	case fiber.StatusServiceUnavailable:
		return httputil.CodeInternalError
	default:
		if status >= 400 && status < 500 {
			return httputil.CodeValidationError
		}
		return httputil.CodeInternalError
	}
}
