package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/config"
	"github.com/stemsi/checkio-backend/internal/database"
	"github.com/stemsi/checkio-backend/internal/handler"
	"github.com/stemsi/checkio-backend/internal/logger"
	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
	"github.com/stemsi/checkio-backend/internal/router"
	"github.com/stemsi/checkio-backend/internal/service"
	"github.com/stemsi/checkio-backend/internal/validator"
	"github.com/stemsi/checkio-backend/internal/websocket"
	"github.com/stemsi/checkio-backend/internal/worker"
)

const memoryQueueSize = 4096

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("log_queue", cfg.LogQueueBackend).
		Msg("Starting CheckIO Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	store := recordstore.NewPostgres(pool)
	studentRepo := repository.NewStudentRepository(store)
	userRepo := repository.NewUserRepository(store)
	relationRepo := repository.NewRelationRepository(store)
	attendanceRepo := repository.NewAttendanceRepository(store)

	// ─── Shared State, Metrics, Board Hub ─────────────────────────────
	state := appstate.New()
	m := metrics.New()
	hub := websocket.NewHub(m, log)

	// ─── Log Queue ─────────────────────────────────────────────────────
	var queue worker.LogQueue
	switch cfg.LogQueueBackend {
	case config.QueueBackendMemory:
		queue = worker.NewMemoryLogQueue(memoryQueueSize)
	default:
		queue = worker.NewRedisLogQueue(rdb, config.WorkerKey.AttendanceLogQueue)
	}
	logWorker := worker.NewLogAppendWorker(queue, attendanceRepo, m, log)
	reconcileWorker := worker.NewReconcileWorker(studentRepo, attendanceRepo, queue, cfg.ReconcileInterval, m, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, service.NewRedisSessionStore(rdb))
	checkIOService := service.NewCheckIOService(studentRepo, relationRepo, state, hub, queue, logWorker, m, log)
	attendanceService := service.NewAttendanceService(
		attendanceRepo, studentRepo, userRepo, state,
		cfg.BillingGraceMinutes, cfg.Location(), log,
	)
	studentService := service.NewStudentService(studentRepo, relationRepo, userRepo, state, log)
	userService := service.NewUserService(userRepo, relationRepo, state, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	healthChecks := map[string]handler.HealthCheck{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		CheckIO:    handler.NewCheckIOHandler(checkIOService, log),
		Attendance: handler.NewAttendanceHandler(attendanceService, log),
		Student:    handler.NewStudentHandler(studentService, log),
		User:       handler.NewUserHandler(userService, log),
		WS:         handler.NewWSHandler(checkIOService, hub, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(healthChecks, queue, hub, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Go(func() { logWorker.Start(workerCtx) })
	workers.Go(func() { reconcileWorker.Start(workerCtx) })

	// ─── Prewarm Board ─────────────────────────────────────────────────
	// Load the roster before accepting traffic so the first board request
	// does not race a burst of toggles.
	if _, err := checkIOService.Board(ctx, service.Actor{Role: model.RoleAdmin}); err != nil {
		log.Warn().Err(err).Msg("Board prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, m, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the log worker drains its queue first.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
