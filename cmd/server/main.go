package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/database"
	"github.com/stemsi/exstem-integrity/internal/handler"
	"github.com/stemsi/exstem-integrity/internal/logger"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/middleware"
	"github.com/stemsi/exstem-integrity/internal/ratelimit"
	"github.com/stemsi/exstem-integrity/internal/repository"
	"github.com/stemsi/exstem-integrity/internal/router"
	"github.com/stemsi/exstem-integrity/internal/service"
	"github.com/stemsi/exstem-integrity/internal/shuffle"
	"github.com/stemsi/exstem-integrity/internal/validator"
	"github.com/stemsi/exstem-integrity/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("rate_limit_backend", cfg.RateLimitBackend).
		Bool("autosave_tx", cfg.AutosaveTx).
		Bool("anticheat_async", cfg.AntiCheatAsync).
		Msg("Starting ExStem Integrity")

	validator.Setup()
	metrics.Register(prometheus.DefaultRegisterer)

	hasher, err := shuffle.HasherByName(cfg.ShuffleSeedHash)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid SHUFFLE_SEED_HASH")
	}

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

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	run := func(start func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	// ─── Rate Limiter ──────────────────────────────────────────────────
	var limiterStore ratelimit.Store
	switch cfg.RateLimitBackend {
	case "redis":
		limiterStore = ratelimit.NewRedisStore(rdb, config.CacheKey.RateLimitKey)
	default:
		mem := ratelimit.NewMemoryStore()
		limiterStore = mem
		run(func(ctx context.Context) {
			mem.StartSweeper(ctx, cfg.RateLimitSweep, time.Now, func(removed int) {
				log.Debug().Int("removed", removed).Msg("Rate limit entries swept")
			})
		})
	}
	limiter := ratelimit.New(limiterStore)

	throttle := middleware.NewIPThrottle(cfg.IPRatePerMinute)
	run(throttle.Start)

	// ─── Initialize Services ──────────────────────────────────────────
	store := repository.NewPgStore(pool)
	monitorService := service.NewMonitorService(repository.NewMonitorRepository(pool), rdb, log)
	authService := service.NewAuthService(cfg)

	var queue service.EventQueue
	if cfg.AntiCheatAsync {
		queue = worker.NewRedisEventQueue(rdb)
	}

	attemptService := service.NewAttemptService(store, authService, monitorService, cfg, log)
	progressService := service.NewProgressService(store, cfg)
	antiCheatService := service.NewAntiCheatService(store, queue, monitorService, cfg, log)
	paperService := service.NewPaperService(store, service.NewQuestionCache(rdb, cfg.ExamPayloadTTL, log), hasher)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt:   handler.NewAttemptHandler(attemptService, log),
		Progress:  handler.NewProgressHandler(progressService, log),
		AntiCheat: handler.NewAntiCheatHandler(antiCheatService, log),
		Paper:     handler.NewPaperHandler(paperService, log),
		Monitor:   handler.NewMonitorHandler(monitorService, store.Exams(), cfg.MonitorKeepAlive, log),
		WS:        handler.NewWSHandler(progressService, antiCheatService, attemptService, limiter, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	run(worker.NewExpiryWorker(attemptService, cfg.ExpirySweep, log).Start)
	if cfg.AntiCheatAsync {
		run(worker.NewAntiCheatWorker(store.AntiCheat(), rdb, cfg, log).Start)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Deps{
		Auth:     authService,
		Limiter:  limiter,
		Throttle: throttle,
		Log:      log,
	}, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

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

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.WorkerDrainTimeout + time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
