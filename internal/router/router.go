package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/handler"
	"github.com/stemsi/exstem-integrity/internal/metrics"
	"github.com/stemsi/exstem-integrity/internal/middleware"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/ratelimit"
	"github.com/stemsi/exstem-integrity/internal/response"
	"github.com/stemsi/exstem-integrity/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt   *handler.AttemptHandler
	Progress  *handler.ProgressHandler
	AntiCheat *handler.AntiCheatHandler
	Paper     *handler.PaperHandler
	Monitor   *handler.MonitorHandler
	WS        *handler.WSHandler
}

// Deps carries the shared middleware collaborators.
type Deps struct {
	Auth     *service.AuthService
	Limiter  *ratelimit.Limiter
	Throttle *middleware.IPThrottle
	Log      zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	limit := func(action ratelimit.Action) gin.HandlerFunc {
		return middleware.RateLimit(deps.Limiter, action, deps.Log)
	}
	paper := []gin.HandlerFunc{middleware.NoStore(), middleware.Brotli(), handlers.Paper.GetPaper}

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		deps.Throttle.Middleware(),
		middleware.RequireJWT(deps.Auth),
		middleware.RequireRole(model.RoleStudent),
	)
	{
		studentAPI.POST("/exams/:exam_id/attempts", limit(ratelimit.ActionExamStart), handlers.Attempt.Start)
		studentAPI.POST("/autosave", limit(ratelimit.ActionAutosave), handlers.Progress.Autosave)
		studentAPI.GET("/attempts/:attempt_id/progress", middleware.NoStore(), handlers.Progress.Resume)
		studentAPI.GET("/attempts/:attempt_id/paper", paper...)
		studentAPI.POST("/attempts/:attempt_id/submit", limit(ratelimit.ActionExamSubmit), handlers.Attempt.Submit)
		studentAPI.POST("/anti-cheat", limit(ratelimit.ActionAntiCheat), handlers.AntiCheat.Record)
	}

	// ─── 2. Proctor Group (proctors and admins) ────────────────────────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(
		deps.Throttle.Middleware(),
		middleware.RequireJWT(deps.Auth),
		middleware.RequireRole(model.RoleProctor, model.RoleAdmin),
	)
	{
		proctorAPI.POST("/anti-cheat", handlers.AntiCheat.Record)
		proctorAPI.GET("/attempts/:attempt_id/events", handlers.AntiCheat.List)
		proctorAPI.GET("/attempts/:attempt_id/paper", paper...)
		proctorAPI.GET("/attempts/:attempt_id/progress", middleware.NoStore(), handlers.Progress.Resume)
		proctorAPI.POST("/attempts/:attempt_id/abandon", handlers.Attempt.Abandon)
		proctorAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
	}

	// ─── 3. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		deps.Throttle.Middleware(),
		middleware.RequireJWT(deps.Auth),
		middleware.RequireRole(model.RoleAdmin),
	)
	{
		adminAPI.POST("/attempts/:attempt_id/evaluate", handlers.Attempt.Evaluate)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		deps.Throttle.Middleware(),
		middleware.RequireJWT(deps.Auth),
		middleware.RequireRole(model.RoleStudent),
	)
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
