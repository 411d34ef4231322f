package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/checkio-backend/internal/config"
	"github.com/stemsi/checkio-backend/internal/handler"
	"github.com/stemsi/checkio-backend/internal/metrics"
	"github.com/stemsi/checkio-backend/internal/middleware"
	"github.com/stemsi/checkio-backend/internal/response"
	"github.com/stemsi/checkio-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	CheckIO    *handler.CheckIOHandler
	Attendance *handler.AttendanceHandler
	Student    *handler.StudentHandler
	User       *handler.UserHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background goroutines owned by middlewares (rate limiter sweep).
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	m *metrics.Metrics,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(m.Middleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	pinLimiter := middleware.NewRateLimiter(ctx, cfg.PinRateLimitPerMin, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/verify-pin", pinLimiter.Middleware(), handlers.Auth.VerifyPin)

		signedIn := auth.Group("", middleware.RequireJWT(authService), middleware.CheckSession(authService))
		signedIn.GET("/session", handlers.Auth.Session)
		signedIn.POST("/logout", handlers.Auth.Logout)
	}

	api := router.Group("/api/v1")
	api.Use(
		middleware.RequireJWT(authService),
		middleware.CheckSession(authService),
	)

	// ─── 2. Board (every role) ─────────────────────────────────────────
	checkio := api.Group("/checkio")
	{
		checkio.GET("/board", handlers.CheckIO.Board)
		checkio.POST("/check-in", handlers.CheckIO.CheckIn)
		checkio.POST("/check-out", handlers.CheckIO.CheckOut)
	}

	// ─── 3. Attendance Logs (staff read, admin delete) ────────────────
	attendance := api.Group("/attendance")
	attendance.Use(middleware.RequireStaff(), middleware.NoStore())
	{
		attendance.GET("/logs", handlers.Attendance.ListLogs)
		attendance.GET("/logs/compressed", handlers.Attendance.CompressedLogs)
		attendance.GET("/logs/export", handlers.Attendance.ExportRaw)
		attendance.GET("/logs/export/compressed", handlers.Attendance.ExportCompressed)
		attendance.GET("/logs/export/all", middleware.RequireAdmin(), handlers.Attendance.ExportAll)

		attendance.GET("/cleanup/preview", middleware.RequireAdmin(), handlers.Attendance.CleanupPreview)
		attendance.GET("/cleanup/export", middleware.RequireAdmin(), handlers.Attendance.CleanupExport)

		destructive := attendance.Group("", middleware.RequireAdmin(), middleware.RequireConfirm())
		destructive.DELETE("/logs/before/:date", handlers.Attendance.DeleteBefore)
		destructive.DELETE("/logs/:id", handlers.Attendance.DeleteLog)
		destructive.DELETE("/logs", handlers.Attendance.DeleteAll)
	}

	// ─── 4. Admin Group (roster and accounts) ──────────────────────────
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/students", handlers.Student.ListStudents)
		admin.POST("/students", handlers.Student.CreateStudent)
		admin.PUT("/students/:id", handlers.Student.UpdateStudent)
		admin.DELETE("/students/:id", middleware.RequireConfirm(), handlers.Student.DeleteStudent)

		admin.GET("/users", handlers.User.ListUsers)
		admin.GET("/users/pin-available", handlers.User.PinAvailable)
		admin.POST("/users", handlers.User.CreateUser)
		admin.PUT("/users/:id", handlers.User.UpdateUser)
		admin.DELETE("/users/:id", middleware.RequireConfirm(), handlers.User.DeleteUser)

		admin.GET("/system/status", handlers.System.StatusSSE)
	}

	// ─── 5. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService), middleware.CheckSession(authService))
	{
		ws.GET("/board", handlers.WS.BoardStream)
	}

	return router
}
