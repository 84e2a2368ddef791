package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/arka-labs/academy-api/api/swagger"
	"github.com/arka-labs/academy-api/internal/handler"
	"github.com/arka-labs/academy-api/internal/middleware"
	"github.com/arka-labs/academy-api/internal/models"
	"github.com/arka-labs/academy-api/internal/repository"
	"github.com/arka-labs/academy-api/internal/service"
	"github.com/arka-labs/academy-api/pkg/cache"
	"github.com/arka-labs/academy-api/pkg/config"
	"github.com/arka-labs/academy-api/pkg/database"
	"github.com/arka-labs/academy-api/pkg/logger"
	"github.com/arka-labs/academy-api/pkg/mailer"
	corsmiddleware "github.com/arka-labs/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arka-labs/academy-api/pkg/middleware/requestid"
	"github.com/arka-labs/academy-api/pkg/storage"
)

// @title Academy API
// @version 1.0.0
// @description Attendance and level progression engine for the coaching academy dashboard
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Stats fall back to direct queries without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	mockRepo := repository.NewMockTestRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	userRepo := repository.NewUserRepository(db)

	var statsCache *repository.CacheRepository
	if cfg.Stats.CacheEnabled && redisClient != nil {
		statsCache = repository.NewCacheRepository(redisClient, logr)
	}

	// Outbound email.
	var mail mailer.Mailer
	if cfg.Mailer.Enabled && cfg.Mailer.SendgridKey != "" {
		mail = mailer.NewSendgrid(cfg.Mailer, logr)
	} else {
		mail = mailer.NewLog(logr)
	}
	notifications := service.NewNotificationService(mail, cfg.Mailer.Workers, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	// Report storage.
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	calendarSvc := service.NewCalendarService(batchRepo, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, batchRepo, cacheOrNil(statsCache), cfg.Stats.CacheTTL, validate, logr)
	progressSvc := service.NewProgressService(scoreRepo, mockRepo, studentRepo, attendanceRepo, cacheOrNil(statsCache), validate, logr)
	mockSvc := service.NewMockTestService(mockRepo, scoreRepo, cacheOrNil(statsCache), cfg.Stats.CacheTTL, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, studentRepo, attendanceRepo, cacheOrNil(statsCache), validate, logr)
	studentSvc := service.NewStudentService(studentRepo, batchRepo, notifications, cacheOrNil(statsCache), validate, logr)
	exportSvc := service.NewExportService(studentRepo, attendanceRepo, scoreRepo, batchRepo, mockRepo, store, signer, logr)

	// The ten level tests are singletons provisioned at startup.
	if created, err := mockSvc.EnsureDefaultLevels(ctx); err != nil {
		logr.Sugar().Fatalw("failed to provision level tests", "error", err)
	} else if created > 0 {
		logr.Sugar().Infow("level tests created", "count", created)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	batchHandler := handler.NewBatchHandler(batchSvc, calendarSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, metricsSvc)
	mockHandler := handler.NewMockTestHandler(mockSvc)
	progressHandler := handler.NewProgressHandler(progressSvc, metricsSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/exports/download", exportHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/metrics/snapshot", metricsHandler.Snapshot)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))

	admin.GET("/students", studentHandler.List)
	admin.POST("/students", studentHandler.Create)
	admin.GET("/students/:id", studentHandler.Get)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.DELETE("/students/:id", studentHandler.Delete)
	admin.PUT("/students/:id/batch", studentHandler.AssignBatch)
	admin.DELETE("/students/:id/batch", studentHandler.UnassignBatch)

	admin.GET("/students/:id/attendance", attendanceHandler.List)
	admin.POST("/students/:id/attendance/reconcile", attendanceHandler.Reconcile)
	admin.POST("/students/:id/attendance/migrate", attendanceHandler.MigrateLegacy)
	admin.POST("/attendance", attendanceHandler.Mark)

	admin.GET("/students/:id/progress", progressHandler.Get)
	admin.GET("/students/:id/scores", progressHandler.Scores)
	admin.POST("/scores", progressHandler.RecordScore)

	admin.GET("/batches", batchHandler.List)
	admin.POST("/batches", batchHandler.Create)
	admin.GET("/batches/:id", batchHandler.Get)
	admin.PUT("/batches/:id", batchHandler.Update)
	admin.DELETE("/batches/:id", batchHandler.Delete)
	admin.GET("/batches/:id/calendar", batchHandler.Calendar)
	admin.GET("/batches/:id/students", batchHandler.Students)
	admin.GET("/batches/:id/attendance/stats", attendanceHandler.BatchStats)
	admin.POST("/batches/:id/attendance/export", exportHandler.BatchAttendance)

	admin.GET("/mock-tests", mockHandler.List)
	admin.POST("/mock-tests", mockHandler.Create)
	admin.GET("/mock-tests/:id", mockHandler.Get)
	admin.PUT("/mock-tests/:id", mockHandler.Update)
	admin.DELETE("/mock-tests/:id", mockHandler.Delete)
	admin.GET("/mock-tests/:id/stats", mockHandler.Stats)
	admin.POST("/mock-tests/:id/results/export", exportHandler.MockResults)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// cacheOrNil converts a possibly-nil concrete cache into the interface the
// services accept without producing a typed nil.
func cacheOrNil(c *repository.CacheRepository) serviceStatsCache {
	if c == nil {
		return nil
	}
	return c
}

type serviceStatsCache = interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}
