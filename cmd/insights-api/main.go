package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/classroom-insights-api/api/swagger"
	"github.com/noah-isme/classroom-insights-api/internal/classroom"
	"github.com/noah-isme/classroom-insights-api/internal/handler"
	"github.com/noah-isme/classroom-insights-api/internal/middleware"
	"github.com/noah-isme/classroom-insights-api/internal/repository"
	"github.com/noah-isme/classroom-insights-api/internal/service"
	"github.com/noah-isme/classroom-insights-api/pkg/cache"
	"github.com/noah-isme/classroom-insights-api/pkg/config"
	"github.com/noah-isme/classroom-insights-api/pkg/database"
	"github.com/noah-isme/classroom-insights-api/pkg/jobs"
	"github.com/noah-isme/classroom-insights-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/classroom-insights-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/classroom-insights-api/pkg/middleware/requestid"
	"github.com/noah-isme/classroom-insights-api/pkg/storage"
)

// @title Classroom Insights API
// @version 0.1.0
// @description Analytics dashboard backend aggregating Google Classroom data
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CourseCacheTTL, logr, redisClient != nil)

	classroomClient := classroom.NewClient(classroom.Params{
		BaseURL:    cfg.Classroom.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Classroom.Timeout},
		PageSize:   cfg.Classroom.PageSize,
		Logger:     logr,
		Observer:   metrics,
	})

	courseSvc := service.NewCourseAnalyticsService(service.CourseAnalyticsServiceParams{
		Provider:    classroomClient,
		Cache:       cacheSvc,
		Logger:      logr,
		CacheTTL:    cfg.Analytics.CourseCacheTTL,
		Concurrency: cfg.Classroom.FetchConcurrency,
	})
	schoolSvc := service.NewSchoolAnalyticsService(service.SchoolAnalyticsServiceParams{
		Provider:    classroomClient,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Logger:      logr,
		CacheTTL:    cfg.Analytics.SchoolCacheTTL,
		Concurrency: cfg.Classroom.FetchConcurrency,
	})

	analyticsHandler := handler.NewAnalyticsHandler(courseSvc)
	adminHandler := handler.NewAdminHandler(schoolSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	var reportHandler *handler.ReportHandler
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("database connection failed", "error", err)
		}
		defer db.Close()

		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		reportRepo := repository.NewReportRepository(db)
		if err := reportRepo.EnsureSchema(context.Background()); err != nil {
			logr.Sugar().Fatalw("report schema init failed", "error", err)
		}
		exportSvc := service.NewExportService(schoolSvc, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr)
		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})

		ctx := context.Background()
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		reportSvc.FailStaleJobs(ctx, startedAt)
		reportSvc.StartCleanup(ctx)

		reportHandler = handler.NewReportHandler(reportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authed := api.Group("", middleware.BearerToken())
	{
		authed.GET("/courses", analyticsHandler.Courses)
		authed.GET("/courses/:courseId/analytics", analyticsHandler.CourseAnalytics)
		authed.GET("/analytics/aggregate", analyticsHandler.Aggregate)
		authed.GET("/analytics/system", adminHandler.SystemMetrics)
		authed.GET("/admin/school", adminHandler.School)
	}
	if reportHandler != nil {
		authed.POST("/reports", reportHandler.Create)
		authed.GET("/reports/:id", reportHandler.Status)
		// Download authenticates through the signed token itself.
		api.GET("/export/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "reports_enabled", cfg.Reports.Enabled)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
