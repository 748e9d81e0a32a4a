package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/fpnet-io/fpnet-api/api/swagger"
	"github.com/fpnet-io/fpnet-api/internal/handler"
	"github.com/fpnet-io/fpnet-api/internal/middleware"
	"github.com/fpnet-io/fpnet-api/internal/models"
	"github.com/fpnet-io/fpnet-api/internal/repository"
	"github.com/fpnet-io/fpnet-api/internal/service"
	"github.com/fpnet-io/fpnet-api/pkg/cache"
	"github.com/fpnet-io/fpnet-api/pkg/config"
	"github.com/fpnet-io/fpnet-api/pkg/database"
	"github.com/fpnet-io/fpnet-api/pkg/jobs"
	"github.com/fpnet-io/fpnet-api/pkg/logger"
	corsmiddleware "github.com/fpnet-io/fpnet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fpnet-io/fpnet-api/pkg/middleware/requestid"
	"github.com/fpnet-io/fpnet-api/pkg/storage"
)

// @title FPNet Admin API
// @version 1.0.0
// @description Administration API for the vocational education network: forms, responses, dashboards, messaging and topology.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	formRepo := repository.NewFormRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	networkRepo := repository.NewNetworkRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Redis is optional; without it dashboards recompute on every request.
	var cacheService *service.CacheService
	if cfg.Dashboard.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, dashboard caching disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr, true)
		}
	}

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "fpnet-api",
		Audience:           []string{"fpnet-admin"},
	})
	userService := service.NewUserService(userRepo, validate, logr)
	yearService := service.NewAcademicYearService(yearRepo, validate, logr)
	formService := service.NewFormService(formRepo, yearRepo, userRepo, cacheService, service.AttachmentPolicy{
		MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
	}, validate, logr)
	responseService := service.NewResponseService(responseRepo, formRepo, cacheService, logr)
	dashboardService := service.NewDashboardService(formRepo, responseRepo, yearRepo, cacheService, cfg.Dashboard.CacheTTL, logr)
	messageService := service.NewMessageService(messageRepo, userRepo, validate, logr)
	networkService := service.NewNetworkService(networkRepo, validate, logr)

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init export storage", zap.Error(err))
		}
		exportService = service.NewExportService(service.ExportServiceParams{
			Forms:     formRepo,
			Responses: responseRepo,
			Store:     exportStore,
			Signer:    storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
			Metrics:   metricsService,
			Validator: validate,
			Logger:    logr,
			Queue: jobs.QueueConfig{
				Workers:    cfg.Exports.WorkerConcurrency,
				MaxRetries: cfg.Exports.WorkerRetries,
				Logger:     logr,
			},
		})
		exportService.Start(ctx)
		defer exportService.Stop()
		exportService.StartCleanup(ctx, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)
	}

	settingsParams := service.SettingsServiceParams{
		Repo:           settingsRepo,
		Forms:          formRepo,
		Responses:      responseRepo,
		Audit:          userRepo,
		HTTPTimeout:    cfg.UpdateCheck.Timeout,
		CurrentVersion: cfg.UpdateCheck.CurrentVersion,
		Validator:      validate,
		Logger:         logr,
	}
	if cfg.UpdateCheck.Enabled {
		settingsParams.ReleasesURL = cfg.UpdateCheck.ReleasesURL
	}
	if cfg.Backups.Enabled {
		backupStore, err := storage.NewLocalStorage(cfg.Backups.StorageDir)
		if err != nil {
			logr.Fatal("failed to init backup storage", zap.Error(err))
		}
		settingsParams.BackupStore = backupStore
		settingsParams.BackupSigner = storage.NewSignedURLSigner(cfg.Backups.SignedURLSecret, cfg.Backups.SignedURLTTL)
	}
	settingsService := service.NewSettingsService(settingsParams)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	yearHandler := handler.NewAcademicYearHandler(yearService)
	formHandler := handler.NewFormHandler(formService)
	responseHandler := handler.NewResponseHandler(responseService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	messageHandler := handler.NewMessageHandler(messageService)
	networkHandler := handler.NewNetworkHandler(networkService)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.PUT("/password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	secured := api.Group("", middleware.JWT(authService))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)

	users := secured.Group("/users", adminOnly)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	years := secured.Group("/academic-years")
	{
		years.GET("", yearHandler.List)
		years.GET("/active", yearHandler.Active)
		years.GET("/:id", yearHandler.Get)
		years.POST("", adminOnly, yearHandler.Create)
		years.PUT("/:id", adminOnly, yearHandler.Update)
		years.POST("/:id/activate", adminOnly, yearHandler.Activate)
		years.DELETE("/:id", adminOnly, yearHandler.Delete)
	}

	forms := secured.Group("/forms")
	{
		forms.GET("", formHandler.List)
		forms.GET("/:id", formHandler.Get)
		forms.POST("", reviewers, formHandler.Create)
		forms.PUT("/:id", reviewers, formHandler.Update)
		forms.POST("/:id/publish", reviewers, formHandler.Publish)
		forms.POST("/:id/pause", reviewers, formHandler.Pause)
		forms.POST("/:id/resume", reviewers, formHandler.Resume)
		forms.POST("/:id/close", reviewers, formHandler.Close)
		forms.POST("/:id/duplicate", reviewers, formHandler.Duplicate)
		forms.DELETE("/:id", adminOnly, formHandler.Delete)

		forms.GET("/:id/can-respond", responseHandler.CanRespond)
		forms.POST("/:id/responses", responseHandler.Start)
		forms.GET("/:id/responses", reviewers, responseHandler.ListByForm)
		forms.GET("/:id/responses/mine", responseHandler.ListMine)
	}

	responses := secured.Group("/responses")
	{
		responses.GET("/:id", responseHandler.Get)
		responses.PUT("/:id", responseHandler.Save)
	}

	dashboard := secured.Group("/dashboard", reviewers)
	{
		dashboard.GET("/overview", dashboardHandler.Overview)
		dashboard.GET("/forms/:id", dashboardHandler.Form)
	}

	if exportService != nil {
		exportHandler := handler.NewExportHandler(exportService)
		exports := api.Group("/exports")
		{
			// Download is token-guarded, not JWT-guarded.
			exports.GET("/download/:token", exportHandler.Download)

			authedExports := exports.Group("", middleware.JWT(authService), reviewers)
			authedExports.POST("", exportHandler.Create)
			authedExports.GET("/:id", exportHandler.Get)
		}
	}

	messages := secured.Group("/messages")
	{
		messages.POST("", messageHandler.Send)
		messages.GET("/inbox", messageHandler.Inbox)
		messages.GET("/sent", messageHandler.Sent)
		messages.POST("/:id/read", messageHandler.MarkRead)
		messages.DELETE("/:id", messageHandler.Delete)
	}

	network := secured.Group("/network")
	{
		network.GET("/subnets", networkHandler.ListSubnets)
		network.GET("/subnets/:id", networkHandler.GetSubnet)
		network.POST("/subnets", adminOnly, networkHandler.CreateSubnet)
		network.PUT("/subnets/:id", adminOnly, networkHandler.UpdateSubnet)
		network.DELETE("/subnets/:id", adminOnly, networkHandler.DeleteSubnet)

		network.GET("/centers", networkHandler.ListCenters)
		network.GET("/centers/:id", networkHandler.GetCenter)
		network.POST("/centers", adminOnly, networkHandler.CreateCenter)
		network.PUT("/centers/:id", adminOnly, networkHandler.UpdateCenter)
		network.DELETE("/centers/:id", adminOnly, networkHandler.DeleteCenter)
	}

	settings := api.Group("/settings")
	{
		settings.GET("/backups/download/:token", settingsHandler.DownloadBackup)

		authedSettings := settings.Group("", middleware.JWT(authService), adminOnly)
		authedSettings.GET("", settingsHandler.List)
		authedSettings.PUT("", settingsHandler.Update)
		authedSettings.PUT("/bulk", settingsHandler.BulkUpdate)
		authedSettings.POST("/backups", settingsHandler.CreateBackup)
		authedSettings.GET("/updates", settingsHandler.CheckUpdates)
	}

	secured.GET("/status", adminOnly, metricsHandler.Status)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
