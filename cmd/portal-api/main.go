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

	_ "github.com/opencampus/college-portal-api/api/swagger"
	"github.com/opencampus/college-portal-api/internal/handler"
	"github.com/opencampus/college-portal-api/internal/middleware"
	"github.com/opencampus/college-portal-api/internal/models"
	"github.com/opencampus/college-portal-api/internal/repository"
	"github.com/opencampus/college-portal-api/internal/service"
	"github.com/opencampus/college-portal-api/pkg/cache"
	"github.com/opencampus/college-portal-api/pkg/config"
	"github.com/opencampus/college-portal-api/pkg/database"
	"github.com/opencampus/college-portal-api/pkg/logger"
	corsmiddleware "github.com/opencampus/college-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opencampus/college-portal-api/pkg/middleware/requestid"
)

// @title College Portal API
// @version 0.1.0
// @description No-due clearance workflow for the college administration portal
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Clearance.SnapshotCacheTTL, logr, cfg.Clearance.CacheEnabled)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "college-portal-api",
	})
	notificationSvc := service.NewNotificationService(notificationRepo, logr, cfg.Notifications)
	clearanceSvc := service.NewClearanceService(clearanceRepo, enrollmentRepo, userRepo, studentRepo, notificationSvc, cacheSvc, metricsSvc, validate, logr, cfg.Clearance)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	clearanceHandler := handler.NewClearanceHandler(clearanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	approverRoles := middleware.RequireRoles(models.RoleOffice, models.RoleLibrarian, models.RoleStaff, models.RoleHOD, models.RolePrincipal)

	clearance := protected.Group("/clearance")
	clearance.POST("", middleware.RequireRoles(models.RoleStudent), clearanceHandler.Create)
	clearance.GET("", clearanceHandler.List)
	clearance.GET("/:id", clearanceHandler.Get)
	clearance.POST("/:id/decision", approverRoles, clearanceHandler.Decide)
	clearance.POST("/bulk-approve", approverRoles, clearanceHandler.BulkApprove)
	clearance.DELETE("/:id", middleware.RequireRoles(models.RoleStudent), clearanceHandler.Delete)

	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.PUT("/:id/read", notificationHandler.MarkRead)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
