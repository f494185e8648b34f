// Package main runs the event platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/backend/config"
	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/internal/categories"
	"github.com/aura-events/backend/internal/comments"
	"github.com/aura-events/backend/internal/compilations"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/requests"
	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/internal/users"
	"github.com/aura-events/backend/internal/worker"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/queue"
	"github.com/aura-events/backend/pkg/redis"
	"github.com/aura-events/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	tx := database.NewTransactor(pool)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// View counts: hits go through the Redis queue, counts come from the stats service.
	jobQueue := queue.NewQueue(rdb.Client, cfg.Worker.MaxRetries, logger)
	statsClient := stats.NewClient(cfg.Stats.BaseURL, cfg.Stats.Timeout)
	views := stats.NewQueuedCounter(jobQueue, statsClient, logger)

	userRepo := users.NewRepository(pool)
	categoryRepo := categories.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	requestRepo := requests.NewRepository(pool)
	commentRepo := comments.NewRepository(pool)
	compilationRepo := compilations.NewRepository(pool)

	eventService := events.NewService(events.Deps{
		Store:      eventRepo,
		Tx:         tx,
		Categories: categoryRepo,
		Users:      userRepo,
		Confirmed:  requestRepo,
		Views:      views,
		AppName:    cfg.Stats.AppName,
		Logger:     logger,
	})
	allocator := requests.NewAllocator(tx, eventRepo, userRepo, requestRepo, logger)
	commentService := comments.NewService(commentRepo, tx, eventRepo, userRepo, logger)
	compilationService := compilations.NewService(compilationRepo, tx, eventService, logger)

	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	userHandler := users.NewHandler(userRepo, logger)
	categoryHandler := categories.NewHandler(categoryRepo)
	eventHandler := events.NewHandler(eventService)
	requestHandler := requests.NewHandler(allocator)
	commentHandler := comments.NewHandler(commentService)
	compilationHandler := compilations.NewHandler(compilationService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}
	router.GET("/events", eventHandler.PublicSearch)
	router.GET("/events/:id", eventHandler.PublicGet)
	router.GET("/events/:id/comments", commentHandler.ListByEvent)
	router.GET("/events/:id/comments/:commentId", commentHandler.Get)
	router.GET("/categories", categoryHandler.List)
	router.GET("/categories/:id", categoryHandler.Get)
	router.GET("/compilations", compilationHandler.List)
	router.GET("/compilations/:id", compilationHandler.Get)

	// Private (JWT required)
	me := router.Group("/users/me")
	me.Use(middleware.JWT(jwtService))
	{
		me.POST("/events", eventHandler.Create)
		me.GET("/events", eventHandler.ListMine)
		me.GET("/events/:id", eventHandler.GetMine)
		me.PATCH("/events/:id", eventHandler.UpdateMine)
		me.GET("/events/:id/requests", requestHandler.ListForEvent)
		me.PATCH("/events/:id/requests", requestHandler.UpdateStatuses)
		me.POST("/requests", requestHandler.Create)
		me.GET("/requests", requestHandler.ListMine)
		me.PATCH("/requests/:id/cancel", requestHandler.Cancel)
		me.POST("/events/:id/comments", commentHandler.Create)
		me.GET("/events/:id/comments", commentHandler.ListMine)
		me.PATCH("/events/:id/comments/:commentId", commentHandler.Update)
		me.DELETE("/events/:id/comments/:commentId", commentHandler.Delete)
		me.POST("/events/:id/comments/:commentId/report", commentHandler.Report)
	}

	// Admin
	admin := router.Group("/admin")
	admin.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/events", eventHandler.AdminSearch)
		admin.PATCH("/events/:id", eventHandler.AdminUpdate)
		admin.DELETE("/events/:id/comments/:commentId", commentHandler.AdminDelete)
		admin.PATCH("/events/:id/comments/:commentId/restore", commentHandler.Restore)
		admin.GET("/comments/reported", commentHandler.ListReported)
		admin.GET("/comments/deleted", commentHandler.ListDeleted)

		admin.POST("/categories", categoryHandler.Create)
		admin.PATCH("/categories/:id", categoryHandler.Update)
		admin.DELETE("/categories/:id", categoryHandler.Delete)

		admin.POST("/users", userHandler.Create)
		admin.GET("/users", userHandler.List)
		admin.DELETE("/users/:id", userHandler.Delete)

		admin.POST("/compilations", compilationHandler.Create)
		admin.PATCH("/compilations/:id", compilationHandler.Update)
		admin.DELETE("/compilations/:id", compilationHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Worker.Inline {
		processor := worker.NewHitProcessor(jobQueue, statsClient, cfg.Worker.RetryBackoff, logger)
		go processor.Run(workerCtx)
		logger.Info("hit worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
