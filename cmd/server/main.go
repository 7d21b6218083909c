// Package main runs the drowsiness monitoring HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drowsyguard/backend/config"
	"github.com/drowsyguard/backend/internal/auth"
	"github.com/drowsyguard/backend/internal/classifier"
	"github.com/drowsyguard/backend/internal/dashboard"
	"github.com/drowsyguard/backend/internal/detection"
	"github.com/drowsyguard/backend/internal/history"
	"github.com/drowsyguard/backend/internal/metrics"
	"github.com/drowsyguard/backend/internal/middleware"
	"github.com/drowsyguard/backend/internal/realtime"
	"github.com/drowsyguard/backend/internal/settings"
	"github.com/drowsyguard/backend/internal/worker"
	"github.com/drowsyguard/backend/pkg/database"
	"github.com/drowsyguard/backend/pkg/queue"
	"github.com/drowsyguard/backend/pkg/redis"
	"github.com/drowsyguard/backend/pkg/response"
	"github.com/drowsyguard/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			SoundsBucket:         cfg.AWS.SoundsBucket,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Settings
	settingsRepo := settings.NewRepository(pool)
	settingsHandler := settings.NewHandler(settingsRepo, s3Client, logger)

	// Detection pipeline
	model := classifier.NewHTTPClient(cfg.Classifier.URL, time.Duration(cfg.Classifier.TimeoutSec)*time.Second)
	detectionRepo := detection.NewRepository(pool)
	registry := detection.NewRegistry()
	jobQueue := queue.NewQueue(rdb.Client, logger)
	promMetrics := metrics.New()
	detectionSvc := detection.NewService(detection.Config{
		Smoother: detection.SmootherConfig{
			Window:     cfg.Detection.SmoothingWindow,
			MinBoxSize: cfg.Detection.MinBoxSize,
			MaxBoxFrac: cfg.Detection.MaxBoxFrac,
		},
		Debounce: detection.DebounceConfig{
			TriggerFrames: cfg.Detection.TriggerFrames,
			Cooldown:      time.Duration(cfg.Detection.CooldownSec) * time.Second,
		},
		MinConfidence: cfg.Detection.MinConfidence,
		IdleTimeout:   time.Duration(cfg.Detection.IdleTimeoutSec) * time.Second,
		SweepInterval: time.Duration(cfg.Detection.SweepIntervalSec) * time.Second,
	}, registry, model, detectionRepo, logger).
		WithSettings(settingsRepo).
		WithEvents(hub).
		WithQueue(jobQueue).
		WithMetrics(promMetrics)
	detectionHandler := detection.NewHandler(detectionSvc, jwtService)
	detectionProcessor := worker.NewDetectionProcessor(detectionRepo, jobQueue, logger)

	// History and dashboard
	historyRepo := history.NewRepository(pool)
	historyHandler := history.NewHandler(historyRepo, s3Client, logger)
	dashboardHandler := dashboard.NewHandler(pool, historyRepo)

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health: server is up; classifier status is advisory.
	router.GET("/health", func(c *gin.Context) {
		modelStatus := "ok"
		probeCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := model.Health(probeCtx); err != nil {
			modelStatus = "unavailable"
		}
		response.OK(c, gin.H{"status": "ok", "model_service": modelStatus})
	})
	router.GET("/metrics", gin.WrapH(promMetrics.Handler()))

	// Auth (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Abandon is reachable without the JWT middleware: sendBeacon carries the
	// token in the body instead of a header.
	router.POST("/api/detection/sessions/abandon", detectionHandler.Abandon)

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.PUT("/auth/profile", authHandler.UpdateProfile)

		// Detection sessions
		api.POST("/detection/sessions", detectionHandler.Start)
		api.POST("/detection/sessions/:id/frames", detectionHandler.AnalyzeFrame)
		api.POST("/detection/sessions/:id/stop", detectionHandler.Stop)
		api.POST("/detection/analyze-file", detectionHandler.AnalyzeFile)

		// Settings
		api.GET("/settings/alarm", settingsHandler.Get)
		api.PUT("/settings/alarm", settingsHandler.Update)
		api.POST("/settings/alarm/sounds", settingsHandler.UploadSound)
		api.GET("/settings/alarm/sounds", settingsHandler.ListSounds)
		api.DELETE("/settings/alarm/sounds/:name", settingsHandler.DeleteSound)

		// History
		api.GET("/history/sessions", historyHandler.List)
		api.GET("/history/sessions/:id", historyHandler.Get)
		api.GET("/history/summary", historyHandler.Summary)
		api.GET("/history/export", historyHandler.Export)

		// Dashboard
		api.GET("/dashboard/stats", dashboardHandler.Stats)
		api.GET("/dashboard/recent-sessions", dashboardHandler.RecentSessions)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops: idle-session sweeper and detection event persistence.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go detectionSvc.RunSweeper(workerCtx)
	go detectionProcessor.Run(workerCtx)

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
