package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-pipeline/config"
	"retail-pipeline/internal/api"
	"retail-pipeline/internal/broker"
	"retail-pipeline/internal/engine"
	"retail-pipeline/internal/export"
	"retail-pipeline/internal/redisclient"
	"retail-pipeline/internal/service"
	"retail-pipeline/internal/store"
	"retail-pipeline/internal/util"
	"retail-pipeline/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting retail pipeline service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	formats, err := export.ParseFormats(cfg.Pipeline.ExportFormats)
	if err != nil {
		logger.Fatal("Invalid export formats", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Pipeline.RecentRunsLimit)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPipeline)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicPipeline))

	eventPublisher := broker.NewEventPublisher(producer)
	exporter := export.NewWriter(cfg.Pipeline.OutputDir, logger)

	pipelineService := service.NewPipelineService(db, redisClient, eventPublisher, exporter, service.Options{
		DefaultInputPath: cfg.Pipeline.InputPath,
		ExportFormats:    formats,
		LockTTL:          time.Duration(cfg.Pipeline.RunLockTTLSeconds) * time.Second,
		RecentRunsLimit:  cfg.Pipeline.RecentRunsLimit,
		Engine: engine.Options{
			HighQuantityThreshold: cfg.Pipeline.HighQuantityThreshold,
			UnknownProductLabel:   cfg.Pipeline.UnknownProductLabel,
		},
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	runConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPipeline, cfg.Kafka.ConsumerGroup)
	runWorker := worker.NewRunWorker(runConsumer, pipelineService)
	go func() {
		if err := runWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Run worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(pipelineService, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := runWorker.Stop(); err != nil {
		logger.Warn("Error stopping run worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
