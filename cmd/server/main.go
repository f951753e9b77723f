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

	"capture-service/config"
	"capture-service/internal/api"
	"capture-service/internal/broker"
	"capture-service/internal/gateway"
	"capture-service/internal/redisclient"
	"capture-service/internal/service"
	"capture-service/internal/store"
	"capture-service/internal/util"
	"capture-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting capture service")

	tp, err := util.InitTracer("capture-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gatewayClient := gateway.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.Currency)

	machine := service.NewCaptureStateMachine(db, gatewayClient, eventPublisher, cfg.Capture.MaxRetryAttempts)
	orchestrator := service.NewBatchOrchestrator(
		db, redisClient, machine,
		cfg.Capture.BatchSize, cfg.Capture.MaxRetryAttempts, cfg.Capture.Concurrency,
		cfg.Capture.LockTTL, cfg.Capture.OrderTimeout,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, db)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	// In-process schedules back up the external HTTP trigger. Overlapping
	// passes are safe: per-order exclusivity comes from the lock plus the
	// conditional transition, not from single-triggering.
	cronScheduler := cron.New()

	_, err = cronScheduler.AddFunc(cfg.Capture.PassSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		summary, err := orchestrator.RunPass(ctx)
		if err != nil {
			log.Printf("[CRON] Capture pass error: %v", err)
			return
		}
		log.Printf("[CRON] Capture pass: processed=%d, captured=%d, skipped=%d, failed=%d",
			summary.Processed, summary.Captured, summary.Skipped, summary.Failed)
	})
	if err != nil {
		log.Printf("Failed to add capture pass job: %v", err)
	}

	_, err = cronScheduler.AddFunc(cfg.Capture.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		reclaimed, err := orchestrator.SweepStuckOrders(ctx)
		if err != nil {
			log.Printf("[CRON] Stuck-order sweep error: %v", err)
			return
		}
		if reclaimed > 0 {
			log.Printf("[CRON] Stuck-order sweep reclaimed %d orders", reclaimed)
		}
	})
	if err != nil {
		log.Printf("Failed to add stuck-order sweep job: %v", err)
	}

	cronScheduler.Start()
	defer cronScheduler.Stop()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orchestrator, cfg.Capture.CronKey)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
