package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"refill-api-server/config"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/mail"
	"refill-api-server/internal/notify"
)

func main() {
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	appLog, err := logger.New(logger.Config{Level: cfg.Logger.Level, Development: cfg.Logger.Development})
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Notify.Concurrency + 2,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLog.Fatalw("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
	}

	sender, err := mail.NewSender(cfg.SMTP)
	if err != nil {
		appLog.Fatalw("invalid smtp configuration", "error", err)
	}

	queue := notify.NewQueue(rdb, cfg.Redis.QueueKey, appLog)
	worker := notify.NewWorker(queue, sender, notify.WorkerConfig{
		Concurrency: cfg.Notify.Concurrency,
		MaxAttempts: cfg.Notify.MaxAttempts,
		PollTimeout: cfg.Notify.PollTimeout,
	}, appLog)

	appLog.Infow("notification worker started", "queue", cfg.Redis.QueueKey, "concurrency", cfg.Notify.Concurrency)
	worker.Run(ctx)
	appLog.Infow("notification worker stopped")
}
