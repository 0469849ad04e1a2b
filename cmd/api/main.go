package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"refill-api-server/config"
	"refill-api-server/internal/api/routes"
	"refill-api-server/internal/auth"
	"refill-api-server/internal/database"
	"refill-api-server/internal/directory"
	"refill-api-server/internal/ledger"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/notify"
	"refill-api-server/internal/s3"
	"refill-api-server/internal/socket"
	"refill-api-server/internal/store"
	"refill-api-server/internal/store/memstore"
	"refill-api-server/internal/store/mongostore"
	"refill-api-server/internal/workflow"
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

	docs, closeStore, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatalw("failed to open document store", "driver", cfg.Store.Driver, "error", err)
	}
	defer closeStore()

	hub := socket.NewHub(appLog)
	gateways := notify.Fanout{hub}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLog.Warnw("redis unreachable, email notifications are disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			gateways = append(gateways, notify.NewQueue(rdb, cfg.Redis.QueueKey, appLog))
		}
	}

	var receipts workflow.ReceiptStore
	if cfg.S3.Bucket != "" {
		uploader, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			appLog.Fatalw("failed to create S3 uploader", "error", err)
		}
		receipts = uploader
	} else {
		appLog.Warnw("s3.bucket is not set, receipt uploads are disabled")
	}

	inventory := ledger.New(docs,
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithLogger(appLog),
	)
	dir := directory.New(docs, appLog)
	if _, err := database.SeedAdmin(ctx, dir, cfg.Seed, appLog); err != nil {
		appLog.Fatalw("failed to seed admin", "error", err)
	}
	deps := workflow.Deps{
		Ledger:     inventory,
		Receipts:   receipts,
		Recipients: dir,
		Gateway:    gateways,
		Templates:  notify.MustTemplates(),
		Logger:     appLog,
	}
	wfConfig := workflow.Config{
		ArchiveRejected: cfg.Workflow.ArchiveRejected,
		MaxRetries:      cfg.Workflow.MaxRetries,
	}
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Expiration)

	gin.SetMode(cfg.Server.Mode)
	router := routes.SetupRouter(routes.Dependencies{
		Ledger:           inventory,
		ItemRequests:     workflow.NewItemRequests(docs, wfConfig, deps),
		PurchaseRequests: workflow.NewPurchaseRequests(docs, wfConfig, deps),
		Directory:        dir,
		Hub:              hub,
		Tokens:           tokens,
		Logger:           appLog,
		CORSOrigins:      cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Infow("starting API server", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatalw("failed to run server", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Infow("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Errorw("graceful shutdown failed", "error", err)
	}
}

func collectionNames(cfg config.StoreConfig) map[store.Kind]string {
	names := make(map[store.Kind]string, len(cfg.Collections))
	for kind, name := range cfg.Collections {
		names[store.Kind(kind)] = name
	}
	return names
}

// openStore returns the configured document store and a func that releases
// it.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Store, func(), error) {
	registry := store.DefaultRegistry(collectionNames(cfg.Store))
	if cfg.Store.Driver == "memory" {
		log.Warnw("using the in-memory store, data is lost on restart")
		return memstore.New(registry), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongostore.Connect(connectCtx, cfg.Mongo.URI)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}

	docs := mongostore.New(client.Database(cfg.Mongo.DBName), registry, cfg.Store.BatchSize, log)
	if err := docs.EnsureIndexes(connectCtx); err != nil {
		release()
		return nil, nil, err
	}
	log.Infow("connected to MongoDB", "db", cfg.Mongo.DBName)
	return docs, release, nil
}
