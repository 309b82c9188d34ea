package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zlnvch/folio/api"
	"github.com/zlnvch/folio/blob/minio"
	"github.com/zlnvch/folio/cache/redis"
	"github.com/zlnvch/folio/config"
	"github.com/zlnvch/folio/mq/sqsmq"
	"github.com/zlnvch/folio/store/dynamo"
	"github.com/zlnvch/folio/store/postgres"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.DevMode {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to migrate grants database", zap.Error(err))
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to grants database", zap.Error(err))
	}
	defer db.Close()
	grantStore := postgres.NewGrantRepo(db)

	viewerStore, err := dynamo.NewDynamoViewerStore(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.DynamoDBTable)
	if err != nil {
		logger.Fatal("Failed to create dynamodb store", zap.Error(err))
	}

	viewerCache, err := redis.NewRedisViewerCache(ctx, cfg.DevMode, cfg.RedisEndpoint, logger)
	if err != nil {
		logger.Fatal("Failed to create redis cache", zap.Error(err))
	}

	debitQueue, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.SQSDebitQueue)
	if err != nil {
		logger.Fatal("Failed to create SQS MQ", zap.Error(err))
	}

	documents, err := minio.NewMinioDocumentStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		logger.Fatal("Failed to create document store", zap.Error(err))
	}

	jwtSecret, err := base64.StdEncoding.DecodeString(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to decode base64 jwtSecret", zap.Error(err))
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	folioApi := api.NewFolioAPI(viewerStore, grantStore, viewerCache, debitQueue, documents, jwtSecret, cfg, logger, shutdownCtx)

	mux := http.NewServeMux()
	folioApi.RegisterRoutes(mux, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:    ":" + cfg.HostPort,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting server", zap.String("hostPort", cfg.HostPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down server", zap.Error(err))
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if err := folioApi.Wait(waitCtx); err != nil {
		logger.Error("Workers did not finish flushing", zap.Error(err))
	}
}
