package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/pkg/docapi"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
	"github.com/feichai0017/document-ingest/pkg/worker"
)

func main() {
	apiCfg := config.GetAPIConfig()
	redisCfg := config.GetRedisConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(apiCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !redisCfg.Enabled() {
		log.Fatal("REDIS_ADDR is required to run the retry worker")
	}

	client := docapi.NewClient(docapi.Config{
		BaseURL:   apiCfg.BaseURL,
		AuthToken: apiCfg.AuthToken,
	}, log.Named("docapi"))

	journal := queue.NewJournal(&queue.QueueConfig{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
	}, redisCfg.JournalTTL)
	defer journal.Close()

	retryWorker := worker.NewStageRetryWorker(&worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   redisCfg.Concurrency,
	}, worker.NewStageRetryHandler(client, journal, log), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := retryWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Retry worker started", logger.String("redis", redisCfg.Addr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	retryWorker.Stop()
	log.Info("Worker stopped")
}
