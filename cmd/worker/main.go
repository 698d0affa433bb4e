package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"labattend/internal/archive"
	"labattend/internal/config"
	"labattend/internal/directory"
	"labattend/internal/logging"
	"labattend/internal/queue"
	"labattend/internal/store"
)

// Worker consumes completed sessions and archives their exports.
func main() {
	envFiles, envErr := config.LoadDotEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New("worker", cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Warn("dotenv", zap.Error(envErr))
	}
	if len(envFiles) > 0 {
		log.Info("loaded env files", zap.Strings("files", envFiles))
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := directory.LoadSeed(cfg.SeedFile)
	if err != nil {
		log.Fatal("load seed", zap.Error(err))
	}
	dir, err := directory.NewMemory(seed)
	if err != nil {
		log.Fatal("directory", zap.Error(err))
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if !rdb.Healthy(ctx) {
			log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
		}
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("labattend-worker"), nats.MaxReconnects(-1))
		if err != nil {
			log.Fatal("nats connect failed", zap.Error(err))
		}
		defer nc.Drain()
		q = queue.NewNATSQueue(nc, cfg.QueueKey)
	default:
		log.Fatal("the worker needs a shared queue; set QUEUE_BACKEND to redis or nats")
	}

	w := archive.NewWriter(cfg.ExportDir, dir, log)
	if err := w.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
