package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/common/otel"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/queue"
	"github.com/sr-verde/gitmentario/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "gitmentario worker starting",
		"env", cfg.Env,
		"stream", cfg.Recovery.Stream,
		"consumer_group", cfg.Recovery.Group,
		"consumer_name", cfg.Recovery.Consumer)

	client, err := forge.New(cfg.Forge)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create forge client", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Recovery.Stream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Recovery.Stream,
		Group:        cfg.Recovery.Group,
		Consumer:     cfg.Recovery.Consumer,
		DLQStream:    cfg.Recovery.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Recovery.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := worker.NewReviewRequestProcessor(client, forge.RetryPolicyFrom(cfg.Publish))
	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: cfg.Recovery.MaxAttempts,
	})

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:        cfg.Recovery.Stream,
		Group:         cfg.Recovery.Group,
		Consumer:      cfg.Recovery.Consumer + "-reclaimer",
		MinIdle:       cfg.Recovery.ClaimIdle,
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(cfg.Recovery.MaxAttempts),
	}, consumer, w.Handle)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// reclaimer first, the worker may be in the middle of a forge call
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
       _ _                       _             _
  __ _(_) |_ _ __ ___   ___ _ __ | |_ __ _ _ __(_) ___
 / _' | | __| '_ ' _ \ / _ \ '_ \| __/ _' | '__| |/ _ \
| (_| | | |_| | | | | |  __/ | | | || (_| | |  | | (_) |
 \__, |_|\__|_| |_| |_|\___|_| |_|\__\__,_|_|  |_|\___/
 |___/                                          worker
`
