package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sr-verde/gitmentario/common/id"
	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/common/otel"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/allocator"
	"github.com/sr-verde/gitmentario/internal/comment"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/http/handler"
	"github.com/sr-verde/gitmentario/internal/http/middleware"
	httprouter "github.com/sr-verde/gitmentario/internal/http/router"
	"github.com/sr-verde/gitmentario/internal/moderation"
	"github.com/sr-verde/gitmentario/internal/pipeline"
	"github.com/sr-verde/gitmentario/internal/publish"
	"github.com/sr-verde/gitmentario/internal/queue"
	"github.com/sr-verde/gitmentario/internal/site"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "gitmentario starting",
		"env", cfg.Env,
		"forge", cfg.Forge.Type,
		"git_push", cfg.Publish.GitPush,
		"target_branch", cfg.Publish.TargetBranch)

	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}
	tokens, err := id.Default()
	if err != nil {
		slog.ErrorContext(ctx, "failed to get id generator", "error", err)
		os.Exit(1)
	}

	client, err := forge.New(cfg.Forge)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create forge client", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected", "allocator", cfg.Allocator.Backend, "recovery", cfg.Recovery.Enabled)
	}

	var recovery queue.Producer
	if cfg.Recovery.Enabled {
		recovery = queue.NewRedisProducer(redisClient, cfg.Recovery.Stream, slog.Default())
	}

	paths := site.NewResolver(cfg.Site)
	p := pipeline.New(pipeline.Deps{
		Sites:     site.NewAdapter(client, cfg.Site, cfg.Publish.TargetBranch),
		Moderator: moderation.NewGate(),
		Allocator: allocator.New(tokens, allocator.NewLocker(cfg.Allocator, redisClient), client, paths, allocator.Options{
			Branch:   cfg.Publish.TargetBranch,
			Attempts: cfg.Allocator.Attempts,
		}),
		Paths:      paths,
		Serializer: comment.NewSerializer(cfg.Privacy),
		Strategy:   publish.New(cfg.Publish, client),
		Recovery:   recovery,
	}, pipeline.Options{
		Moderation:      cfg.Moderation,
		ConflictRetries: cfg.Publish.ConflictRetries,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, p)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, submitter handler.Submitter) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, submitter)

	return router
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

const banner = `
       _ _                       _             _
  __ _(_) |_ _ __ ___   ___ _ __ | |_ __ _ _ __(_) ___
 / _' | | __| '_ ' _ \ / _ \ '_ \| __/ _' | '__| |/ _ \
| (_| | | |_| | | | | |  __/ | | | || (_| | |  | | (_) |
 \__, |_|\__|_| |_| |_|\___|_| |_|\__\__,_|_|  |_|\___/
 |___/                                          server
`
