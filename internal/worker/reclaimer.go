package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/internal/queue"
)

type ReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries dead-letters a task that keeps being abandoned, usually
	// because it crashes the worker holding it. Zero disables the check.
	MaxDeliveries int64
}

// Reclaimer hands recovery tasks that a dead worker left pending back to
// the worker's handler, so a stranded comment branch still gets its review
// request.
type Reclaimer struct {
	client   *redis.Client
	cfg      ReclaimerConfig
	consumer *queue.RedisConsumer
	handle   queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(client *redis.Client, cfg ReclaimerConfig, consumer *queue.RedisConsumer, handle queue.MessageProcessor) *Reclaimer {
	return &Reclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		handle:    handle,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run claims stale tasks every Interval until Stop is called or ctx ends.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "gitmentario.worker.reclaimer",
	})
	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"stream", r.cfg.Stream)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.reclaimOnce(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim cycle failed", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "recovery tasks reclaimed", "count", n)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// reclaimOnce settles every task idle for at least MinIdle and returns how
// many it claimed.
func (r *Reclaimer) reclaimOnce(ctx context.Context) (int, error) {
	stale, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}

	claimed := 0
	for _, entry := range stale {
		ok, err := r.reclaim(ctx, entry)
		if err != nil {
			slog.ErrorContext(ctx, "failed to reclaim recovery task",
				"message_id", entry.ID,
				"previous_consumer", entry.Consumer,
				"idle", entry.Idle,
				"error", err)
			continue
		}
		if ok {
			claimed++
		}
	}
	return claimed, nil
}

func (r *Reclaimer) reclaim(ctx context.Context, entry redis.XPendingExt) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(entry.ID)})

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: []string{entry.ID},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("xclaim: %w", err)
	}
	if len(claimed) == 0 {
		slog.DebugContext(ctx, "recovery task already taken by another worker")
		return false, nil
	}

	msg, err := queue.ParseMessage(claimed[0])
	if err != nil {
		slog.ErrorContext(ctx, "dropping unreadable recovery task", "error", err)
		return true, r.consumer.Ack(ctx, queue.Message{ID: claimed[0].ID, Raw: claimed[0]})
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ContentID: optional(msg.ContentID),
		Token:     optional(msg.Token),
		Branch:    optional(msg.Branch),
	})

	if r.cfg.MaxDeliveries > 0 && entry.RetryCount >= r.cfg.MaxDeliveries {
		reason := fmt.Sprintf("abandoned by %d workers, last %s", entry.RetryCount, entry.Consumer)
		slog.ErrorContext(ctx, "recovery task keeps stalling workers, sending to DLQ",
			"deliveries", entry.RetryCount)
		return true, r.consumer.SendDLQ(ctx, msg, reason)
	}

	slog.InfoContext(ctx, "reclaimed recovery task",
		"previous_consumer", entry.Consumer,
		"idle", entry.Idle,
		"deliveries", entry.RetryCount,
		"attempt", msg.Attempt)
	return true, r.handle(ctx, msg)
}
