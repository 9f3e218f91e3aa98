// Package worker drains the recovery stream: comment branches whose review
// request could not be opened during submission.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/queue"
)

var errPermanent = errors.New("permanent task failure")

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer  Consumer
	processor TaskProcessor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor TaskProcessor, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "gitmentario.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-time.After(w.cfg.ErrorBackoff):
				case <-ctx.Done():
				case <-w.stopCh:
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message handling failed",
				"error", err,
				"message_id", msg.ID)
		}
	}

	return nil
}

// Handle processes msg and settles it on the stream: ack on success, requeue
// or dead-letter on failure. Exported so it can be reused by the reclaimer.
// The returned error is about settling, processing errors are logged.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msg.ID,
		ContentID: optional(msg.ContentID),
		Token:     optional(msg.Token),
		Branch:    optional(msg.Branch),
	})

	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.review_request",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing message",
		"task_type", msg.TaskType,
		"attempt", msg.Attempt)

	if err := w.processMessageSafe(ctx, msg); err != nil {
		sc.RecordError(err)
		return w.handleFailedMessage(ctx, msg, err)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// the reclaimer will deliver it again, creating the request twice is refused by the forge
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, msg)
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) error {
	switch {
	case errors.Is(err, forge.ErrNotFound):
		slog.WarnContext(ctx, "comment branch is gone, dropping task", "error", err)
		return w.consumer.Ack(ctx, msg)
	case errors.Is(err, errPermanent), errors.Is(err, forge.ErrRequest):
		slog.ErrorContext(ctx, "task cannot succeed, sending to DLQ", "error", err)
		return w.consumer.SendDLQ(ctx, msg, err.Error())
	case msg.Attempt >= w.cfg.MaxAttempts:
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"attempts", msg.Attempt,
			"error", err)
		return w.consumer.SendDLQ(ctx, msg, err.Error())
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"attempt", msg.Attempt,
		"error", err)
	return w.consumer.Requeue(ctx, msg, err.Error())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
