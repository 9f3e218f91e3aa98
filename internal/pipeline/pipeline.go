// Package pipeline turns a visitor submission into a comment file on the
// forge. Each submission runs independently; shared state lives in the
// allocator and the forge client.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/allocator"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
	"github.com/sr-verde/gitmentario/internal/publish"
	"github.com/sr-verde/gitmentario/internal/queue"
	"github.com/sr-verde/gitmentario/internal/site"
)

type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateModerated  State = "moderated"
	StateAllocated  State = "allocated"
	StateSerialized State = "serialized"
	StatePublished  State = "published"
	StateDone       State = "done"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

type BucketResolver interface {
	ResolveContentBucket(ctx context.Context, contentID string) (model.Bucket, error)
}

type Moderator interface {
	Evaluate(sub model.CommentSubmission, cfg config.ModerationConfig) model.ModerationDecision
}

type TokenAllocator interface {
	Allocate(ctx context.Context, bucket model.Bucket) (model.Token, error)
}

type PathResolver interface {
	Resolve(bucket model.Bucket, token model.Token, state model.ModerationState) string
}

type Serializer interface {
	Serialize(sub model.CommentSubmission, token model.Token, decision model.ModerationDecision, path string) (model.RenderedComment, error)
}

// Deps are the collaborators of a Pipeline. Recovery is optional.
type Deps struct {
	Sites      BucketResolver
	Moderator  Moderator
	Allocator  TokenAllocator
	Paths      PathResolver
	Serializer Serializer
	Strategy   publish.Strategy
	Recovery   queue.Producer
}

type Options struct {
	Moderation      config.ModerationConfig
	ConflictRetries int
}

type Pipeline struct {
	deps            Deps
	moderation      config.ModerationConfig
	conflictRetries int
}

func New(deps Deps, opts Options) *Pipeline {
	retries := opts.ConflictRetries
	if retries < 1 {
		retries = 1
	}
	return &Pipeline{
		deps:            deps,
		moderation:      opts.Moderation,
		conflictRetries: retries,
	}
}

// Submit runs one submission to a terminal outcome. It never returns a
// half-built outcome: every path ends in Committed, RequestOpened, Rejected
// or Failed.
func (p *Pipeline) Submit(ctx context.Context, sub model.CommentSubmission) model.PublishOutcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: optional(sub.ID),
		Component:    "gitmentario.pipeline",
	})

	sc := logger.StartSpan(ctx, "pipeline.submit")
	defer sc.End()
	ctx = sc.Context()

	sub = sub.Normalize()
	outcome := p.run(ctx, sub)
	if outcome.Err != nil {
		sc.RecordError(outcome.Err)
	}

	switch outcome.Kind {
	case model.OutcomeRejected:
		transition(ctx, StateRejected)
		slog.InfoContext(ctx, "submission rejected", "reason", outcome.Reason, "error", outcome.Err)
	case model.OutcomeFailed:
		transition(ctx, StateFailed)
		slog.ErrorContext(ctx, "submission failed",
			"failure", outcome.Failure,
			"branch", outcome.BranchRef,
			"error", outcome.Err)
		if outcome.PartialSuccess() {
			p.enqueueRecovery(ctx, sub.ContentID, outcome)
		}
	default:
		transition(ctx, StateDone)
		slog.InfoContext(ctx, "submission published",
			"outcome", outcome.Kind,
			"path", outcome.Path,
			"state", outcome.State)
	}
	return outcome
}

func (p *Pipeline) run(ctx context.Context, sub model.CommentSubmission) model.PublishOutcome {
	transition(ctx, StateReceived)

	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	if err := sub.Validate(); err != nil {
		return model.Rejected(model.ReasonInvalidSubmission, err)
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ContentID: &sub.ContentID})

	bucket, err := p.deps.Sites.ResolveContentBucket(ctx, sub.ContentID)
	switch {
	case errors.Is(err, site.ErrNotFound):
		return model.Rejected(model.ReasonUnknownContent, err)
	case errors.Is(err, model.ErrValidation):
		return model.Rejected(model.ReasonInvalidSubmission, err)
	case err != nil:
		return failure(ctx, fmt.Errorf("resolving content bucket: %w", err))
	}
	transition(ctx, StateValidated)

	decision := p.deps.Moderator.Evaluate(sub, p.moderation)
	if decision.Rejected() {
		return model.Rejected(decision.Reason, nil)
	}
	transition(ctx, StateModerated, "decision", decision.Kind)

	state := decision.State()
	var lastErr error
	for attempt := 1; attempt <= p.conflictRetries; attempt++ {
		token, err := p.deps.Allocator.Allocate(ctx, bucket)
		if err != nil {
			if errors.Is(err, allocator.ErrAllocationExhausted) {
				return model.Failed(model.FailureAllocationExhausted, err)
			}
			return failure(ctx, fmt.Errorf("allocating token: %w", err))
		}
		ctx := logger.WithLogFields(ctx, logger.LogFields{Token: logger.Ptr(token.String())})
		transition(ctx, StateAllocated, "attempt", attempt)

		path := p.deps.Paths.Resolve(bucket, token, state)
		rendered, err := p.deps.Serializer.Serialize(sub, token, decision, path)
		if err != nil {
			return model.Failed(model.FailureInternal, fmt.Errorf("serializing comment: %w", err))
		}
		transition(ctx, StateSerialized, "path", path)

		ctx = logger.WithLogFields(ctx, logger.LogFields{Strategy: logger.Ptr(p.deps.Strategy.Name())})
		outcome, err := p.deps.Strategy.Publish(ctx, rendered)
		if err == nil {
			transition(ctx, StatePublished, "outcome", outcome.Kind)
			return outcome
		}
		if !errors.Is(err, forge.ErrConflict) {
			failed := publish.OutcomeFor(err)
			// a stranded branch outlives the request and still needs recovery
			if !failed.PartialSuccess() && ctx.Err() != nil {
				return model.Failed(model.FailureCancelled, err)
			}
			failed.Token = token
			failed.Path = path
			failed.State = state
			return failed
		}

		lastErr = err
		slog.WarnContext(ctx, "comment path taken, allocating a new token",
			"attempt", attempt,
			"path", path,
			"error", err)
	}

	return model.Failed(model.FailureConflict,
		fmt.Errorf("publish conflict after %d attempts: %w", p.conflictRetries, lastErr))
}

// failure classifies errors raised outside the publish strategies.
func failure(ctx context.Context, err error) model.PublishOutcome {
	if ctx.Err() != nil {
		return model.Failed(model.FailureCancelled, err)
	}
	return model.Failed(forge.FailureKind(err), err)
}

func (p *Pipeline) enqueueRecovery(ctx context.Context, contentID string, outcome model.PublishOutcome) {
	var pubErr *publish.Error
	if !errors.As(outcome.Err, &pubErr) || pubErr.Request == nil {
		slog.ErrorContext(ctx, "partial success without request details, open the review request manually",
			"branch", outcome.BranchRef)
		return
	}
	if p.deps.Recovery == nil {
		slog.WarnContext(ctx, "recovery disabled, open the review request manually",
			"branch", pubErr.Branch,
			"target", pubErr.Request.TargetBranch)
		return
	}

	task := queue.Task{
		TaskType:     queue.TaskTypeReviewRequest,
		ContentID:    contentID,
		Token:        outcome.Token.String(),
		Branch:       pubErr.Request.SourceBranch,
		TargetBranch: pubErr.Request.TargetBranch,
		Title:        pubErr.Request.Title,
		Description:  pubErr.Request.Description,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		task.TraceID = logger.Ptr(spanCtx.TraceID().String())
	}

	// the visitor's request may be gone, the branch still needs its request
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.deps.Recovery.Enqueue(enqueueCtx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue review request recovery, open it manually",
			"branch", task.Branch,
			"target", task.TargetBranch,
			"error", err)
	}
}

func transition(ctx context.Context, state State, args ...any) {
	slog.DebugContext(ctx, "submission state", append([]any{"state", state}, args...)...)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
