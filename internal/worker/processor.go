package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/queue"
)

// ReviewRequestProcessor opens the review request for a comment branch that
// was pushed while the request itself could not be created.
type ReviewRequestProcessor struct {
	forge forge.Client
	retry forge.RetryPolicy
}

func NewReviewRequestProcessor(client forge.Client, retry forge.RetryPolicy) *ReviewRequestProcessor {
	return &ReviewRequestProcessor{forge: client, retry: retry}
}

func (p *ReviewRequestProcessor) Process(ctx context.Context, msg queue.Message) error {
	if msg.TaskType != queue.TaskTypeReviewRequest {
		return fmt.Errorf("%w: unsupported task type %q", errPermanent, msg.TaskType)
	}

	params := forge.ReviewRequestParams{
		SourceBranch: msg.Branch,
		TargetBranch: msg.TargetBranch,
		Title:        msg.Title,
		Description:  msg.Description,
	}
	req, err := forge.Retry(ctx, p.retry, "create review request", func(ctx context.Context) (forge.RequestRef, error) {
		return p.forge.CreateReviewRequest(ctx, params)
	})
	if err != nil {
		return fmt.Errorf("creating review request for %s: %w", msg.Branch, err)
	}

	slog.InfoContext(ctx, "review request recovered",
		"request", req.ID,
		"url", req.URL,
		"target", msg.TargetBranch)
	return nil
}
