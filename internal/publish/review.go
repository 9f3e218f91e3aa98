package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sr-verde/gitmentario/common"
	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
)

const (
	branchPrefix      = "comment/"
	cleanupTimeout    = 10 * time.Second
	branchSuffixChars = 6
)

// ReviewRequest commits each comment to its own branch and opens a merge or
// pull request against the target branch.
type ReviewRequest struct {
	forge  forge.Client
	target string
	retry  forge.RetryPolicy
	seq    atomic.Uint64
}

func NewReviewRequest(client forge.Client, target string, retry forge.RetryPolicy) *ReviewRequest {
	return &ReviewRequest{forge: client, target: target, retry: retry}
}

func (r *ReviewRequest) Name() string {
	return NameReviewRequest
}

// BranchName is the first choice of branch for a comment.
func BranchName(contentID string, token model.Token) string {
	slug, err := common.Slugify(contentID, "content")
	if err != nil {
		slug = "content"
	}
	return fmt.Sprintf("%s%s-%s", branchPrefix, slug, token)
}

func (r *ReviewRequest) Publish(ctx context.Context, rendered model.RenderedComment) (model.PublishOutcome, error) {
	sc := logger.StartSpan(ctx, "publish.review_request")
	defer sc.End()
	ctx = sc.Context()

	branch, err := r.createBranch(ctx, BranchName(rendered.ContentID, rendered.Token))
	if err != nil {
		sc.RecordError(err)
		kind := forge.FailureKind(err)
		if errors.Is(err, forge.ErrAlreadyExists) {
			kind = model.FailureBranchCollision
		}
		return model.PublishOutcome{}, &Error{Kind: kind, Err: err}
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Branch: logger.Ptr(branch)})

	retried := false
	_, err = forge.Retry(ctx, r.retry, "create file", func(ctx context.Context) (forge.CommitRef, error) {
		ref, err := r.forge.CreateFile(ctx, rendered.Path, branch, rendered.Content, Title(rendered))
		if forge.Retryable(err) {
			retried = true
		}
		return ref, err
	})
	if err != nil && !(errors.Is(err, forge.ErrConflict) && retried && alreadyWritten(ctx, r.forge, rendered.Path, branch, rendered.Content)) {
		sc.RecordError(err)
		r.deleteBranch(ctx, branch)
		return model.PublishOutcome{}, &Error{Kind: forge.FailureKind(err), Err: err}
	}

	params := forge.ReviewRequestParams{
		SourceBranch: branch,
		TargetBranch: r.target,
		Title:        requestTitle(rendered),
		Description:  requestDescription(rendered),
	}
	req, err := forge.Retry(ctx, r.retry, "create review request", func(ctx context.Context) (forge.RequestRef, error) {
		return r.forge.CreateReviewRequest(ctx, params)
	})
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "review request creation failed, branch kept for recovery",
			"path", rendered.Path,
			"error", err)
		return model.PublishOutcome{}, &Error{
			Kind:    model.FailureReviewRequestCreation,
			Branch:  branch,
			Request: &params,
			Err:     err,
		}
	}

	slog.InfoContext(ctx, "review request opened",
		"request", req.ID,
		"url", req.URL)
	return model.RequestOpened(req.ID, req.URL, branch, rendered), nil
}

// createBranch tries name, then once more with a disambiguated name.
func (r *ReviewRequest) createBranch(ctx context.Context, name string) (string, error) {
	create := func(name string) (forge.BranchRef, error) {
		return forge.Retry(ctx, r.retry, "create branch", func(ctx context.Context) (forge.BranchRef, error) {
			return r.forge.CreateBranch(ctx, name, r.target)
		})
	}

	ref, err := create(name)
	if errors.Is(err, forge.ErrAlreadyExists) {
		alt := fmt.Sprintf("%s-%d-%s", name, r.seq.Add(1), uuid.NewString()[:branchSuffixChars])
		slog.WarnContext(ctx, "branch exists, retrying with a new name",
			"branch", name,
			"retry_branch", alt)
		ref, err = create(alt)
	}
	if err != nil {
		return "", err
	}
	return string(ref), nil
}

func (r *ReviewRequest) deleteBranch(ctx context.Context, branch string) {
	// the submission context may already be cancelled
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := r.forge.DeleteBranch(cleanupCtx, branch); err != nil {
		slog.WarnContext(ctx, "failed to delete branch", "error", err)
	}
}
