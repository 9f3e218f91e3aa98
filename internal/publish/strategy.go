package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
)

const (
	NameDirectCommit  = "direct_commit"
	NameReviewRequest = "review_request"

	pendingPrefix = "[pending] "
)

// Strategy writes a rendered comment to the forge. Conflicts are reported as
// errors matching forge.ErrConflict so the caller can allocate a new token.
type Strategy interface {
	Name() string
	Publish(ctx context.Context, rendered model.RenderedComment) (model.PublishOutcome, error)
}

// New picks the strategy for the configured delivery mode.
func New(cfg config.PublishConfig, client forge.Client) Strategy {
	policy := forge.RetryPolicyFrom(cfg)
	if cfg.GitPush {
		return NewDirectCommit(client, cfg.TargetBranch, policy)
	}
	return NewReviewRequest(client, cfg.TargetBranch, policy)
}

// Error is a failed publish. Branch and Request are set when a branch with
// the comment was left on the forge for recovery.
type Error struct {
	Kind    model.FailureKind
	Branch  string
	Request *forge.ReviewRequestParams
	Err     error
}

func (e *Error) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("%s (branch %s): %v", e.Kind, e.Branch, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OutcomeFor converts a publish error into the outcome reported to callers.
func OutcomeFor(err error) model.PublishOutcome {
	var pubErr *Error
	if errors.As(err, &pubErr) {
		outcome := model.Failed(pubErr.Kind, err)
		outcome.BranchRef = pubErr.Branch
		return outcome
	}
	return model.Failed(forge.FailureKind(err), err)
}

// Title is used as commit message and review request title.
func Title(rendered model.RenderedComment) string {
	return fmt.Sprintf("💬 Add comment from %s", rendered.Author)
}

func requestTitle(rendered model.RenderedComment) string {
	if rendered.State == model.ModerationPending {
		return pendingPrefix + Title(rendered)
	}
	return Title(rendered)
}

func requestDescription(rendered model.RenderedComment) string {
	return fmt.Sprintf("New comment on `%s` by %s.\n\nFile: `%s`\nModeration: %s\n",
		rendered.ContentID, rendered.Author, rendered.Path, rendered.State)
}

// alreadyWritten reports whether path on branch holds exactly content. A
// create that timed out may still have landed; the unique token inside the
// file makes a byte match proof that it was this write.
func alreadyWritten(ctx context.Context, client forge.Client, path, branch string, content []byte) bool {
	existing, err := client.ReadFile(ctx, path, branch)
	return err == nil && bytes.Equal(existing, content)
}
