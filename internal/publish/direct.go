package publish

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
)

// DirectCommit commits comments straight to the target branch. Held comments
// land in the pending directory of the same branch.
type DirectCommit struct {
	forge  forge.Client
	branch string
	retry  forge.RetryPolicy
}

func NewDirectCommit(client forge.Client, branch string, retry forge.RetryPolicy) *DirectCommit {
	return &DirectCommit{forge: client, branch: branch, retry: retry}
}

func (d *DirectCommit) Name() string {
	return NameDirectCommit
}

func (d *DirectCommit) Publish(ctx context.Context, rendered model.RenderedComment) (model.PublishOutcome, error) {
	sc := logger.StartSpan(ctx, "publish.direct_commit")
	defer sc.End()
	ctx = sc.Context()

	retried := false
	ref, err := forge.Retry(ctx, d.retry, "create file", func(ctx context.Context) (forge.CommitRef, error) {
		ref, err := d.forge.CreateFile(ctx, rendered.Path, d.branch, rendered.Content, Title(rendered))
		if forge.Retryable(err) {
			retried = true
		}
		return ref, err
	})

	if errors.Is(err, forge.ErrConflict) && retried && alreadyWritten(ctx, d.forge, rendered.Path, d.branch, rendered.Content) {
		slog.InfoContext(ctx, "comment landed during an attempt that reported failure, commit sha unknown",
			"path", rendered.Path,
			"branch", d.branch)
		return model.Committed("", rendered), nil
	}
	if err != nil {
		sc.RecordError(err)
		return model.PublishOutcome{}, &Error{Kind: forge.FailureKind(err), Err: err}
	}

	slog.InfoContext(ctx, "comment committed",
		"commit", ref,
		"path", rendered.Path,
		"branch", d.branch)
	return model.Committed(string(ref), rendered), nil
}
