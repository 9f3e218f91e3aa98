package site

import (
	"path"

	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/model"
)

// Resolver derives repository paths for comment files. Comments of one
// content item live next to it, split by moderation state:
//
//	<content dir>/<content id>/comments/<token>.md
//	<content dir>/<content id>/comments-pending/<token>.md
type Resolver struct {
	approvedDir string
	pendingDir  string
	extension   string
}

func NewResolver(cfg config.SiteConfig) *Resolver {
	ext := cfg.Extension
	if ext == "" {
		ext = ".md"
	}
	if ext[0] != '.' {
		ext = "." + ext
	}
	return &Resolver{
		approvedDir: cfg.CommentsDir,
		pendingDir:  cfg.PendingDir,
		extension:   ext,
	}
}

func (r *Resolver) Resolve(bucket model.Bucket, token model.Token, state model.ModerationState) string {
	dir := r.approvedDir
	if state == model.ModerationPending {
		dir = r.pendingDir
	}
	return path.Join(bucket.Dir, dir, string(token)+r.extension)
}

// Candidates lists every path token could occupy in bucket.
func (r *Resolver) Candidates(bucket model.Bucket, token model.Token) []string {
	return []string{
		r.Resolve(bucket, token, model.ModerationApproved),
		r.Resolve(bucket, token, model.ModerationPending),
	}
}
