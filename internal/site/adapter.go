package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sr-verde/gitmentario/common/logger"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
)

var ErrNotFound = errors.New("content not found")

const (
	bucketCacheSize = 1024
	bucketCacheTTL  = 5 * time.Minute
)

// Hugo page bundles keep their content in index.md (leaf) or _index.md (branch).
var bundleIndexFiles = []string{"index.md", "_index.md"}

// Adapter resolves content ids to buckets for a Hugo style content tree.
type Adapter struct {
	forge      forge.Client
	contentDir string
	branch     string
	verify     bool
	cache      *expirable.LRU[string, model.Bucket]
}

func NewAdapter(client forge.Client, site config.SiteConfig, branch string) *Adapter {
	return &Adapter{
		forge:      client,
		contentDir: site.ContentDir,
		branch:     branch,
		verify:     site.VerifyContent,
		cache:      expirable.NewLRU[string, model.Bucket](bucketCacheSize, nil, bucketCacheTTL),
	}
}

// BucketFor maps a validated content id to its bucket without checking that
// the content exists.
func BucketFor(contentDir, contentID string) model.Bucket {
	return model.Bucket{
		ContentID: contentID,
		Dir:       path.Join(contentDir, contentID),
	}
}

// ResolveContentBucket returns the bucket for contentID, or ErrNotFound when
// verification is enabled and no page bundle exists for it on the branch.
func (a *Adapter) ResolveContentBucket(ctx context.Context, contentID string) (model.Bucket, error) {
	if err := model.ValidateContentID(contentID); err != nil {
		return model.Bucket{}, err
	}

	bucket := BucketFor(a.contentDir, contentID)
	if !a.verify {
		return bucket, nil
	}

	if cached, ok := a.cache.Get(contentID); ok {
		return cached, nil
	}

	for _, name := range bundleIndexFiles {
		_, err := a.forge.ReadFile(ctx, path.Join(bucket.Dir, name), a.branch)
		if err == nil {
			a.cache.Add(contentID, bucket)
			return bucket, nil
		}
		if !errors.Is(err, forge.ErrNotFound) {
			return model.Bucket{}, fmt.Errorf("checking content %s: %w", contentID, err)
		}
	}

	slog.DebugContext(ctx, "content bundle not found",
		"content_id", contentID,
		"dir", bucket.Dir,
		"branch", a.branch)
	return model.Bucket{}, fmt.Errorf("%s: %w", logger.Truncate(contentID, 128), ErrNotFound)
}
