package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/model"
)

var ErrAllocationExhausted = errors.New("token allocation exhausted")

const (
	issuedCacheSize = 8192
	issuedCacheTTL  = 30 * time.Minute
)

// TokenSource draws candidate tokens. common/id.Generator is the production
// source.
type TokenSource interface {
	Next() string
}

// PathSource lists the repository paths a token could occupy in a bucket.
type PathSource interface {
	Candidates(bucket model.Bucket, token model.Token) []string
}

type Options struct {
	Branch   string
	Attempts int
}

// Allocator issues comment tokens that are unused within their bucket.
// Issuance is serialized per content id through the Locker; the forge
// lookup guards against tokens minted by other replicas.
type Allocator struct {
	tokens   TokenSource
	locker   Locker
	forge    forge.Client
	paths    PathSource
	branch   string
	attempts int
	issued   *expirable.LRU[string, struct{}]
}

func New(tokens TokenSource, locker Locker, client forge.Client, paths PathSource, opts Options) *Allocator {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Allocator{
		tokens:   tokens,
		locker:   locker,
		forge:    client,
		paths:    paths,
		branch:   opts.Branch,
		attempts: attempts,
		issued:   expirable.NewLRU[string, struct{}](issuedCacheSize, nil, issuedCacheTTL),
	}
}

func (a *Allocator) Allocate(ctx context.Context, bucket model.Bucket) (model.Token, error) {
	unlock, err := a.locker.Lock(ctx, bucket.ContentID)
	if err != nil {
		return "", fmt.Errorf("locking bucket %s: %w", bucket.ContentID, err)
	}
	defer unlock()

	for attempt := 1; attempt <= a.attempts; attempt++ {
		token := model.Token(a.tokens.Next())
		key := bucket.ContentID + "\x00" + string(token)

		if a.issued.Contains(key) {
			slog.WarnContext(ctx, "token already issued in this process",
				"token", token,
				"attempt", attempt)
			continue
		}

		free, err := a.available(ctx, bucket, token)
		if err != nil {
			return "", err
		}
		if free {
			a.issued.Add(key, struct{}{})
			return token, nil
		}

		slog.WarnContext(ctx, "token already present in repository",
			"token", token,
			"attempt", attempt)
	}

	return "", fmt.Errorf("%w: %d collisions in %s", ErrAllocationExhausted, a.attempts, bucket.ContentID)
}

func (a *Allocator) available(ctx context.Context, bucket model.Bucket, token model.Token) (bool, error) {
	for _, path := range a.paths.Candidates(bucket, token) {
		_, err := a.forge.ReadFile(ctx, path, a.branch)
		switch {
		case err == nil:
			return false, nil
		case errors.Is(err, forge.ErrNotFound):
			continue
		default:
			return false, fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return true, nil
}
