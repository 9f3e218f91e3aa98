package forge

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles every call of the wrapped client through one shared
// token bucket.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

func NewRateLimited(next Client, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) wait(ctx context.Context, op operation) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: waiting for rate limiter: %w", op, err)
	}
	return nil
}

func (r *RateLimited) ReadFile(ctx context.Context, path, branch string) ([]byte, error) {
	if err := r.wait(ctx, opRead); err != nil {
		return nil, err
	}
	return r.next.ReadFile(ctx, path, branch)
}

func (r *RateLimited) CreateFile(ctx context.Context, path, branch string, content []byte, message string) (CommitRef, error) {
	if err := r.wait(ctx, opCreateFile); err != nil {
		return "", err
	}
	return r.next.CreateFile(ctx, path, branch, content, message)
}

func (r *RateLimited) CreateBranch(ctx context.Context, name, from string) (BranchRef, error) {
	if err := r.wait(ctx, opCreateBranch); err != nil {
		return "", err
	}
	return r.next.CreateBranch(ctx, name, from)
}

func (r *RateLimited) DeleteBranch(ctx context.Context, name string) error {
	if err := r.wait(ctx, opDeleteBranch); err != nil {
		return err
	}
	return r.next.DeleteBranch(ctx, name)
}

func (r *RateLimited) CreateReviewRequest(ctx context.Context, params ReviewRequestParams) (RequestRef, error) {
	if err := r.wait(ctx, opCreateRequest); err != nil {
		return RequestRef{}, err
	}
	return r.next.CreateReviewRequest(ctx, params)
}
