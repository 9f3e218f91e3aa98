package forge

import (
	"context"
	"fmt"

	"github.com/sr-verde/gitmentario/core/config"
)

type Provider string

const (
	ProviderGitLab Provider = "gitlab"
	ProviderGitHub Provider = "github"
)

type CommitRef string

type BranchRef string

// RequestRef identifies an opened merge request or pull request.
type RequestRef struct {
	ID  string
	URL string
}

type ReviewRequestParams struct {
	SourceBranch string
	TargetBranch string
	Title        string
	Description  string
}

// Client is the repository surface the publishing pipeline needs. A single
// Client is shared by all concurrent submissions; implementations must be
// safe for concurrent use.
type Client interface {
	// ReadFile returns ErrNotFound when path does not exist on branch.
	ReadFile(ctx context.Context, path, branch string) ([]byte, error)

	// CreateFile commits a new file as a single atomic commit. Returns
	// ErrConflict when a file already exists at path.
	CreateFile(ctx context.Context, path, branch string, content []byte, message string) (CommitRef, error)

	// CreateBranch returns ErrAlreadyExists when name is taken.
	CreateBranch(ctx context.Context, name, from string) (BranchRef, error)

	DeleteBranch(ctx context.Context, name string) error

	CreateReviewRequest(ctx context.Context, params ReviewRequestParams) (RequestRef, error)
}

// New builds the configured provider client wrapped in the shared rate limiter.
func New(cfg config.ForgeConfig) (Client, error) {
	var (
		client Client
		err    error
	)

	switch Provider(cfg.Type) {
	case ProviderGitLab:
		client, err = NewGitLab(cfg.AuthToken, cfg.ProjectID, cfg.BaseURL)
	case ProviderGitHub:
		client, err = NewGitHub(cfg.AuthToken, cfg.ProjectID, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported forge type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit <= 0 {
		return client, nil
	}
	return NewRateLimited(client, cfg.RateLimit, cfg.RateBurst), nil
}
