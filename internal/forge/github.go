package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v59/github"
)

type gitHubClient struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub returns a Client for one repository given as "owner/repo".
// baseURL selects a GitHub Enterprise instance.
func NewGitHub(token, repository, baseURL string) (Client, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("github repository must be owner/repo, got %q", repository)
	}

	client := github.NewClient(nil).WithAuthToken(token)
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
	}

	return &gitHubClient{client: client, owner: owner, repo: repo}, nil
}

func (c *gitHubClient) ReadFile(ctx context.Context, path, branch string) ([]byte, error) {
	file, dir, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{
		Ref: branch,
	})
	if err != nil {
		return nil, classifyGitHub(opRead, resp, err)
	}
	if file == nil {
		if dir != nil {
			return nil, fmt.Errorf("%s: %s is a directory: %w", opRead, path, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", opRead, ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("%s: decoding %s: %w", opRead, path, err)
	}
	return []byte(content), nil
}

func (c *gitHubClient) CreateFile(ctx context.Context, path, branch string, content []byte, message string) (CommitRef, error) {
	result, resp, err := c.client.Repositories.CreateFile(ctx, c.owner, c.repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	})
	if err != nil {
		return "", classifyGitHub(opCreateFile, resp, err)
	}
	if result == nil {
		return "", fmt.Errorf("%s: %w: commit not returned", opCreateFile, ErrRequest)
	}
	return CommitRef(result.Commit.GetSHA()), nil
}

func (c *gitHubClient) CreateBranch(ctx context.Context, name, from string) (BranchRef, error) {
	base, resp, err := c.client.Git.GetRef(ctx, c.owner, c.repo, "heads/"+from)
	if err != nil {
		return "", classifyGitHub(opCreateBranch, resp, err)
	}

	_, resp, err = c.client.Git.CreateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: github.String(base.GetObject().GetSHA())},
	})
	if err != nil {
		return "", classifyGitHub(opCreateBranch, resp, err)
	}
	return BranchRef(name), nil
}

func (c *gitHubClient) DeleteBranch(ctx context.Context, name string) error {
	resp, err := c.client.Git.DeleteRef(ctx, c.owner, c.repo, "heads/"+name)
	return classifyGitHub(opDeleteBranch, resp, err)
}

func (c *gitHubClient) CreateReviewRequest(ctx context.Context, params ReviewRequestParams) (RequestRef, error) {
	pr, resp, err := c.client.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.String(params.Title),
		Head:  github.String(params.SourceBranch),
		Base:  github.String(params.TargetBranch),
		Body:  github.String(params.Description),
	})
	if err != nil {
		return RequestRef{}, classifyGitHub(opCreateRequest, resp, err)
	}
	return RequestRef{ID: fmt.Sprintf("#%d", pr.GetNumber()), URL: pr.GetHTMLURL()}, nil
}

func classifyGitHub(op operation, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	message := ""
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		message = errResp.Message
		for _, e := range errResp.Errors {
			message += " " + e.Message
		}
		if status == 0 && errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		status = http.StatusTooManyRequests
	}

	return classify(op, status, message, err)
}
