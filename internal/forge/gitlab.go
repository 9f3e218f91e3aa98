package forge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

type gitLabClient struct {
	client    *gitlab.Client
	projectID string
}

// NewGitLab returns a Client for one GitLab project. projectID may be the
// numeric id or the "group/project" path. The SDK's own retries are disabled
// so callers control the retry budget.
func NewGitLab(token, projectID, instanceURL string) (Client, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithCustomRetryMax(0)}
	if instanceURL != "" {
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(instanceURL, "/")+"/api/v4"))
	}

	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabClient{client: client, projectID: projectID}, nil
}

func (c *gitLabClient) ReadFile(ctx context.Context, path, branch string) ([]byte, error) {
	content, resp, err := c.client.RepositoryFiles.GetRawFile(c.projectID, path, &gitlab.GetRawFileOptions{
		Ref: gitlab.Ptr(branch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, classifyGitLab(opRead, resp, err)
	}
	return content, nil
}

func (c *gitLabClient) CreateFile(ctx context.Context, path, branch string, content []byte, message string) (CommitRef, error) {
	commit, resp, err := c.client.Commits.CreateCommit(c.projectID, &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(branch),
		CommitMessage: gitlab.Ptr(message),
		Actions: []*gitlab.CommitActionOptions{{
			Action:   gitlab.Ptr(gitlab.FileCreate),
			FilePath: gitlab.Ptr(path),
			Content:  gitlab.Ptr(string(content)),
		}},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLab(opCreateFile, resp, err)
	}
	if commit == nil {
		return "", fmt.Errorf("%s: %w: commit not returned", opCreateFile, ErrRequest)
	}
	return CommitRef(commit.ID), nil
}

func (c *gitLabClient) CreateBranch(ctx context.Context, name, from string) (BranchRef, error) {
	branch, resp, err := c.client.Branches.CreateBranch(c.projectID, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(name),
		Ref:    gitlab.Ptr(from),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLab(opCreateBranch, resp, err)
	}
	if branch == nil || branch.Name == "" {
		return BranchRef(name), nil
	}
	return BranchRef(branch.Name), nil
}

func (c *gitLabClient) DeleteBranch(ctx context.Context, name string) error {
	resp, err := c.client.Branches.DeleteBranch(c.projectID, name, gitlab.WithContext(ctx))
	return classifyGitLab(opDeleteBranch, resp, err)
}

func (c *gitLabClient) CreateReviewRequest(ctx context.Context, params ReviewRequestParams) (RequestRef, error) {
	mr, resp, err := c.client.MergeRequests.CreateMergeRequest(c.projectID, &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(params.Title),
		Description:        gitlab.Ptr(params.Description),
		SourceBranch:       gitlab.Ptr(params.SourceBranch),
		TargetBranch:       gitlab.Ptr(params.TargetBranch),
		RemoveSourceBranch: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return RequestRef{}, classifyGitLab(opCreateRequest, resp, err)
	}
	if mr == nil {
		return RequestRef{}, fmt.Errorf("%s: %w: merge request not returned", opCreateRequest, ErrRequest)
	}
	return RequestRef{ID: fmt.Sprintf("!%d", mr.IID), URL: mr.WebURL}, nil
}

func classifyGitLab(op operation, resp *gitlab.Response, err error) error {
	if err == nil {
		return nil
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	message := ""
	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) {
		message = errResp.Message + " " + string(errResp.Body)
		if status == 0 && errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
	}

	return classify(op, status, message, err)
}
