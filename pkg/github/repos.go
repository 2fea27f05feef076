package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// PullRequestListOptions filters ListPullRequests.
type PullRequestListOptions struct {
	// State is "open", "closed" or "all". Empty means open.
	State   string
	PerPage int
	Page    int
}

// WorkflowRunListOptions filters ListWorkflowRuns.
type WorkflowRunListOptions struct {
	Branch  string
	Status  string
	PerPage int
	Page    int
}

// GetRepository fetches a repository.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var r Repository
	if err := c.Get(ctx, repoPath(owner, repo, ""), &r); err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	return &r, nil
}

// ListPullRequests lists one page of pull requests.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, opts PullRequestListOptions) ([]PullRequest, error) {
	q := url.Values{}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	setPaging(q, opts.PerPage, opts.Page)

	var prs []PullRequest
	if err := c.Get(ctx, withQuery(repoPath(owner, repo, "/pulls"), q), &prs); err != nil {
		return nil, fmt.Errorf("list pull requests %s/%s: %w", owner, repo, err)
	}
	return prs, nil
}

// ListWorkflowRuns lists one page of GitHub Actions runs.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo string, opts WorkflowRunListOptions) (*WorkflowRuns, error) {
	q := url.Values{}
	if opts.Branch != "" {
		q.Set("branch", opts.Branch)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	setPaging(q, opts.PerPage, opts.Page)

	var runs WorkflowRuns
	if err := c.Get(ctx, withQuery(repoPath(owner, repo, "/actions/runs"), q), &runs); err != nil {
		return nil, fmt.Errorf("list workflow runs %s/%s: %w", owner, repo, err)
	}
	return &runs, nil
}

func repoPath(owner, repo, suffix string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + suffix
}

func setPaging(q url.Values, perPage, page int) {
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
