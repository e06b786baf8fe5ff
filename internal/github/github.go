// Package github wraps the GitHub API for merging agent pull requests and
// cleaning up work branches.
package github

import (
	"context"
	"fmt"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Service is a credential-scoped GitHub API client.
type Service struct {
	client *gogithub.Client
}

// New creates a Service authenticated with the given access token.
func New(token string) *Service {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Service{client: gogithub.NewClient(tc)}
}

// NewWithClient creates a Service around an existing client, used by tests
// to point at a stub server.
func NewWithClient(client *gogithub.Client) *Service {
	return &Service{client: client}
}

// MergePullRequest finds the open pull request whose head is branch and
// merges it, returning the merge commit SHA.
func (s *Service) MergePullRequest(ctx context.Context, repo, branch string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	prs, _, err := s.client.PullRequests.List(ctx, owner, name, &gogithub.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + branch,
	})
	if err != nil {
		return "", fmt.Errorf("github: list pull requests for %s: %w", branch, err)
	}
	if len(prs) == 0 {
		return "", fmt.Errorf("github: pull request not found for branch %q", branch)
	}
	number := prs[0].GetNumber()

	// List results omit mergeability; fetch the full PR to check it.
	pr, _, err := s.client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return "", fmt.Errorf("github: get pull request #%d: %w", number, err)
	}
	if pr.Mergeable != nil && !pr.GetMergeable() {
		return "", fmt.Errorf("github: pull request #%d is not mergeable", number)
	}

	msg := fmt.Sprintf("Merge pull request #%d from %s", number, branch)
	result, _, err := s.client.PullRequests.Merge(ctx, owner, name, number, msg, nil)
	if err != nil {
		return "", fmt.Errorf("github: merge pull request #%d: %w", number, err)
	}
	return result.GetSHA(), nil
}

// DeleteBranch deletes the remote branch ref after a successful merge.
func (s *Service) DeleteBranch(ctx context.Context, repo, branch string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	if _, err := s.client.Git.DeleteRef(ctx, owner, name, "heads/"+branch); err != nil {
		return fmt.Errorf("github: delete branch %q: %w", branch, err)
	}
	return nil
}

// InferBaseBranch returns the repository's default branch (main, master, ...).
func (s *Service) InferBaseBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	r, _, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("github: get repository %s: %w", repo, err)
	}
	return r.GetDefaultBranch(), nil
}

// splitRepo splits an owner/repo name into its parts.
func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: repository name %q must be owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
