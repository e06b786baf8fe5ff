// Package merge finalizes finished tasks: it merges the agent's pull
// request, cleans up the work branch, and advances the task to merging.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cbarrett/foreman/internal/lifecycle"
	"github.com/cbarrett/foreman/internal/models"
	"gorm.io/gorm"
)

// GitClient is the slice of the source-control service the pipeline needs.
// Both calls are scoped to one repository and one branch.
type GitClient interface {
	MergePullRequest(ctx context.Context, repo, branch string) (mergeSHA string, err error)
	DeleteBranch(ctx context.Context, repo, branch string) error
}

// ClientFactory builds a GitClient for a credential token. Credentials vary
// per repository, so the pipeline constructs a client per run.
type ClientFactory func(token string) GitClient

// Result reports a completed merge.
type Result struct {
	Task     *models.Task
	MergeSHA string
}

// Pipeline wires the merge dependencies.
type Pipeline struct {
	DB        *gorm.DB
	NewClient ClientFactory
	Notifier  lifecycle.Notifier
}

// Run merges the pull request for the task with the given ID. A merge
// failure leaves the task in pr_open with the PR untouched, so a retry or a
// manual merge remains possible. Branch deletion is best-effort cleanup.
func (p *Pipeline) Run(ctx context.Context, taskID uint) (*Result, error) {
	var task models.Task
	err := p.DB.Preload("Epic").Preload("Epic.Repository").Preload("Epic.Repository.GitHubCredential").
		First(&task, taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("merge: task %d not found", taskID)
		}
		return nil, fmt.Errorf("merge: load task %d: %w", taskID, err)
	}

	if task.BranchName == "" {
		return nil, fmt.Errorf("merge: task %d: must have a branch name", task.ID)
	}
	if task.Epic.ID == 0 {
		return nil, fmt.Errorf("merge: task %d: must belong to an epic", task.ID)
	}
	if task.Epic.Repository.ID == 0 {
		return nil, fmt.Errorf("merge: task %d: must have a repository", task.ID)
	}
	if task.Epic.Repository.GitHubCredential == nil {
		return nil, fmt.Errorf("merge: task %d: repository must have GitHub credentials", task.ID)
	}
	if task.Status != models.TaskPROpen {
		return nil, fmt.Errorf("merge: task %d: must be in pr_open status to merge (current: %s)", task.ID, task.Status)
	}

	repo := task.Epic.Repository.Name
	branch := task.BranchName
	git := p.NewClient(task.Epic.Repository.GitHubCredential.APIKey)

	log.Printf("merge: task %d: starting merge for branch %q", task.ID, branch)

	sha, err := git.MergePullRequest(ctx, repo, branch)
	if err != nil {
		log.Printf("merge: task %d: merge failed: %v", task.ID, err)
		return nil, fmt.Errorf("merge: task %d: merge pull request: %w", task.ID, err)
	}
	log.Printf("merge: task %d: merged, SHA %s", task.ID, sha)

	// Cleanup only: the merge already landed, so a failed branch delete must
	// not fail the pipeline.
	if err := git.DeleteBranch(ctx, repo, branch); err != nil {
		log.Printf("merge: task %d: delete branch %q: %v", task.ID, branch, err)
	} else {
		log.Printf("merge: task %d: deleted branch %q", task.ID, branch)
	}

	updated, err := lifecycle.Transition(p.DB, p.Notifier, &task, lifecycle.TransitionOpts{
		Status:     models.TaskMerging,
		LogMessage: "PR merged successfully. SHA: " + sha,
	})
	if err != nil {
		return nil, fmt.Errorf("merge: task %d: %w", task.ID, err)
	}

	return &Result{Task: updated, MergeSHA: sha}, nil
}
