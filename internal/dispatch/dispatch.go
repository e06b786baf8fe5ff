// Package dispatch launches a Cursor agent for a task: it generates the
// work branch and callback URL, calls the agent API, and records the agent
// identifiers on the task.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/cbarrett/foreman/internal/config"
	"github.com/cbarrett/foreman/internal/lifecycle"
	"github.com/cbarrett/foreman/internal/models"
	"gorm.io/gorm"
)

// LaunchRequest carries everything the agent platform needs to start work.
type LaunchRequest struct {
	APIKey     string
	Prompt     string
	RepoURL    string
	BaseBranch string
	BranchName string
	WebhookURL string
}

// Launcher starts an agent run on the external platform and returns its
// identifier.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (agentID string, err error)
}

// Result reports a successful dispatch.
type Result struct {
	Task       *models.Task
	AgentID    string
	BranchName string
}

// Pipeline wires the dispatch dependencies.
type Pipeline struct {
	DB       *gorm.DB
	Launcher Launcher
	Config   *config.Config
	Notifier lifecycle.Notifier
}

// Run dispatches the task with the given ID to a Cursor agent. The task must
// belong to an epic; a missing agent credential, like any failure once launch
// begins, marks the task failed and is returned to the caller so the queue
// observes it. A retried dispatch generates a fresh branch rather than
// reusing a possibly half-created one.
func (p *Pipeline) Run(ctx context.Context, taskID uint) (*Result, error) {
	var task models.Task
	err := p.DB.Preload("Epic").Preload("Epic.Repository").Preload("Epic.AgentCredential").
		First(&task, taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dispatch: task %d not found", taskID)
		}
		return nil, fmt.Errorf("dispatch: load task %d: %w", taskID, err)
	}

	if task.Epic.ID == 0 {
		return nil, fmt.Errorf("dispatch: task %d: must have an associated epic", task.ID)
	}
	// Start does not require a credential, so a missing one is recorded on
	// the task itself, not only in the server log.
	if task.Epic.AgentCredential == nil {
		cause := errors.New("epic must have a cursor agent credential configured")
		p.markFailed(&task, cause)
		return nil, fmt.Errorf("dispatch: task %d: %w", task.ID, cause)
	}

	if _, err := lifecycle.Transition(p.DB, p.Notifier, &task, lifecycle.TransitionOpts{
		Status:     models.TaskRunning,
		LogMessage: "Starting task execution...",
	}); err != nil {
		return nil, err
	}

	result, err := p.launch(ctx, &task)
	if err != nil {
		p.markFailed(&task, err)
		return nil, err
	}
	return result, nil
}

// launch runs the fallible part of the pipeline: branch generation, the
// agent API call, and identifier persistence.
func (p *Pipeline) launch(ctx context.Context, task *models.Task) (*Result, error) {
	branch, err := GenerateBranchName(task.ID)
	if err != nil {
		return nil, err
	}
	webhookURL := p.Config.WebhookURL(task.ID)

	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskRunning,
		LogMessage: "Launching Cursor agent for branch: " + branch,
	}); err != nil {
		return nil, err
	}

	agentID, err := p.Launcher.Launch(ctx, LaunchRequest{
		APIKey:     task.Epic.AgentCredential.APIKey,
		Prompt:     task.Description,
		RepoURL:    task.Epic.Repository.GitHubURL,
		BaseBranch: task.Epic.BaseBranch,
		BranchName: branch,
		WebhookURL: webhookURL,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: task %d: launch agent: %w", task.ID, err)
	}
	if agentID == "" {
		return nil, fmt.Errorf("dispatch: task %d: no agent ID returned from Cursor API", task.ID)
	}

	// Agent identifiers are plain field updates, deliberately outside the
	// lifecycle engine: they are not status, log, or PR URL state.
	if err := p.DB.Model(&models.Task{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
		"agent_id":    agentID,
		"branch_name": branch,
	}).Error; err != nil {
		return nil, fmt.Errorf("dispatch: task %d: save agent identifiers: %w", task.ID, err)
	}
	task.AgentID = agentID
	task.BranchName = branch

	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskRunning,
		LogMessage: "Cursor agent launched successfully. Agent ID: " + agentID,
	}); err != nil {
		return nil, err
	}

	log.Printf("dispatch: task %d: agent %s launched on branch %s", task.ID, agentID, branch)
	return &Result{Task: task, AgentID: agentID, BranchName: branch}, nil
}

// markFailed records a launch failure on the task. The epic is left as-is;
// there is no automatic epic-level retry or pause.
func (p *Pipeline) markFailed(task *models.Task, cause error) {
	log.Printf("dispatch: task %d: %v", task.ID, cause)
	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskFailed,
		LogMessage: "Failed to launch Cursor agent: " + cause.Error(),
	}); err != nil {
		log.Printf("dispatch: task %d: mark failed: %v", task.ID, err)
	}
}

// GenerateBranchName builds a unique work branch for a task. The random
// suffix means re-dispatching the same task produces a new branch instead of
// colliding with a previous attempt.
func GenerateBranchName(taskID uint) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("dispatch: generate branch suffix: %w", err)
	}
	return fmt.Sprintf("cursor-agent/task-%d-%s", taskID, hex.EncodeToString(b)), nil
}
