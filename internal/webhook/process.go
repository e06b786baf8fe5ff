package webhook

import (
	"fmt"
	"log"
	"strings"

	"github.com/cbarrett/foreman/internal/lifecycle"
	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/queue"
	"gorm.io/gorm"
)

// Enqueuer is the slice of the job queue the dispatcher needs.
type Enqueuer interface {
	Enqueue(name string, taskID uint) error
}

// Result reports the outcome of processing one webhook call.
type Result struct {
	Status  string // the extracted status token, case preserved
	Skipped bool   // true when a RUNNING callback was a no-op
}

// Processor routes normalized webhook statuses to their handlers.
type Processor struct {
	DB       *gorm.DB
	Queue    Enqueuer
	Notifier lifecycle.Notifier
}

// Process normalizes a payload and applies the matching status handler.
// Duplicate and out-of-order deliveries are expected: FINISHED and ERROR
// transitions are unconditional, RUNNING only applies from pending, and
// unrecognized statuses are logged and reported as handled.
func (p *Processor) Process(task *models.Task, payload map[string]any) (*Result, error) {
	if task == nil {
		return nil, fmt.Errorf("webhook: task is required")
	}

	status, err := ExtractStatus(payload)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(status) {
	case "FINISHED":
		if err := p.handleFinished(task, payload); err != nil {
			return nil, err
		}
	case "RUNNING":
		skipped, err := p.handleRunning(task)
		if err != nil {
			return nil, err
		}
		return &Result{Status: status, Skipped: skipped}, nil
	case "ERROR":
		if err := p.handleError(task, payload); err != nil {
			return nil, err
		}
	default:
		log.Printf("webhook: task %d: unknown status %q", task.ID, status)
	}

	return &Result{Status: status}, nil
}

// handleFinished transitions the task to pr_open, recording the PR URL when
// the payload carries one, then enqueues the merge pipeline.
func (p *Processor) handleFinished(task *models.Task, payload map[string]any) error {
	log.Printf("webhook: task %d: handling FINISHED status", task.ID)

	prURL := ExtractPRURL(payload)
	if prURL == "" {
		log.Printf("webhook: task %d: no PR URL found in FINISHED payload", task.ID)
	}

	logged := prURL
	if logged == "" {
		logged = "URL not provided"
	}

	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskPROpen,
		LogMessage: "Cursor agent finished. PR created: " + logged,
		PRURL:      prURL,
	}); err != nil {
		return fmt.Errorf("webhook: task %d: handle finished: %w", task.ID, err)
	}

	if err := p.Queue.Enqueue(queue.JobMerge, task.ID); err != nil {
		return fmt.Errorf("webhook: task %d: enqueue merge: %w", task.ID, err)
	}
	log.Printf("webhook: task %d: merge job enqueued", task.ID)
	return nil
}

// handleRunning transitions a pending task to running. Tasks that already
// progressed past pending are left alone so late or duplicated RUNNING
// callbacks are harmless.
func (p *Processor) handleRunning(task *models.Task) (skipped bool, err error) {
	log.Printf("webhook: task %d: handling RUNNING status", task.ID)

	if task.Status != models.TaskPending {
		log.Printf("webhook: task %d: already %s, skipping RUNNING update", task.ID, task.Status)
		return true, nil
	}

	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskRunning,
		LogMessage: "Cursor agent is now running",
	}); err != nil {
		return false, fmt.Errorf("webhook: task %d: handle running: %w", task.ID, err)
	}
	return false, nil
}

// handleError transitions the task to failed with the agent's error text.
func (p *Processor) handleError(task *models.Task, payload map[string]any) error {
	log.Printf("webhook: task %d: handling ERROR status", task.ID)

	msg := ExtractErrorMessage(payload)
	if msg == "" {
		msg = "Unknown error"
	}

	if _, err := lifecycle.Transition(p.DB, p.Notifier, task, lifecycle.TransitionOpts{
		Status:     models.TaskFailed,
		LogMessage: "Cursor agent failed: " + msg,
	}); err != nil {
		return fmt.Errorf("webhook: task %d: handle error: %w", task.ID, err)
	}
	return nil
}
