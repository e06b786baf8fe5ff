// Package epics implements epic creation and the start workflow.
package epics

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/queue"
	"gorm.io/gorm"
)

// Enqueuer is the slice of the job queue the start workflow needs.
type Enqueuer interface {
	Enqueue(name string, taskID uint) error
}

// CreateOpts holds parameters for creating an epic with its task set.
type CreateOpts struct {
	UserID            uint
	RepositoryID      uint
	Title             string   // derived from the first task when blank
	BaseBranch        string   // defaults to main
	AgentCredentialID *uint    // validated against the owning user when set
	LLMCredentialID   *uint
	Tasks             []string // ordered task descriptions, positions 0..n-1
}

// Create atomically creates an epic together with its ordered tasks. Task
// positions start at 0 and follow the order of opts.Tasks.
func Create(db *gorm.DB, opts CreateOpts) (*models.Epic, error) {
	if opts.UserID == 0 {
		return nil, fmt.Errorf("epics: user is required")
	}
	if opts.RepositoryID == 0 {
		return nil, fmt.Errorf("epics: repository is required")
	}
	if len(opts.Tasks) == 0 {
		return nil, fmt.Errorf("epics: at least one task is required")
	}
	for i, desc := range opts.Tasks {
		if strings.TrimSpace(desc) == "" {
			return nil, fmt.Errorf("epics: task at index %d cannot be blank", i)
		}
	}
	if opts.AgentCredentialID != nil {
		if err := validateAgentCredential(db, opts.UserID, *opts.AgentCredentialID); err != nil {
			return nil, err
		}
	}

	if opts.BaseBranch == "" {
		opts.BaseBranch = "main"
	}
	title := opts.Title
	if title == "" {
		title = deriveTitle(opts.Tasks[0])
	}

	epic := models.Epic{
		UserID:            opts.UserID,
		RepositoryID:      opts.RepositoryID,
		Title:             title,
		Prompt:            fmt.Sprintf("Manual spec with %d tasks", len(opts.Tasks)),
		BaseBranch:        opts.BaseBranch,
		Status:            models.EpicPending,
		AgentCredentialID: opts.AgentCredentialID,
		LLMCredentialID:   opts.LLMCredentialID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&epic).Error; err != nil {
			return fmt.Errorf("epics: create epic: %w", err)
		}
		for i, desc := range opts.Tasks {
			task := models.Task{
				EpicID:      epic.ID,
				Description: desc,
				Position:    i,
				Status:      models.TaskPending,
			}
			if err := tx.Create(&task).Error; err != nil {
				return fmt.Errorf("epics: create task at position %d: %w", i, err)
			}
			epic.Tasks = append(epic.Tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &epic, nil
}

// Start moves a pending epic to running and enqueues dispatch of its first
// pending task in position order. It never dispatches more than one task;
// webhook completion drives nothing further at the epic level here.
//
// An epic without an agent credential may still be started: the dispatch
// pipeline enforces credentials and marks the task failed with a clear log
// entry, which is easier to diagnose than a rejected start.
func Start(db *gorm.DB, q Enqueuer, userID, epicID uint) (*models.Epic, error) {
	var epic models.Epic
	if err := db.First(&epic, epicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("epics: epic %d not found", epicID)
		}
		return nil, fmt.Errorf("epics: load epic %d: %w", epicID, err)
	}

	if epic.UserID != userID {
		return nil, fmt.Errorf("epics: epic %d: must belong to the user", epic.ID)
	}
	if epic.Status != models.EpicPending {
		return nil, fmt.Errorf("epics: epic %d: must be in pending status to start (current: %s)", epic.ID, epic.Status)
	}

	var taskCount int64
	if err := db.Model(&models.Task{}).Where("epic_id = ?", epic.ID).Count(&taskCount).Error; err != nil {
		return nil, fmt.Errorf("epics: epic %d: count tasks: %w", epic.ID, err)
	}
	if taskCount == 0 {
		return nil, fmt.Errorf("epics: epic %d: must have at least one task", epic.ID)
	}

	if err := db.Model(&models.Epic{}).Where("id = ?", epic.ID).
		Update("status", models.EpicRunning).Error; err != nil {
		return nil, fmt.Errorf("epics: epic %d: set running: %w", epic.ID, err)
	}
	epic.Status = models.EpicRunning

	// Lowest pending position only. An epic whose tasks all progressed past
	// pending starts cleanly and dispatches nothing.
	var first models.Task
	err := db.Where("epic_id = ? AND status = ?", epic.ID, models.TaskPending).
		Order("position ASC").First(&first).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.Printf("epics: epic %d: started with no pending tasks", epic.ID)
		return &epic, nil
	case err != nil:
		return nil, fmt.Errorf("epics: epic %d: find first pending task: %w", epic.ID, err)
	}

	if err := q.Enqueue(queue.JobDispatch, first.ID); err != nil {
		return nil, fmt.Errorf("epics: epic %d: enqueue dispatch for task %d: %w", epic.ID, first.ID, err)
	}
	log.Printf("epics: epic %d: started, dispatch enqueued for task %d (position %d)", epic.ID, first.ID, first.Position)
	return &epic, nil
}

func validateAgentCredential(db *gorm.DB, userID, credentialID uint) error {
	var cred models.Credential
	if err := db.Where("id = ? AND user_id = ?", credentialID, userID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("epics: agent credential must belong to the user")
		}
		return fmt.Errorf("epics: load agent credential: %w", err)
	}
	if cred.ServiceName != models.ServiceCursorAgent {
		return fmt.Errorf("epics: credential %d is %s, want %s", cred.ID, cred.ServiceName, models.ServiceCursorAgent)
	}
	return nil
}

func deriveTitle(firstTask string) string {
	runes := []rune(firstTask)
	if len(runes) > 50 {
		return string(runes[:48]) + "..."
	}
	return firstTask
}
