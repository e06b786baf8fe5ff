// Package lifecycle is the single authorized writer of task state. Every
// status, PR URL, or debug-log mutation in Foreman funnels through
// Transition so a reader never observes a half-applied update.
package lifecycle

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cbarrett/foreman/internal/models"
	"gorm.io/gorm"
)

// timeFormat is the timestamp prefix for debug-log lines.
const timeFormat = "2006-01-02 15:04:05"

// Notifier receives best-effort task update notifications. Implementations
// must tolerate being called from any pipeline; errors are logged by the
// caller and never affect the transition.
type Notifier interface {
	TaskUpdated(task *models.Task) error
}

// TransitionOpts holds the optional parts of a status transition.
type TransitionOpts struct {
	Status     models.TaskStatus
	LogMessage string // appended to the debug log when non-blank
	PRURL      string // recorded when non-blank; blank never clears
}

// Transition atomically applies a status change to a task: the new status,
// an optional PR URL, and an optional timestamped debug-log line are
// persisted in one transaction. Prior log lines are preserved exactly.
// Unknown statuses are rejected before any mutation.
func Transition(db *gorm.DB, notifier Notifier, task *models.Task, opts TransitionOpts) (*models.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("lifecycle: task is required")
	}
	if !models.ValidTaskStatus(opts.Status) {
		return nil, fmt.Errorf("lifecycle: task %d: status %q must be one of: %s",
			task.ID, opts.Status, joinStatuses())
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		// Re-read the log under the transaction so concurrent appends from a
		// retried job are never lost.
		var current models.Task
		if err := tx.Select("debug_log").First(&current, task.ID).Error; err != nil {
			return fmt.Errorf("lifecycle: task %d: load: %w", task.ID, err)
		}

		updates := map[string]interface{}{"status": opts.Status}

		if strings.TrimSpace(opts.PRURL) != "" {
			updates["pr_url"] = opts.PRURL
			task.PRURL = opts.PRURL
		}

		if strings.TrimSpace(opts.LogMessage) != "" {
			entry := fmt.Sprintf("[%s] %s", time.Now().Format(timeFormat), opts.LogMessage)
			if current.DebugLog == "" {
				task.DebugLog = entry
			} else {
				task.DebugLog = current.DebugLog + "\n" + entry
			}
			updates["debug_log"] = task.DebugLog
		} else {
			task.DebugLog = current.DebugLog
		}

		if err := tx.Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("lifecycle: task %d: transition to %s: %w", task.ID, opts.Status, err)
		}
		task.Status = opts.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	notifyBestEffort(notifier, task)
	return task, nil
}

// notifyBestEffort delivers a task update to live observers. Failures are
// logged and swallowed; a notification must never roll back a transition.
func notifyBestEffort(notifier Notifier, task *models.Task) {
	if notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("lifecycle: task %d: notify panic: %v", task.ID, r)
		}
	}()
	if err := notifier.TaskUpdated(task); err != nil {
		log.Printf("lifecycle: task %d: notify: %v", task.ID, err)
	}
}

func joinStatuses() string {
	parts := make([]string, len(models.TaskStatuses))
	for i, s := range models.TaskStatuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
