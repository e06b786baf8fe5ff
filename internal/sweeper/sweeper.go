// Package sweeper periodically re-enqueues merges for tasks stuck in
// pr_open. The queue is in-process, so a restart between the FINISHED
// webhook and the merge would otherwise strand the task; the sweeper keeps
// the at-least-once promise honest across restarts.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/queue"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Enqueuer is the slice of the job queue the sweeper needs.
type Enqueuer interface {
	Enqueue(name string, taskID uint) error
}

// Sweeper re-enqueues merge jobs on a cron schedule.
type Sweeper struct {
	DB         *gorm.DB
	Queue      Enqueuer
	Schedule   string        // 5-field cron expression
	StaleAfter time.Duration // how long pr_open may sit before re-enqueueing
}

// Run blocks, sweeping on the configured schedule until ctx is cancelled.
// Returns immediately with an error if the schedule cannot be parsed.
func (s *Sweeper) Run(ctx context.Context) error {
	sched, err := cronParser.Parse(s.Schedule)
	if err != nil {
		return fmt.Errorf("sweeper: parse schedule %q: %w", s.Schedule, err)
	}

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		n, err := s.Sweep()
		if err != nil {
			log.Printf("sweeper: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("sweeper: re-enqueued %d stale merge(s)", n)
		}
	}
}

// Sweep enqueues a merge for every pr_open task that has not been touched
// within StaleAfter. Returns how many were enqueued. Re-enqueueing a task
// whose merge is already in flight is harmless: the merge pipeline's
// pr_open precondition rejects the duplicate.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.StaleAfter)

	var tasks []models.Task
	if err := s.DB.Where("status = ? AND updated_at < ?", models.TaskPROpen, cutoff).
		Find(&tasks).Error; err != nil {
		return 0, fmt.Errorf("sweeper: find stale pr_open tasks: %w", err)
	}

	count := 0
	for _, task := range tasks {
		if err := s.Queue.Enqueue(queue.JobMerge, task.ID); err != nil {
			log.Printf("sweeper: task %d: %v", task.ID, err)
			continue
		}
		count++
	}
	return count, nil
}
