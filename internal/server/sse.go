package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// handleEvents streams task status changes for one epic as server-sent
// events, the live-observer counterpart to chat notifications. Clients pass
// ?epic_id=N and receive a "task" event whenever a task's status or PR URL
// changes.
func handleEvents(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		epicID := c.Query("epic_id")
		if db == nil || epicID == "" {
			return
		}

		// Snapshot current state so only changes are emitted.
		seen := map[uint]taskSnapshot{}
		var initial []models.Task
		if err := db.Where("epic_id = ?", epicID).Find(&initial).Error; err == nil {
			for _, t := range initial {
				seen[t.ID] = taskSnapshot{Status: t.Status, PRURL: t.PRURL}
			}
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var tasks []models.Task
				if err := db.Where("epic_id = ?", epicID).Order("position ASC").
					Find(&tasks).Error; err != nil {
					continue
				}
				for _, t := range tasks {
					prev, ok := seen[t.ID]
					if ok && prev.Status == t.Status && prev.PRURL == t.PRURL {
						continue
					}
					seen[t.ID] = taskSnapshot{Status: t.Status, PRURL: t.PRURL}
					writeSSE(c.Writer, "task", taskJSON(&t))
					c.Writer.Flush()
				}
			}
		}
	}
}

// taskSnapshot holds the last-seen state of a task for change detection.
type taskSnapshot struct {
	Status models.TaskStatus
	PRURL  string
}

// writeSSE writes one server-sent event in wire format.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
