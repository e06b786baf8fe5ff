package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/webhook"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// handleCursorWebhook receives status callbacks from the Cursor agent
// platform. Every handled outcome, including unrecognized statuses, returns
// 200; the platform should not retry calls we have already absorbed.
func handleCursorWebhook(db *gorm.DB, proc *webhook.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}

		var task models.Task
		if err := db.First(&task, uint(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("server: webhook: task %d not found", id)
				c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
				return
			}
			log.Printf("server: webhook: load task %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		// Malformed or non-object bodies normalize to an empty payload and
		// fall out as "missing status" below.
		payload := map[string]any{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			log.Printf("server: webhook: task %d: unparseable body: %v", task.ID, err)
			payload = map[string]any{}
		}

		logWebhookReceived(&task, payload)

		result, err := proc.Process(&task, payload)
		switch {
		case errors.Is(err, webhook.ErrMissingStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		case err != nil:
			log.Printf("server: webhook: task %d: %v", task.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		default:
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"task_id": task.ID,
				"status":  result.Status,
			})
		}
	}
}

// logWebhookReceived dumps the inbound callback so a failed delivery can be
// diagnosed without replaying it.
func logWebhookReceived(task *models.Task, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte("<unserializable>")
	}
	log.Printf("server: webhook: task %d (status %s): received %s", task.ID, task.Status, body)
}
