package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/cbarrett/foreman/internal/epics"
	"github.com/cbarrett/foreman/internal/github"
	"github.com/cbarrett/foreman/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// epicCreateRequest is the JSON body for POST /epics.
type epicCreateRequest struct {
	UserID            uint     `json:"user_id" binding:"required"`
	RepositoryID      uint     `json:"repository_id" binding:"required"`
	Title             string   `json:"title"`
	BaseBranch        string   `json:"base_branch"`
	AgentCredentialID *uint    `json:"agent_credential_id"`
	Tasks             []string `json:"tasks" binding:"required"`
}

func handleEpicCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req epicCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.BaseBranch == "" {
			req.BaseBranch = inferBaseBranch(c.Request.Context(), db, req.RepositoryID)
		}

		epic, err := epics.Create(db, epics.CreateOpts{
			UserID:            req.UserID,
			RepositoryID:      req.RepositoryID,
			Title:             req.Title,
			BaseBranch:        req.BaseBranch,
			AgentCredentialID: req.AgentCredentialID,
			Tasks:             req.Tasks,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, epicJSON(epic, true))
	}
}

// inferBaseBranch asks GitHub for the repository's default branch when a
// create request leaves the base branch blank. Best-effort: any failure
// returns empty and epic creation falls back to its own default.
func inferBaseBranch(ctx context.Context, db *gorm.DB, repositoryID uint) string {
	var repo models.Repository
	if err := db.Preload("GitHubCredential").First(&repo, repositoryID).Error; err != nil {
		return ""
	}
	if repo.GitHubCredential == nil {
		return ""
	}
	branch, err := github.New(repo.GitHubCredential.APIKey).InferBaseBranch(ctx, repo.Name)
	if err != nil {
		log.Printf("server: epics: infer base branch for repository %d: %v", repositoryID, err)
		return ""
	}
	return branch
}

func handleEpicList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := db.Order("id DESC")
		if userID := c.Query("user_id"); userID != "" {
			query = query.Where("user_id = ?", userID)
		}

		var list []models.Epic
		if err := query.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		out := make([]gin.H, len(list))
		for i := range list {
			out[i] = epicJSON(&list[i], false)
		}
		c.JSON(http.StatusOK, gin.H{"epics": out})
	}
}

func handleEpicShow(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var epic models.Epic
		err := db.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).First(&epic, c.Param("id")).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Epic not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, epicJSON(&epic, true))
	}
}

// handleEpicStart kicks off a pending epic for the user identified by the
// X-User-ID header. Session management lives in front of this service.
func handleEpicStart(db *gorm.DB, q epics.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
			return
		}
		epicID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Epic not found"})
			return
		}

		epic, err := epics.Start(db, q, uint(userID), uint(epicID))
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, epicJSON(epic, false))
	}
}

func epicJSON(epic *models.Epic, withTasks bool) gin.H {
	out := gin.H{
		"id":            epic.ID,
		"user_id":       epic.UserID,
		"repository_id": epic.RepositoryID,
		"title":         epic.Title,
		"base_branch":   epic.BaseBranch,
		"status":        epic.Status,
	}
	if withTasks {
		tasks := make([]gin.H, len(epic.Tasks))
		for i := range epic.Tasks {
			tasks[i] = taskJSON(&epic.Tasks[i])
		}
		out["tasks"] = tasks
	}
	return out
}

func taskJSON(task *models.Task) gin.H {
	return gin.H{
		"id":          task.ID,
		"position":    task.Position,
		"description": task.Description,
		"status":      task.Status,
		"agent_id":    task.AgentID,
		"branch_name": task.BranchName,
		"pr_url":      task.PRURL,
	}
}
