// Package server exposes Foreman's HTTP surface: the Cursor webhook
// endpoint, a small JSON API for epics, and an SSE stream of task updates.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cbarrett/foreman/internal/lifecycle"
	"github.com/cbarrett/foreman/internal/webhook"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Opts holds configuration for the HTTP server.
type Opts struct {
	DB       *gorm.DB
	Queue    webhook.Enqueuer
	Notifier lifecycle.Notifier
	Port     int
	Out      io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Queue == nil {
		return fmt.Errorf("server: queue is required")
	}
	if opts.Port <= 0 {
		opts.Port = 3000
	}

	router := NewRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Foreman listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the Gin router with all routes registered. Exported for
// httptest use.
func NewRouter(opts Opts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// A webhook caller must never see a raw panic.
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))

	proc := &webhook.Processor{DB: opts.DB, Queue: opts.Queue, Notifier: opts.Notifier}

	router.POST("/webhooks/cursor/:task_id", handleCursorWebhook(opts.DB, proc))

	router.GET("/epics", handleEpicList(opts.DB))
	router.GET("/epics/:id", handleEpicShow(opts.DB))
	router.POST("/epics", handleEpicCreate(opts.DB))
	router.POST("/epics/:id/start", handleEpicStart(opts.DB, opts.Queue))

	router.GET("/api/events", handleEvents(opts.DB))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
