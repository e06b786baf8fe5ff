package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbarrett/foreman/internal/config"
	"github.com/cbarrett/foreman/internal/cursor"
	"github.com/cbarrett/foreman/internal/db"
	"github.com/cbarrett/foreman/internal/dispatch"
	"github.com/cbarrett/foreman/internal/github"
	"github.com/cbarrett/foreman/internal/merge"
	"github.com/cbarrett/foreman/internal/notify"
	"github.com/cbarrett/foreman/internal/queue"
	"github.com/cbarrett/foreman/internal/server"
	"github.com/cbarrett/foreman/internal/sweeper"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Foreman server",
		Long:  "Starts the webhook endpoint, JSON API, job queue workers, and the stale-merge sweeper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured HTTP port")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("serve: %v (using defaults)", err)
		cfg = config.Default()
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	conn, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(conn); err != nil {
		return err
	}

	hub, err := notify.NewHub(conn, cfg.Notify)
	if err != nil {
		return err
	}

	q := queue.New(queue.Opts{
		Workers:     cfg.Queue.Workers,
		Buffer:      cfg.Queue.Buffer,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     time.Duration(cfg.Queue.BackoffSeconds) * time.Second,
	})

	dispatchPipeline := &dispatch.Pipeline{
		DB:       conn,
		Launcher: cursor.New(cfg.Cursor),
		Config:   cfg,
		Notifier: hub,
	}
	mergePipeline := &merge.Pipeline{
		DB: conn,
		NewClient: func(token string) merge.GitClient {
			return github.New(token)
		},
		Notifier: hub,
	}

	q.Register(queue.JobDispatch, func(ctx context.Context, taskID uint) error {
		_, err := dispatchPipeline.Run(ctx, taskID)
		return err
	})
	q.Register(queue.JobMerge, func(ctx context.Context, taskID uint) error {
		_, err := mergePipeline.Run(ctx, taskID)
		return err
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q.Start(ctx)

	sw := &sweeper.Sweeper{
		DB:         conn,
		Queue:      q,
		Schedule:   cfg.Sweeper.Schedule,
		StaleAfter: time.Duration(cfg.Sweeper.StaleAfterMinutes) * time.Minute,
	}
	go func() {
		if err := sw.Run(ctx); err != nil {
			log.Printf("serve: %v", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Callback base URL: %s\n", cfg.BaseURL)
	return server.Start(ctx, server.Opts{
		DB:       conn,
		Queue:    q,
		Notifier: hub,
		Port:     cfg.Server.Port,
		Out:      cmd.OutOrStdout(),
	})
}
