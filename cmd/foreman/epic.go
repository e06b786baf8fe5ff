package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cbarrett/foreman/internal/cursor"
	"github.com/cbarrett/foreman/internal/dispatch"
	"github.com/cbarrett/foreman/internal/epics"
	"github.com/cbarrett/foreman/internal/github"
	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/notify"
	"github.com/cbarrett/foreman/internal/queue"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newEpicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epic",
		Short: "Manage epics",
	}

	cmd.AddCommand(newEpicCreateCmd())
	cmd.AddCommand(newEpicListCmd())
	cmd.AddCommand(newEpicStartCmd())
	return cmd
}

func newEpicCreateCmd() *cobra.Command {
	var configPath string
	var userID, repoID, credentialID uint
	var title, baseBranch string
	var tasks []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an epic with its ordered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}
			if baseBranch == "" {
				baseBranch = inferBaseBranch(cmd.Context(), conn, repoID)
			}

			opts := epics.CreateOpts{
				UserID:       userID,
				RepositoryID: repoID,
				Title:        title,
				BaseBranch:   baseBranch,
				Tasks:        tasks,
			}
			if credentialID > 0 {
				opts.AgentCredentialID = &credentialID
			}

			epic, err := epics.Create(conn, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created epic %d %q with %d tasks\n", epic.ID, epic.Title, len(epic.Tasks))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	cmd.Flags().UintVar(&userID, "user", 0, "owning user ID")
	cmd.Flags().UintVar(&repoID, "repo", 0, "repository ID")
	cmd.Flags().UintVar(&credentialID, "agent-credential", 0, "cursor agent credential ID")
	cmd.Flags().StringVar(&title, "title", "", "epic title (derived from the first task when omitted)")
	cmd.Flags().StringVar(&baseBranch, "base-branch", "", "base branch agents start from (defaults to the repository's default branch)")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, "task description, in execution order (repeatable)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("repo")
	cmd.MarkFlagRequired("task")
	return cmd
}

// newEpicStartCmd starts an epic and dispatches its first pending task in one
// shot. Webhook callbacks land on the serve process; this command only covers
// the launch.
func newEpicStartCmd() *cobra.Command {
	var configPath string
	var userID, epicID uint

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pending epic and dispatch its first task",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, cfg, err := openDB(configPath)
			if err != nil {
				return err
			}

			hub, err := notify.NewHub(conn, cfg.Notify)
			if err != nil {
				return err
			}
			pipeline := &dispatch.Pipeline{
				DB:       conn,
				Launcher: cursor.New(cfg.Cursor),
				Config:   cfg,
				Notifier: hub,
			}

			q := queue.New(queue.Opts{
				Workers:     1,
				MaxAttempts: cfg.Queue.MaxAttempts,
				Backoff:     time.Duration(cfg.Queue.BackoffSeconds) * time.Second,
			})
			q.Register(queue.JobDispatch, func(ctx context.Context, taskID uint) error {
				_, err := pipeline.Run(ctx, taskID)
				return err
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			q.Start(ctx)

			epic, err := epics.Start(conn, q, userID, epicID)
			if err != nil {
				return err
			}
			q.Close()
			q.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "Epic %d %q is %s\n", epic.ID, epic.Title, epic.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	cmd.Flags().UintVar(&userID, "user", 0, "owning user ID")
	cmd.Flags().UintVar(&epicID, "epic", 0, "epic ID")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("epic")
	return cmd
}

func newEpicListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List epics and their task progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}

			var list []models.Epic
			if err := conn.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
				return tx.Order("position ASC")
			}).Order("id ASC").Find(&list).Error; err != nil {
				return fmt.Errorf("list epics: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, epic := range list {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", epic.ID, epic.Status, epic.Title, taskSummary(epic.Tasks))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	return cmd
}

// inferBaseBranch asks GitHub for the repository's default branch. Any
// failure returns empty and epic creation falls back to main.
func inferBaseBranch(ctx context.Context, conn *gorm.DB, repositoryID uint) string {
	var repo models.Repository
	if err := conn.Preload("GitHubCredential").First(&repo, repositoryID).Error; err != nil {
		return ""
	}
	if repo.GitHubCredential == nil {
		return ""
	}
	branch, err := github.New(repo.GitHubCredential.APIKey).InferBaseBranch(ctx, repo.Name)
	if err != nil {
		return ""
	}
	return branch
}

// taskSummary renders task statuses in position order, e.g.
// "completed,running,pending".
func taskSummary(tasks []models.Task) string {
	parts := make([]string, len(tasks))
	for i, t := range tasks {
		parts[i] = string(t.Status)
	}
	return strings.Join(parts, ",")
}
