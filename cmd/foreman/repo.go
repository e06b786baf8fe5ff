package main

import (
	"fmt"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/spf13/cobra"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
	}

	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	return cmd
}

func newRepoAddCmd() *cobra.Command {
	var configPath string
	var userID, credentialID uint
	var name, url string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}

			repo := models.Repository{
				UserID:    userID,
				Name:      name,
				GitHubURL: url,
			}
			if credentialID > 0 {
				repo.GitHubCredentialID = &credentialID
			}
			if err := conn.Create(&repo).Error; err != nil {
				return fmt.Errorf("create repository: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered repository %d (%s)\n", repo.ID, repo.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	cmd.Flags().UintVar(&userID, "user", 0, "owning user ID")
	cmd.Flags().UintVar(&credentialID, "github-credential", 0, "GitHub credential ID used for merges")
	cmd.Flags().StringVar(&name, "name", "", "repository in owner/repo form")
	cmd.Flags().StringVar(&url, "url", "", "repository URL agents clone from")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newRepoListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}

			var repos []models.Repository
			if err := conn.Order("id ASC").Find(&repos).Error; err != nil {
				return fmt.Errorf("list repositories: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, repo := range repos {
				fmt.Fprintf(out, "%d\tuser:%d\t%s\t%s\n", repo.ID, repo.UserID, repo.Name, repo.GitHubURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	return cmd
}
