package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage API credentials",
	}

	cmd.AddCommand(newCredentialAddCmd())
	cmd.AddCommand(newCredentialListCmd())
	return cmd
}

func newCredentialAddCmd() *cobra.Command {
	var configPath string
	var userID uint
	var service, name string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store an API credential",
		Long:  "Prompts for the API key without echoing it to the terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch service {
			case models.ServiceGitHub, models.ServiceCursorAgent:
			default:
				return fmt.Errorf("service must be %s or %s", models.ServiceGitHub, models.ServiceCursorAgent)
			}

			fmt.Fprint(cmd.OutOrStdout(), "API key: ")
			key, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read api key: %w", err)
			}
			if strings.TrimSpace(string(key)) == "" {
				return fmt.Errorf("api key cannot be blank")
			}

			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}

			cred := models.Credential{
				UserID:      userID,
				ServiceName: service,
				Name:        name,
				APIKey:      string(key),
			}
			if err := conn.Create(&cred).Error; err != nil {
				return fmt.Errorf("create credential: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credential %d (%s/%s)\n", cred.ID, service, name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	cmd.Flags().UintVar(&userID, "user", 0, "owning user ID")
	cmd.Flags().StringVar(&service, "service", "", "service name (github or cursor_agent)")
	cmd.Flags().StringVar(&name, "name", "default", "credential name")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("service")
	return cmd
}

func newCredentialListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials (keys are never printed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := openDB(configPath)
			if err != nil {
				return err
			}

			var creds []models.Credential
			if err := conn.Order("id ASC").Find(&creds).Error; err != nil {
				return fmt.Errorf("list credentials: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, cred := range creds {
				fmt.Fprintf(out, "%d\tuser:%d\t%s\t%s\n", cred.ID, cred.UserID, cred.ServiceName, cred.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "foreman.yaml", "path to Foreman config file")
	return cmd
}
