package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gfc/internal/forge"
)

var (
	registerRepo      string
	registerToken     string
	registerHookURL   string
	registerSecret    string
	registerDeployKey string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the webhook on a GitHub repository",
	Long: `Ensure a push webhook pointing at this dispatcher exists on a GitHub-hosted
repository, and optionally upload a read-only deploy key for fetching.

Both operations are idempotent: existing hooks and keys are left alone.`,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerRepo, "repo", "", "repository as owner/name (required)")
	registerCmd.Flags().StringVar(&registerToken, "token", os.Getenv("GITHUB_TOKEN"), "GitHub token (defaults to GITHUB_TOKEN)")
	registerCmd.Flags().StringVar(&registerHookURL, "url", "", "public URL of this dispatcher (required)")
	registerCmd.Flags().StringVar(&registerSecret, "secret", os.Getenv("GFC_WEBHOOK_SECRET"), "webhook secret (defaults to GFC_WEBHOOK_SECRET)")
	registerCmd.Flags().StringVar(&registerDeployKey, "deploy-key", "", "path to a public key to upload as a read-only deploy key")
	registerCmd.MarkFlagRequired("repo")
	registerCmd.MarkFlagRequired("url")
}

func runRegister(cmd *cobra.Command, args []string) error {
	if registerSecret == "" {
		return fmt.Errorf("a webhook secret is required; pass --secret or set GFC_WEBHOOK_SECRET")
	}

	ctx := cmd.Context()
	client, err := forge.NewClient(ctx, registerToken)
	if err != nil {
		return err
	}

	if err := client.EnsureWebhook(ctx, registerRepo, registerHookURL, registerSecret); err != nil {
		return fmt.Errorf("registering webhook: %w", err)
	}
	fmt.Printf("webhook registered on %s -> %s\n", registerRepo, registerHookURL)

	if registerDeployKey != "" {
		publicKey, err := os.ReadFile(registerDeployKey)
		if err != nil {
			return fmt.Errorf("reading deploy key: %w", err)
		}
		if err := client.EnsureDeployKey(ctx, registerRepo, "gfc deploy key", string(publicKey)); err != nil {
			return fmt.Errorf("uploading deploy key: %w", err)
		}
		fmt.Printf("deploy key uploaded to %s\n", registerRepo)
	}

	return nil
}
