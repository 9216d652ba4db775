package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gfc/internal/security"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret",
	Long:  `Generate a cryptographically random secret suitable for GFC_WEBHOOK_SECRET.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}
