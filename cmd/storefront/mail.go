package main

import (
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/R3E-Network/storefront/internal/app"
)

func newMailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Inspect the mail transport",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check that the SMTP relay accepts a connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application) error {
				if err := a.Abandonment.VerifySender(cmd.Context()); err != nil {
					return fmt.Errorf("mail transport: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mail transport ok")
				return nil
			})
		},
	})
	return cmd
}
