package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/R3E-Network/storefront/internal/app"
)

func newAbandonmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandonment",
		Short: "Run abandoned cart jobs once",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Send every reminder that is currently due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application) error {
				advanced, err := a.Abandonment.ProcessAbandonedCarts(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "reminders sent: %d\n", advanced)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete resolved records older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application) error {
				removed, err := a.Abandonment.CleanupOldRecords(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "records removed: %d\n", removed)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print abandonment statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application) error {
				stats, err := a.Abandonment.Stats(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	})
	return cmd
}
