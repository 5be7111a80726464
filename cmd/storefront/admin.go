package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/R3E-Network/storefront/internal/app"
	"github.com/R3E-Network/storefront/internal/app/domain/user"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var email, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long: `Create an admin account. The password is read from
STOREFRONT_ADMIN_PASSWORD so it never appears in shell history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv("STOREFRONT_ADMIN_PASSWORD")
			if strings.TrimSpace(password) == "" {
				return errors.New("STOREFRONT_ADMIN_PASSWORD is not set")
			}
			return withApp(cmd.Context(), func(a *app.Application) error {
				u, err := a.Auth.CreateAccount(cmd.Context(), email, password, name, user.RoleAdmin)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %s\n", u.Email, u.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "admin email address")
	create.Flags().StringVar(&name, "name", "", "display name")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)
	return cmd
}
