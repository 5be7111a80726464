// Command storefront runs the storefront API and its maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	app "github.com/R3E-Network/storefront/internal/app"
	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var (
	configFile string
	envFile    string

	cfg *config.Config
	log *logger.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront API with abandoned cart reminders",
		Long: `Storefront serves the shop API and runs the background jobs that
email shoppers about carts they left behind.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv("STOREFRONT_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newAbandonmentCmd())
	root.AddCommand(newMailCmd())
	root.AddCommand(newAdminCmd())
	return root
}

// loadConfig reads the dotenv file when present, then the config file and
// environment.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if path := strings.TrimSpace(envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = loaded
	log = logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).Named("storefront")
	log.WithField("command", cmd.CommandPath()).Debug("configuration loaded")
	return nil
}

// withApp builds the application for one-shot commands and releases it
// afterwards. The scheduler is not started.
func withApp(ctx context.Context, fn func(*app.Application) error) error {
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Stop(context.Background()); err != nil {
			log.WithError(err).Warn("release application resources")
		}
	}()
	return fn(application)
}
