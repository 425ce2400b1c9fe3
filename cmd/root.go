// Package cmd defines the harvester CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/app"
	"github.com/JakeFAU/news-harvester/internal/config"
	"github.com/JakeFAU/news-harvester/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd wires the subcommands around a shared Viper instance. Flags bound
// to v override the config file and HARVESTER_* environment variables.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests news articles from sitemaps and site pages.",
		Long: `harvester discovers sitemaps for a list of seed sites, extracts article
metadata (and optionally scrapes pages with per-site selectors), drops
anything already stored, and persists the new articles.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Log.Development,
				Level:       cfg.Log.Level,
				File:        cfg.Log.File,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := app.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				if err := appInstance.Close(); err != nil {
					appInstance.Logger().Warn("close services", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newRunCmd(v),
		newLinksCmd(v),
		newMigrateCmd(),
		newProfilesCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd(viper.New())
	if err := root.ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(logging.Config{})
		if lerr != nil {
			logger = zap.NewExample()
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
