package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the article table and its indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.Config().Store.Provider != "postgres" {
				return fmt.Errorf("migrate needs store.provider=postgres, got %q", a.Config().Store.Provider)
			}
			store, err := a.OpenPostgres(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			a.Logger().Info("schema ready", zap.String("table", a.Config().Store.Table))
			return nil
		},
	}
}
