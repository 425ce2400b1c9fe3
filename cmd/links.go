package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newLinksCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links <url>",
		Short: "Print a page's same-site links as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			links, err := a.Extractor().ExtractLinks(cmd.Context(), args[0], a.Config().Harvest.MaxLinks)
			if err != nil {
				return fmt.Errorf("extract links: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(links)
		},
	}
	cmd.Flags().Int("max", 0, "maximum links to return")
	bindFlag(v, "harvest.max_links", cmd.Flags().Lookup("max"))
	return cmd
}

// bindFlag panics on a nil flag, which only happens on a typo in a flag name.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
