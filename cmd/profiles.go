package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the loaded site profiles and categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tURL\tFIELDS")
			for _, site := range a.Registry().Sites() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", site.Name, site.BaseURL, strings.Join(site.Selectors.Fields(), ","))
			}
			for _, cat := range a.Registry().Categories() {
				fmt.Fprintf(w, "%s\t(category)\t%s\n", cat.Name, strings.Join(cat.Selectors.Fields(), ","))
			}
			return w.Flush()
		},
	}
}
