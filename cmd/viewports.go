// cmd/viewports.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newViewportsCmd prints the configured viewport registry.
func newViewportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "viewports",
		Short: "Lists the configured viewport registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, vp := range reg.All() {
				fmt.Fprintf(out, "%-10s %dx%d\n", vp.Name, vp.Width, vp.Height)
			}
			fmt.Fprintf(out, "\nlayout selectors: %s\n", strings.Join(reg.Selectors(), ", "))
			return nil
		},
	}
}
