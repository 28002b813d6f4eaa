// cmd/checks.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/observability"
)

// newChecksCmd lists the assertion families and the viewports each runs at.
func newChecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "Lists the available assertion families",
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
			for _, c := range checks.All(checkOptions(cfg, observability.GetLogger())) {
				names := make([]string, 0, 3)
				for _, vp := range c.Viewports(reg) {
					names = append(names, vp.Name)
				}
				fmt.Fprintf(out, "%-14s %s\n", c.Name(), c.Description())
				fmt.Fprintf(out, "%-14s viewports: %s\n", "", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
