package cli

import (
	"github.com/spf13/cobra"

	"github.com/sufield/securechain/internal/buildinfo"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  usageArgs(cobra.NoArgs),
		// Build information needs no configuration or trust material.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.prepareOutput()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printer(cmd).Version(buildinfo.Get())
		},
	}
}
