package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/sufield/securechain/internal/buildinfo"
)

// newManCommand generates manual pages. Shell completion is cobra's built-in command.
func newManCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "man [directory]",
		Short: "Generate manual pages",
		Long: `Generate manual pages for this command and all of its subcommands.

If no directory is specified, manual pages are written to the current directory.

Example:
  secure-client man /usr/local/share/man/man1`,
		Args:              usageArgs(cobra.MaximumNArgs(1)),
		PersistentPreRunE: skipLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			root := cmd.Root()
			header := &doc.GenManHeader{
				Title:   root.Name(),
				Section: "1",
				Source:  "securechain " + buildinfo.Get().Version,
				Manual:  "securechain Manual",
			}
			if err := doc.GenManTree(root, header, dir); err != nil {
				return fmt.Errorf("failed to generate manual pages: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Manual pages generated in directory: %s\n", dir)
			return nil
		},
	}
}
