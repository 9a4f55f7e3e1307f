package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ArticlePublisher/internal/domain"
)

// Version is set at build time with -ldflags "-X ArticlePublisher/internal/cli.Version=...".
var Version = "dev"

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and supported state schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "articlepublisher %s (state schema v%d)\n", Version, domain.SchemaVersion); err != nil {
				return WrapExitError(ExitFatal, "write output", err)
			}
			return nil
		},
	}
}
