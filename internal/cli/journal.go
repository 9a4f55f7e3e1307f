package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ArticlePublisher/internal/app"
	"ArticlePublisher/internal/infrastructure/journal"
	"ArticlePublisher/internal/ports"
	"ArticlePublisher/internal/usecase"
)

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	var filter journal.Filter

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "Print the announcement journal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return NewExitError(ExitUsage, "--limit must not be negative")
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			application := app.New(cfg, newLogger(cfg, cmd.ErrOrStderr()), rootOpts.AppOptions...)
			entries, err := application.JournalEntries(cmd.Context(), filter)
			if err != nil {
				return WrapExitError(ExitFatal, "read journal", err)
			}

			if err := writeJournal(cmd.OutOrStdout(), rootOpts.Format, entries); err != nil {
				return WrapExitError(ExitFatal, "write journal", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Identity, "id", "", "only entries for this identity")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "most recent entries to print, 0 for all")
	return cmd
}

func writeJournal(out io.Writer, format string, entries []ports.JournalEntry) error {
	switch format {
	case usecase.FormatYAML:
		enc := yaml.NewEncoder(out)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case usecase.FormatText:
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s %s %s %s", e.At.Format(time.RFC3339), e.Identity, e.Action, e.Outcome)
			if e.ThreadID != "" {
				fmt.Fprintf(&b, " thread=%s", e.ThreadID)
			}
			if e.MessageID != "" {
				fmt.Fprintf(&b, " message=%s", e.MessageID)
			}
			if e.Error != "" {
				fmt.Fprintf(&b, " error=%q", e.Error)
			}
			b.WriteByte('\n')
		}
		_, err := io.WriteString(out, b.String())
		return err
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
}
