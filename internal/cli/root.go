package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"ArticlePublisher/internal/app"
	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/logging"
	"ArticlePublisher/internal/usecase"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "yaml" | "text"

	// AppOptions are passed to every Application; tests inject fakes here.
	AppOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{usecase.FormatJSON, usecase.FormatYAML, usecase.FormatText}

// NewRootCommand creates the root command for the publisher CLI.
func NewRootCommand(appOpts ...app.Option) *cobra.Command {
	opts := &RootOptions{AppOptions: appOpts}

	cmd := &cobra.Command{
		Use:   "articlepublisher",
		Short: "Decide, publish and announce articles exactly once",
		Long: `articlepublisher evaluates article frontmatter against the clock, records
what has been published and announces new articles to Discord exactly once,
even across repeated runs, crashes or manual retries.

Exit codes:
  0   ok         every item resolved
  10  pending    dry-run found announcements that apply mode would send
  75  retryable  an item failed transiently or was deferred by --limit; re-run
  1   fatal      state corruption, lock contention, permanent failure, config error
  2   usage      invalid command-line input`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !usecase.ValidFormat(opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration (env ARTICLE_PUBLISHER_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", usecase.FormatJSON, "output format (json|yaml|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig reads configuration; failures are fatal, not usage errors.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitFatal, "load config", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.NewWithWriter(w, cfg.Logging.Level, cfg.Logging.Format)
}
