package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ArticlePublisher/internal/app"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/infrastructure/content"
	"ArticlePublisher/internal/infrastructure/storage"
	"ArticlePublisher/internal/usecase"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Apply     bool
	ID        string
	Now       string
	Timezone  string
	StatePath string
	Out       string
	Limit     int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Reconcile content against the publication state",
		Long: `Evaluate every content item, then announce what is due and not yet announced.

Without a path the configured content sources are scanned. A directory is
walked recursively (skipping directories that start with "_" or "."), a
Markdown file is evaluated alone and a .yaml file is read as a manifest.

Runs are dry by default: nothing is written and nothing is posted. Pass
--apply to announce and record.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runReconcile(cmd, rootOpts, opts, path)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "post announcements and write state (default is a dry run)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "process a single identity")
	cmd.Flags().StringVar(&opts.Now, "now", "", "evaluate at this instant instead of the system clock")
	cmd.Flags().StringVar(&opts.Timezone, "tz", "", "timezone for naive timestamps (overrides config)")
	cmd.Flags().StringVar(&opts.StatePath, "state", "", "state file (overrides state.path)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum announcements per run, 0 for no limit (overrides reconcile.limit)")

	return cmd
}

func runReconcile(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions, path string) error {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}

	if opts.Timezone != "" {
		if err := cfg.SetTimezone(opts.Timezone); err != nil {
			return WrapExitError(ExitUsage, "invalid --tz", err)
		}
	}
	if opts.StatePath != "" {
		cfg.State.Path = opts.StatePath
	}
	if cmd.Flags().Changed("limit") {
		if opts.Limit < 0 {
			return NewExitError(ExitUsage, "--limit must not be negative")
		}
		cfg.Reconcile.Limit = opts.Limit
	}

	var now time.Time
	if opts.Now != "" {
		now, err = content.ParsePublishAt(opts.Now, cfg.Location())
		if err != nil {
			return WrapExitError(ExitUsage, "invalid --now", err)
		}
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	application := app.New(cfg, logger, rootOpts.AppOptions...)

	report, runErr := application.Reconcile(cmd.Context(), app.RunOptions{
		Path:  path,
		ID:    opts.ID,
		Apply: opts.Apply,
		Now:   now,
	})
	if runErr != nil && errors.Is(runErr, domain.ErrItemNotFound) {
		return WrapExitError(ExitUsage, "invalid --id", runErr)
	}

	if report != nil {
		if err := writeReport(cmd.OutOrStdout(), opts.Out, report, rootOpts.Format); err != nil {
			return WrapExitError(ExitFatal, "write report", err)
		}
	}

	if runErr != nil {
		logger.Error("reconciliation aborted", "error", runErr)
		return WrapExitError(ExitFatal, "reconciliation aborted", runErr)
	}
	if report.ExitCode != ExitSuccess {
		return &ExitError{Code: report.ExitCode}
	}
	return nil
}

func writeReport(stdout io.Writer, out string, report *usecase.Report, format string) error {
	if out == "" {
		return report.Render(stdout, format)
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, format); err != nil {
		return err
	}
	if err := storage.WriteAtomic(out, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}
