package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ArticlePublisher/internal/app"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/usecase"
)

// StateOptions holds flags shared by state subcommands.
type StateOptions struct {
	StatePath string
	Target    int
}

// NewStateCommand creates the state command group.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or migrate the publication state file",
	}
	cmd.PersistentFlags().StringVar(&opts.StatePath, "state", "", "state file (overrides state.path)")

	show := &cobra.Command{
		Use:           "show",
		Short:         "Print the state document at the current schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateShow(cmd, rootOpts, opts)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite the state file at a schema version",
		Long: fmt.Sprintf(`Rewrite the state file at a schema version (default v%d, the current one).

Older targets use the documented downgrade chain so that an older release can
read the file again:
  v0  flat map written by the original publisher scripts
  v1  {schema_version, records} with nested discord.forum / discord.announce
  v2  flat records with thread and announcement ids`, domain.SchemaVersion),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateMigrate(cmd, rootOpts, opts)
		},
	}
	migrate.Flags().IntVar(&opts.Target, "to", domain.SchemaVersion, "target schema version")

	cmd.AddCommand(show, migrate)
	return cmd
}

func newStateApp(cmd *cobra.Command, rootOpts *RootOptions, opts *StateOptions) (*app.Application, error) {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return nil, err
	}
	if opts.StatePath != "" {
		cfg.State.Path = opts.StatePath
	}
	return app.New(cfg, newLogger(cfg, cmd.ErrOrStderr()), rootOpts.AppOptions...), nil
}

func runStateShow(cmd *cobra.Command, rootOpts *RootOptions, opts *StateOptions) error {
	application, err := newStateApp(cmd, rootOpts, opts)
	if err != nil {
		return err
	}
	doc, err := application.StateShow(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFatal, "load state", err)
	}

	if err := writeState(cmd.OutOrStdout(), rootOpts.Format, doc); err != nil {
		return WrapExitError(ExitFatal, "write state", err)
	}
	return nil
}

func writeState(out io.Writer, format string, doc *domain.StateDocument) error {
	switch format {
	case usecase.FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case usecase.FormatText:
		var b strings.Builder
		fmt.Fprintf(&b, "schema v%d, %d records\n", doc.SchemaVersion, len(doc.Records))
		if doc.Migrated() {
			fmt.Fprintf(&b, "on disk: v%d (migrated in memory)\n", doc.MigratedFrom)
		}
		for _, id := range doc.Identities() {
			rec, _ := doc.Get(id)
			state := "recorded"
			switch {
			case rec.Partial():
				state = "partial"
			case rec.Announced():
				state = "announced"
			}
			fmt.Fprintf(&b, "- %s: %s", id, state)
			if rec.ThreadID != "" {
				fmt.Fprintf(&b, " thread %s", rec.ThreadID)
			}
			b.WriteByte('\n')
		}
		_, err := io.WriteString(out, b.String())
		return err
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}

func runStateMigrate(cmd *cobra.Command, rootOpts *RootOptions, opts *StateOptions) error {
	if opts.Target < 0 || opts.Target > domain.SchemaVersion {
		return NewExitError(ExitUsage, fmt.Sprintf("--to must be between 0 and %d", domain.SchemaVersion))
	}
	application, err := newStateApp(cmd, rootOpts, opts)
	if err != nil {
		return err
	}
	from, err := application.StateMigrate(cmd.Context(), opts.Target)
	if err != nil {
		return WrapExitError(ExitFatal, "migrate state", err)
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "state migrated from v%d to v%d\n", from, opts.Target); err != nil {
		return WrapExitError(ExitFatal, "write output", err)
	}
	return nil
}
