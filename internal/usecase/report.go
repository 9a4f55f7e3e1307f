package usecase

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ArticlePublisher/internal/domain"
)

// Mode selects whether a run may cause side effects.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// Outcome is what happened (or would happen) to an item's announcement.
type Outcome string

const (
	OutcomeNone             Outcome = "none"
	OutcomeWouldAnnounce    Outcome = "would-announce"
	OutcomeWouldResume      Outcome = "would-resume"
	OutcomeWouldRecord      Outcome = "would-record"
	OutcomeAnnounced        Outcome = "announced"
	OutcomeResumed          Outcome = "resumed"
	OutcomeRecorded         Outcome = "recorded"
	OutcomeAlreadyAnnounced Outcome = "already-announced"
	OutcomeAlreadyRecorded  Outcome = "already-recorded"
	OutcomeDeferred         Outcome = "deferred"
	OutcomeFailedRetryable  Outcome = "failed-retryable"
	OutcomeFailedPermanent  Outcome = "failed-permanent"
)

// Exit codes are a stable external contract.
const (
	ExitOK        = 0
	ExitFatal     = 1
	ExitUsage     = 2
	ExitPending   = 10
	ExitRetryable = 75
)

// Report formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// ItemReport is the per-item line of a run report.
type ItemReport struct {
	Identity              string          `json:"identity" yaml:"identity"`
	Path                  string          `json:"path,omitempty" yaml:"path,omitempty"`
	Title                 string          `json:"title,omitempty" yaml:"title,omitempty"`
	Status                string          `json:"status,omitempty" yaml:"status,omitempty"`
	PublishAt             *time.Time      `json:"publish_at,omitempty" yaml:"publish_at,omitempty"`
	DiscordAnnounce       bool            `json:"discord_announce" yaml:"discord_announce"`
	Decision              domain.Decision `json:"decision" yaml:"decision"`
	Outcome               Outcome         `json:"outcome" yaml:"outcome"`
	ThreadID              string          `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	StarterMessageID      string          `json:"starter_message_id,omitempty" yaml:"starter_message_id,omitempty"`
	AnnouncementMessageID string          `json:"announcement_message_id,omitempty" yaml:"announcement_message_id,omitempty"`
	Error                 string          `json:"error,omitempty" yaml:"error,omitempty"`
	Defects               []string        `json:"defects,omitempty" yaml:"defects,omitempty"`
	Notes                 []string        `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Summary counts items by decision and outcome.
type Summary struct {
	Total           int `json:"total" yaml:"total"`
	Build           int `json:"build" yaml:"build"`
	Publish         int `json:"publish" yaml:"publish"`
	Invalid         int `json:"invalid" yaml:"invalid"`
	Pending         int `json:"pending" yaml:"pending"`
	Announced       int `json:"announced" yaml:"announced"`
	Resumed         int `json:"resumed" yaml:"resumed"`
	Recorded        int `json:"recorded" yaml:"recorded"`
	Deferred        int `json:"deferred" yaml:"deferred"`
	FailedRetryable int `json:"failed_retryable" yaml:"failed_retryable"`
	FailedPermanent int `json:"failed_permanent" yaml:"failed_permanent"`
}

// Report is the machine-readable result of one run.
type Report struct {
	RunID        string       `json:"run_id" yaml:"run_id"`
	Mode         Mode         `json:"mode" yaml:"mode"`
	Now          time.Time    `json:"now" yaml:"now"`
	MigratedFrom *int         `json:"migrated_from,omitempty" yaml:"migrated_from,omitempty"`
	Items        []ItemReport `json:"items" yaml:"items"`
	Summary      Summary      `json:"summary" yaml:"summary"`
	ExitCode     int          `json:"exit_code" yaml:"exit_code"`
}

// Finalize recomputes the summary and exit code from the item list.
// Fatal wins over retryable, retryable over pending.
func (r *Report) Finalize() {
	s := Summary{Total: len(r.Items)}
	for _, it := range r.Items {
		if it.Decision.ShouldBuild {
			s.Build++
		}
		if it.Decision.ShouldPublish {
			s.Publish++
		}
		if it.Decision.Reason == domain.ReasonInvalidFrontmatter {
			s.Invalid++
		}
		switch it.Outcome {
		case OutcomeWouldAnnounce, OutcomeWouldResume:
			s.Pending++
		case OutcomeAnnounced:
			s.Announced++
		case OutcomeResumed:
			s.Resumed++
		case OutcomeRecorded, OutcomeWouldRecord:
			s.Recorded++
		case OutcomeDeferred:
			s.Deferred++
		case OutcomeFailedRetryable:
			s.FailedRetryable++
		case OutcomeFailedPermanent:
			s.FailedPermanent++
		}
	}
	r.Summary = s

	switch {
	case s.FailedPermanent > 0:
		r.ExitCode = ExitFatal
	case s.FailedRetryable > 0 || s.Deferred > 0:
		r.ExitCode = ExitRetryable
	case s.Pending > 0:
		r.ExitCode = ExitPending
	default:
		r.ExitCode = ExitOK
	}
}

// ValidFormat reports whether Render understands format.
func ValidFormat(format string) bool {
	switch format {
	case FormatJSON, FormatYAML, FormatText:
		return true
	default:
		return false
	}
}

// Render writes the report in the requested format.
func (r *Report) Render(w io.Writer, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return r.renderText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

type textGroup struct {
	title string
	match func(ItemReport) bool
}

var textGroups = []textGroup{
	{"PUBLISH NOW", func(it ItemReport) bool { return it.Decision.Reason == domain.ReasonDue }},
	{"SCHEDULED LATER", func(it ItemReport) bool {
		return it.Decision.Reason == domain.ReasonNotYetDue || it.Decision.Reason == domain.ReasonMissingPublishAt
	}},
	{"DRAFT", func(it ItemReport) bool { return it.Decision.Reason == domain.ReasonDraft }},
	{"PUBLISHED", func(it ItemReport) bool { return it.Decision.Reason == domain.ReasonExplicitPublish }},
	{"HIDDEN", func(it ItemReport) bool { return it.Decision.Reason == domain.ReasonHidden }},
	{"ARCHIVED", func(it ItemReport) bool { return it.Decision.Reason == domain.ReasonArchived }},
}

func (r *Report) renderText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s (%s) at %s\n", r.RunID, r.Mode, r.Now.Format(time.RFC3339))
	if r.MigratedFrom != nil {
		fmt.Fprintf(&b, "state migrated from schema v%d\n", *r.MigratedFrom)
	}

	for _, g := range textGroups {
		var items []ItemReport
		for _, it := range r.Items {
			if it.Decision.Reason != domain.ReasonInvalidFrontmatter && g.match(it) {
				items = append(items, it)
			}
		}
		fmt.Fprintf(&b, "\n== %s (%d) ==\n", g.title, len(items))
		for _, it := range sortedByPath(items) {
			writeTextItem(&b, it)
		}
	}

	var problems []ItemReport
	for _, it := range r.Items {
		if it.Decision.Reason == domain.ReasonInvalidFrontmatter {
			problems = append(problems, it)
		}
	}
	if len(problems) > 0 {
		fmt.Fprintf(&b, "\n== PROBLEMS (%d) ==\n", len(problems))
		for _, it := range sortedByPath(problems) {
			fmt.Fprintf(&b, "- %s\n", displayPath(it))
			for _, d := range it.Defects {
				fmt.Fprintf(&b, "  error: %s\n", d)
			}
		}
	}

	s := r.Summary
	fmt.Fprintf(&b, "\n%d items: %d publish, %d pending, %d announced, %d resumed, %d recorded, %d deferred, %d failed (%d permanent), %d invalid\n",
		s.Total, s.Publish, s.Pending, s.Announced, s.Resumed, s.Recorded, s.Deferred,
		s.FailedRetryable+s.FailedPermanent, s.FailedPermanent, s.Invalid)
	fmt.Fprintf(&b, "exit %d\n", r.ExitCode)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTextItem(b *strings.Builder, it ItemReport) {
	fmt.Fprintf(b, "- %s\n", displayPath(it))
	fmt.Fprintf(b, "  id: %s\n", it.Identity)
	if it.Title != "" {
		fmt.Fprintf(b, "  title: %s\n", it.Title)
	}
	if it.PublishAt != nil {
		fmt.Fprintf(b, "  publish_at: %s\n", it.PublishAt.Format(time.RFC3339))
	}
	if it.Outcome != OutcomeNone {
		line := string(it.Outcome)
		if it.ThreadID != "" {
			line += " thread " + it.ThreadID
		}
		fmt.Fprintf(b, "  discord: %s\n", line)
	}
	if it.Error != "" {
		fmt.Fprintf(b, "  error: %s\n", it.Error)
	}
	for _, n := range it.Notes {
		fmt.Fprintf(b, "  note: %s\n", n)
	}
}

func displayPath(it ItemReport) string {
	if it.Path != "" {
		return it.Path
	}
	return it.Identity
}

func sortedByPath(items []ItemReport) []ItemReport {
	sort.SliceStable(items, func(i, j int) bool {
		return displayPath(items[i]) < displayPath(items[j])
	})
	return items
}
