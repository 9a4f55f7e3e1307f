package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ArticlePublisher/internal/decision"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// ReconcilerDeps wires the driven adapters into the reconciliation loop.
type ReconcilerDeps struct {
	Store     ports.StateStore
	Announcer ports.Announcer
	Journal   ports.Journal
	Logger    *slog.Logger

	// Location renders publish_at in records.
	Location *time.Location
	// Limit caps announcement dispatches per run; zero means no cap.
	Limit int
	// Concurrency bounds parallel dispatches.
	Concurrency int
	// Clock stamps records; decisions use the instant passed to Run.
	Clock func() time.Time
	// NewRunID overrides run id generation.
	NewRunID func() string
}

// Reconciler drives content items towards their announced state exactly once.
type Reconciler struct {
	store       ports.StateStore
	announcer   ports.Announcer
	journal     ports.Journal
	logger      *slog.Logger
	location    *time.Location
	limit       int
	concurrency int
	clock       func() time.Time
	newRunID    func() string
}

// NewReconciler constructs the orchestration component.
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		store:       deps.Store,
		announcer:   deps.Announcer,
		journal:     deps.Journal,
		logger:      deps.Logger,
		location:    deps.Location,
		limit:       deps.Limit,
		concurrency: deps.Concurrency,
		clock:       deps.Clock,
		newRunID:    deps.NewRunID,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.location == nil {
		r.location = time.UTC
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.newRunID == nil {
		r.newRunID = newRunID
	}
	return r
}

type action int

const (
	actionNone action = iota
	actionAnnounce
	actionResume
	actionRecord
)

type task struct {
	index  int
	item   domain.ContentItem
	action action
	thread string
}

// Run reconciles items at now. Per-item failures end up in the report; an
// error is returned only for store failures, together with the report
// built so far.
func (r *Reconciler) Run(ctx context.Context, items []domain.ContentItem, now time.Time, mode Mode) (*Report, error) {
	if r.store == nil {
		return nil, errors.New("state store is not configured")
	}
	if mode != ModeApply && mode != ModeDryRun {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	report := &Report{RunID: r.newRunID(), Mode: mode, Now: now}
	log := r.logger.With("run_id", report.RunID, "mode", string(mode))

	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if doc.Migrated() {
		from := doc.MigratedFrom
		report.MigratedFrom = &from
		if mode == ModeApply {
			if err := r.store.Save(ctx, doc); err != nil {
				return nil, fmt.Errorf("persist migrated state: %w", err)
			}
			log.Info("state migrated", "from", from, "to", doc.SchemaVersion)
		} else {
			log.Info("state would be migrated", "from", from, "to", doc.SchemaVersion)
		}
	}

	sorted := append([]domain.ContentItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].SourcePath < sorted[j].SourcePath
	})

	report.Items = make([]ItemReport, len(sorted))
	var dispatch []task
	var recordOnly []task
	dispatched := 0

	for i, item := range sorted {
		d := decision.Decide(item, now)
		rep := newItemReport(item, d)

		t := r.plan(item, d, doc)
		t.index = i

		switch t.action {
		case actionNone:
			if rec, ok := doc.Get(item.ID); ok && d.ShouldPublish {
				rep.withRecord(rec)
				if rec.Announced() {
					rep.Outcome = OutcomeAlreadyAnnounced
				} else {
					rep.Outcome = OutcomeAlreadyRecorded
				}
			}
		case actionRecord:
			if mode == ModeDryRun {
				rep.Outcome = OutcomeWouldRecord
			} else {
				recordOnly = append(recordOnly, t)
			}
		case actionAnnounce, actionResume:
			if r.limit > 0 && dispatched >= r.limit {
				rep.Outcome = OutcomeDeferred
				break
			}
			dispatched++
			if mode == ModeDryRun {
				rep.Outcome = OutcomeWouldAnnounce
				if t.action == actionResume {
					rep.Outcome = OutcomeWouldResume
					rep.ThreadID = t.thread
				}
			} else {
				dispatch = append(dispatch, t)
			}
		}
		report.Items[i] = rep
	}

	if mode == ModeApply {
		if err := r.apply(ctx, log, report, doc, recordOnly, dispatch); err != nil {
			report.Finalize()
			return report, err
		}
	}

	report.Finalize()
	log.Info("reconciliation done",
		"items", report.Summary.Total,
		"announced", report.Summary.Announced,
		"resumed", report.Summary.Resumed,
		"pending", report.Summary.Pending,
		"deferred", report.Summary.Deferred,
		"failed", report.Summary.FailedRetryable+report.Summary.FailedPermanent,
		"exit_code", report.ExitCode)
	return report, nil
}

func (r *Reconciler) plan(item domain.ContentItem, d domain.Decision, doc *domain.StateDocument) task {
	t := task{item: item}
	if !d.ShouldPublish {
		return t
	}
	rec, has := doc.Get(item.ID)
	switch {
	case item.Announce && has && rec.Announced():
	case item.Announce && has && rec.Partial():
		t.action = actionResume
		t.thread = rec.ThreadID
	case item.Announce:
		t.action = actionAnnounce
	case !has:
		t.action = actionRecord
	}
	return t
}

func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, report *Report, doc *domain.StateDocument, recordOnly, dispatch []task) error {
	if len(recordOnly) > 0 {
		at := r.clock().UTC()
		for _, t := range recordOnly {
			rec := r.baseRecord(doc, t.item, at)
			rec.LastAction = &domain.LastAction{Action: domain.ActionRecorded, At: at}
			doc.Upsert(rec)
			report.Items[t.index].Outcome = OutcomeRecorded
			r.appendJournal(ctx, log, report.RunID, t.item.ID, domain.ActionRecorded, string(OutcomeRecorded), "", "", nil)
		}
		if err := r.store.Save(ctx, doc); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}

	if len(dispatch) == 0 {
		return nil
	}
	if r.announcer == nil {
		for _, t := range dispatch {
			rep := &report.Items[t.index]
			rep.Outcome = OutcomeFailedPermanent
			rep.Error = "announcer is not configured"
		}
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, t := range dispatch {
		g.Go(func() error {
			return r.dispatch(gctx, log, report, doc, &mu, t)
		})
	}
	return g.Wait()
}

// dispatch performs one item's external calls. Only store failures are
// returned; everything else is recorded on the item report.
func (r *Reconciler) dispatch(ctx context.Context, log *slog.Logger, report *Report, doc *domain.StateDocument, mu *sync.Mutex, t task) error {
	var (
		res domain.AnnouncementResult
		err error
	)
	if t.action == actionResume {
		res.ThreadID = t.thread
		res.AnnouncementMessageID, err = r.announcer.Resume(ctx, t.item, t.thread)
	} else {
		res, err = r.announcer.Announce(ctx, t.item)
	}

	at := r.clock().UTC()
	mu.Lock()
	defer mu.Unlock()

	rep := &report.Items[t.index]
	rep.ThreadID = res.ThreadID
	rep.StarterMessageID = res.StarterMessageID
	rep.AnnouncementMessageID = res.AnnouncementMessageID

	threadCreated := t.action == actionAnnounce && res.ThreadID != ""
	if threadCreated {
		r.appendJournal(ctx, log, report.RunID, t.item.ID, domain.ActionForumPost, "ok", res.ThreadID, res.StarterMessageID, nil)
	}

	if err != nil {
		rep.Error = err.Error()
		rep.Outcome = OutcomeFailedRetryable
		if domain.IsPermanent(err) {
			rep.Outcome = OutcomeFailedPermanent
		}
		failedAction := domain.ActionAnnouncePost
		if t.action == actionAnnounce && !threadCreated {
			failedAction = domain.ActionForumPost
		}
		r.appendJournal(ctx, log, report.RunID, t.item.ID, failedAction, string(rep.Outcome), res.ThreadID, "", err)
		log.Warn("announcement failed", "identity", t.item.ID, "outcome", string(rep.Outcome), "error", err)
	} else {
		rep.Outcome = OutcomeAnnounced
		if t.action == actionResume {
			rep.Outcome = OutcomeResumed
		}
		r.appendJournal(ctx, log, report.RunID, t.item.ID, domain.ActionAnnouncePost, "ok", res.ThreadID, res.AnnouncementMessageID, nil)
		log.Info("announced", "identity", t.item.ID, "thread_id", res.ThreadID, "message_id", res.AnnouncementMessageID)
	}

	if !threadCreated && res.AnnouncementMessageID == "" {
		return nil
	}

	rec := r.baseRecord(doc, t.item, at)
	if threadCreated {
		rec.ThreadID = res.ThreadID
		rec.StarterMessageID = res.StarterMessageID
		rec.ThreadPostedAt = &at
		rec.LastAction = &domain.LastAction{Action: domain.ActionForumPost, At: at}
	}
	if res.AnnouncementMessageID != "" {
		rec.AnnouncementMessageID = res.AnnouncementMessageID
		rec.AnnouncedAt = &at
		rec.LastAction = &domain.LastAction{Action: domain.ActionAnnouncePost, At: at}
	}
	doc.Upsert(rec)

	// The saved document must survive even if the batch is cancelled.
	if err := r.store.Save(context.WithoutCancel(ctx), doc); err != nil {
		return fmt.Errorf("save state after %s: %w", t.item.ID, err)
	}
	return nil
}

// baseRecord returns the existing record for item, or a fresh one stamped at,
// with metadata refreshed from the item.
func (r *Reconciler) baseRecord(doc *domain.StateDocument, item domain.ContentItem, at time.Time) domain.Record {
	rec, ok := doc.Get(item.ID)
	if !ok {
		rec = domain.Record{Identity: item.ID, PublishedAt: at}
	}
	rec.Path = item.SourcePath
	rec.Title = item.Title
	rec.Section = item.Section
	if item.PublishAt != nil {
		rec.PublishAt = item.PublishAt.In(r.location).Format("2006-01-02 15:04")
	}
	rec.SchemaVersion = domain.SchemaVersion
	return rec
}

func (r *Reconciler) appendJournal(ctx context.Context, log *slog.Logger, runID, identity, act, outcome, threadID, messageID string, cause error) {
	if r.journal == nil {
		return
	}
	entry := ports.JournalEntry{
		RunID:     runID,
		At:        r.clock().UTC(),
		Identity:  identity,
		Action:    act,
		Outcome:   outcome,
		ThreadID:  threadID,
		MessageID: messageID,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := r.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("journal append failed", "identity", identity, "action", act, "error", err)
	}
}

func newItemReport(item domain.ContentItem, d domain.Decision) ItemReport {
	return ItemReport{
		Identity:        item.ID,
		Path:            item.SourcePath,
		Title:           item.Title,
		Status:          string(item.Status),
		PublishAt:       item.PublishAt,
		DiscordAnnounce: item.Announce,
		Decision:        d,
		Outcome:         OutcomeNone,
		Defects:         item.Defects,
		Notes:           item.Notes,
	}
}

func (it *ItemReport) withRecord(rec domain.Record) {
	it.ThreadID = rec.ThreadID
	it.StarterMessageID = rec.StarterMessageID
	it.AnnouncementMessageID = rec.AnnouncementMessageID
}

// FilterByID keeps the single item named id.
func FilterByID(items []domain.ContentItem, id string) ([]domain.ContentItem, error) {
	for _, item := range items {
		if item.ID == id {
			return []domain.ContentItem{item}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
