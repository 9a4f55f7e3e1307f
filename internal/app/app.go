package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/infrastructure/content"
	"ArticlePublisher/internal/infrastructure/discord"
	"ArticlePublisher/internal/infrastructure/journal"
	"ArticlePublisher/internal/infrastructure/storage"
	"ArticlePublisher/internal/logging"
	"ArticlePublisher/internal/ports"
	"ArticlePublisher/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *content.Registry
	clock    func() time.Time

	// announcer overrides the Discord adapter; used by tests.
	announcer ports.Announcer
}

// Option customises an Application.
type Option func(*Application)

// WithAnnouncer replaces the Discord announcer.
func WithAnnouncer(a ports.Announcer) Option {
	return func(app *Application) { app.announcer = a }
}

// WithClock replaces the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(app *Application) { app.clock = clock }
}

// New builds an application instance.
func New(cfg config.Config, baseLogger *slog.Logger, opts ...Option) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		registry: content.DefaultRegistry(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunOptions selects what one reconciliation covers.
type RunOptions struct {
	// Path overrides the configured sources with a file or directory.
	Path string
	// ID restricts the run to one identity.
	ID    string
	Apply bool
	// Now overrides the decision clock.
	Now time.Time
}

// Reconcile runs one pass under the state lock. Apply takes the lock
// exclusively, dry-run shares it.
func (a *Application) Reconcile(ctx context.Context, opts RunOptions) (*usecase.Report, error) {
	release, err := storage.NewFileLock(a.cfg.State.Path).Acquire(opts.Apply)
	if err != nil {
		return nil, err
	}
	defer a.release(release)

	items, err := a.loadItems(ctx, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.ID != "" {
		if items, err = usecase.FilterByID(items, opts.ID); err != nil {
			return nil, err
		}
	}

	mode := usecase.ModeDryRun
	var jrnl ports.Journal
	var announcer ports.Announcer
	if opts.Apply {
		mode = usecase.ModeApply
		store, err := journal.Open(a.cfg.Journal, a.logger.With("component", "journal"))
		if err != nil {
			a.logger.Warn("journal disabled", "driver", a.cfg.Journal.Driver, "error", err)
		} else {
			defer store.Close()
			jrnl = store
		}
		announcer = a.newAnnouncer()
	}

	now := opts.Now
	if now.IsZero() {
		now = a.clock()
	}
	now = now.In(a.cfg.Location())

	reconciler := usecase.NewReconciler(usecase.ReconcilerDeps{
		Store:       storage.NewFileStore(a.cfg.State.Path, a.logger.With("component", "storage")),
		Announcer:   announcer,
		Journal:     jrnl,
		Logger:      a.logger.With("component", "reconciler"),
		Location:    a.cfg.Location(),
		Limit:       a.cfg.Reconcile.Limit,
		Concurrency: a.cfg.Reconcile.Concurrency,
		Clock:       a.clock,
	})
	return reconciler.Run(ctx, items, now, mode)
}

// StateShow loads the state document under a shared lock, migrating in
// memory only.
func (a *Application) StateShow(ctx context.Context) (*domain.StateDocument, error) {
	release, err := storage.NewFileLock(a.cfg.State.Path).Acquire(false)
	if err != nil {
		return nil, err
	}
	defer a.release(release)

	return storage.NewFileStore(a.cfg.State.Path, a.logger.With("component", "storage")).Load(ctx)
}

// StateMigrate rewrites the state file at schema version target, upgrading
// or downgrading as needed. It returns the version found on disk.
func (a *Application) StateMigrate(ctx context.Context, target int) (int, error) {
	if target < 0 || target > domain.SchemaVersion {
		return 0, fmt.Errorf("%w: target v%d (supported 0..%d)", domain.ErrUnknownSchemaVersion, target, domain.SchemaVersion)
	}

	release, err := storage.NewFileLock(a.cfg.State.Path).Acquire(true)
	if err != nil {
		return 0, err
	}
	defer a.release(release)

	store := storage.NewFileStore(a.cfg.State.Path, a.logger.With("component", "storage"))
	doc, err := store.Load(ctx)
	if err != nil {
		return 0, err
	}

	data, err := storage.EncodeVersion(doc, target)
	if err != nil {
		return doc.MigratedFrom, err
	}
	if err := storage.WriteAtomic(a.cfg.State.Path, data); err != nil {
		return doc.MigratedFrom, fmt.Errorf("write state: %w", err)
	}
	a.logger.Info("state rewritten", "path", a.cfg.State.Path, "from", doc.MigratedFrom, "to", target)
	return doc.MigratedFrom, nil
}

// JournalEntries reads back the announcement journal.
func (a *Application) JournalEntries(ctx context.Context, f journal.Filter) ([]ports.JournalEntry, error) {
	store, err := journal.Open(a.cfg.Journal, a.logger.With("component", "journal"))
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Entries(ctx, f)
}

func (a *Application) loadItems(ctx context.Context, path string) ([]domain.ContentItem, error) {
	sources := a.cfg.Content.Sources
	if path != "" {
		sources = []config.SourceConfig{{Name: "cli", Type: sourceTypeFor(path), Root: path}}
	}
	src := content.NewStrategySource(a.registry, sources, a.cfg.Location(), a.logger.With("component", "source"))
	items, err := src.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return items, nil
}

func (a *Application) newAnnouncer() ports.Announcer {
	if a.announcer != nil {
		return a.announcer
	}
	if !a.cfg.Discord.Configured() {
		a.logger.Warn("discord webhooks are not configured, announcements will fail")
		return nil
	}
	client := discord.NewClient(a.cfg.Discord, a.logger.With("component", "discord"))
	return discord.NewAnnouncer(discord.AnnouncerDeps{
		Client:   client,
		Discord:  a.cfg.Discord,
		SiteBase: a.cfg.Site.BaseURL,
		Location: a.cfg.Location(),
		Logger:   a.logger.With("component", "announcer"),
	})
}

func (a *Application) release(release func() error) {
	if err := release(); err != nil && !errors.Is(err, os.ErrClosed) {
		a.logger.Warn("release state lock", "error", err)
	}
}

func sourceTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return content.ManifestTypeTag
	default:
		return content.MarkdownTypeTag
	}
}
