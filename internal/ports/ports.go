package ports

import (
	"context"
	"time"

	"ArticlePublisher/internal/domain"
)

// ContentSource yields the content items of one pass.
type ContentSource interface {
	Items(ctx context.Context) ([]domain.ContentItem, error)
}

// StateStore persists the reconciliation memory.
type StateStore interface {
	// Load returns the current document, migrating older shapes in memory.
	Load(ctx context.Context) (*domain.StateDocument, error)
	// Save replaces the persisted document atomically.
	Save(ctx context.Context, doc *domain.StateDocument) error
}

// Announcer performs the external announcement side effects.
type Announcer interface {
	// Announce creates the forum thread and posts the announcement.
	// When the thread was created but the announcement failed, the partial
	// result is returned together with the error.
	Announce(ctx context.Context, item domain.ContentItem) (domain.AnnouncementResult, error)
	// Resume posts only the announcement for an existing thread.
	Resume(ctx context.Context, item domain.ContentItem, threadID string) (string, error)
}

// JournalEntry is one audited dispatcher action.
type JournalEntry struct {
	RunID     string    `json:"run_id"`
	At        time.Time `json:"at"`
	Identity  string    `json:"identity"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	ThreadID  string    `json:"thread_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Journal appends an audit trail of external side effects.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	Close() error
}

// Locker guards the load-modify-save cycle against concurrent runs.
type Locker interface {
	// Acquire takes the lock without waiting. Exclusive locks are needed to
	// write; shared locks only keep writers out while reading.
	Acquire(exclusive bool) (release func() error, err error)
}
