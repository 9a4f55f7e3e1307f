// Package journal keeps an append-only audit trail of announcement side
// effects, separate from the reconciliation state.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/ports"
)

// Filter narrows Entries.
type Filter struct {
	Identity string
	// Limit keeps the most recent entries; zero means no limit.
	Limit int
}

// Store is a journal that can also be read back.
type Store interface {
	ports.Journal
	// Entries returns matching entries, oldest first.
	Entries(ctx context.Context, f Filter) ([]ports.JournalEntry, error)
}

// Open initializes the configured journal. Driver "none" yields a journal
// that discards everything.
func Open(cfg config.JournalConfig, log *slog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	switch driver {
	case "", "none":
		return Nop{}, nil
	case "file":
		return openFile(cfg.Path, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg.Path, log)
	case "postgres":
		return openPostgres(cfg.DSN, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}

// Nop discards entries.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Append(context.Context, ports.JournalEntry) error { return nil }
func (Nop) Close() error                                     { return nil }
func (Nop) Entries(context.Context, Filter) ([]ports.JournalEntry, error) {
	return nil, nil
}
