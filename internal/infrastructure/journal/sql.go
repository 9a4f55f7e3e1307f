package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ArticlePublisher/internal/ports"
)

const tableName = "announcement_journal"

var columns = []string{"run_id", "at", "identity", "action", "outcome", "thread_id", "message_id", "error"}

// sqlJournal stores entries in a relational table. Dialect differences are
// limited to DDL and placeholder format.
type sqlJournal struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	log     *slog.Logger
}

func newSQLJournal(db *sql.DB, placeholders sq.PlaceholderFormat, log *slog.Logger) *sqlJournal {
	return &sqlJournal{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholders),
		log:     log,
	}
}

func (j *sqlJournal) migrate(ctx context.Context, ddl string) error {
	if _, err := j.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

func (j *sqlJournal) insertQuery(e ports.JournalEntry) sq.InsertBuilder {
	return j.builder.
		Insert(tableName).
		Columns(columns...).
		Values(e.RunID, e.At.UTC().Format(time.RFC3339Nano), e.Identity, e.Action, e.Outcome, e.ThreadID, e.MessageID, e.Error)
}

func (j *sqlJournal) selectQuery(f Filter) sq.SelectBuilder {
	q := j.builder.
		Select(columns...).
		From(tableName).
		OrderBy("id DESC")
	if f.Identity != "" {
		q = q.Where(sq.Eq{"identity": f.Identity})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

func (j *sqlJournal) Append(ctx context.Context, e ports.JournalEntry) error {
	query, args, err := j.insertQuery(e).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (j *sqlJournal) Entries(ctx context.Context, f Filter) ([]ports.JournalEntry, error) {
	query, args, err := j.selectQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}

	var out []ports.JournalEntry
	for rows.Next() {
		var (
			e  ports.JournalEntry
			at string
		)
		if err := rows.Scan(&e.RunID, &at, &e.Identity, &e.Action, &e.Outcome, &e.ThreadID, &e.MessageID, &e.Error); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse journal time %q: %w", at, err)
		}
		out = append(out, e)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	// newest first from the query, callers get oldest first
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func (j *sqlJournal) Close() error {
	return j.db.Close()
}
