package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var postgresSchema = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	at         TEXT NOT NULL,
	identity   TEXT NOT NULL,
	action     TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	thread_id  TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT ''
)`, pq.QuoteIdentifier(tableName))

func openPostgres(dsn string, log *slog.Logger) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("JOURNAL_DSN is required for postgres driver")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres journal: %w", err)
	}

	j := newSQLJournal(db, sq.Dollar, log)
	if err := j.migrate(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("postgres journal opened")
	return j, nil
}
