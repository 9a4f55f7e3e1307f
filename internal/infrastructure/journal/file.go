package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ArticlePublisher/internal/ports"
)

// fileJournal appends JSON Lines to a single file.
type fileJournal struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	file *os.File
}

func openFile(path string, log *slog.Logger) (Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	log.Debug("file journal opened", "path", path)
	return &fileJournal{path: path, log: log, file: f}, nil
}

func (j *fileJournal) Append(_ context.Context, e ports.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("journal file closed")
	}
	if err := json.NewEncoder(j.file).Encode(e); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *fileJournal) Entries(ctx context.Context, f Filter) ([]ports.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rf, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", j.path, err)
	}
	defer rf.Close()

	var out []ports.JournalEntry
	sc := bufio.NewScanner(rf)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var e ports.JournalEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			j.log.Warn("skip malformed journal line", "path", j.path, "line", line, "error", err)
			continue
		}
		if f.Identity != "" && e.Identity != f.Identity {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", j.path, err)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}
