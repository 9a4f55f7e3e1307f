package content

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ArticlePublisher/internal/domain"
)

// MarkdownTypeTag selects MarkdownLoader.
const MarkdownTypeTag = "markdown"

// MarkdownLoader reads *.md files with frontmatter. Root may be a single
// file or a directory tree; directories whose name starts with "_" or "."
// are skipped.
type MarkdownLoader struct{}

// Type implements Loader.
func (MarkdownLoader) Type() string { return MarkdownTypeTag }

// Load implements Loader.
func (MarkdownLoader) Load(ctx context.Context, req Request) ([]domain.ContentItem, error) {
	info, err := os.Stat(req.Root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", req.Root, err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(req.Root)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", req.Root, err)
		}
		return []domain.ContentItem{ParseDocument(data, req.Root, req.Location)}, nil
	}

	var items []domain.ContentItem
	err = filepath.WalkDir(req.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != req.Root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			items = append(items, domain.ContentItem{
				SourcePath: path,
				Defects:    []string{fmt.Sprintf("read failed: %v", err)},
			})
			return nil
		}
		items = append(items, ParseDocument(data, path, req.Location))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", req.Root, err)
	}
	return items, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}
