package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func article(id string) string {
	return strings.Join([]string{
		"---",
		"id: " + id,
		"title: Title " + id,
		"section: news",
		"authors: [Reporter]",
		"teaser: Teaser",
		"status: published",
		"discord_announce: true",
		"tags: [x]",
		"---",
		"body",
	}, "\n")
}

func ids(items []domain.ContentItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestMarkdownLoaderWalksTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "news", "2026", "alpha.md"), article("alpha"))
	writeFile(t, filepath.Join(root, "culture", "2025", "beta.MD"), article("beta"))
	writeFile(t, filepath.Join(root, "_templates", "template.md"), article("template"))
	writeFile(t, filepath.Join(root, ".trash", "old.md"), article("old"))
	writeFile(t, filepath.Join(root, "news", "notes.txt"), "ignored")

	items, err := MarkdownLoader{}.Load(context.Background(), Request{Root: root, Location: time.UTC})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ids(items))
}

func TestMarkdownLoaderSingleFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "_drafts", "gamma.md")
	writeFile(t, path, article("gamma"))

	items, err := MarkdownLoader{}.Load(context.Background(), Request{Root: path, Location: time.UTC})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "gamma", items[0].ID)
	assert.Equal(t, path, items[0].SourcePath)
}

func TestMarkdownLoaderMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := MarkdownLoader{}.Load(context.Background(), Request{Root: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestManifestLoader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	writeFile(t, path, `
items:
  - id: delta
    path: news/2026/delta.md
    title: Delta
    section: news
    authors: Reporter
    teaser: Teaser
    status: scheduled
    publish_at: "2026-02-01 09:00"
    discord_announce: false
  - title: Nameless
  - id: echo
    title: Echo
    section: news
    authors: Reporter
    teaser: Teaser
    status: scheduled
    publish_at: 2026-02-01 09:00:00
    discord_announce: false
`)

	loc, err := time.LoadLocation("Europe/Copenhagen")
	require.NoError(t, err)
	items, err := ManifestLoader{}.Load(context.Background(), Request{Root: path, Location: loc})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "delta", items[0].ID)
	assert.Equal(t, "news/2026/delta.md", items[0].SourcePath)
	assert.Empty(t, items[0].Defects)
	require.NotNil(t, items[0].PublishAt)
	assert.Equal(t, 9, items[0].PublishAt.Hour())

	assert.False(t, items[1].Valid())
	assert.Equal(t, path+"#1", items[1].SourcePath)

	require.Empty(t, items[2].Defects)
	require.NotNil(t, items[2].PublishAt)
	assert.True(t, time.Date(2026, time.February, 1, 8, 0, 0, 0, time.UTC).Equal(*items[2].PublishAt),
		"unquoted timestamp is local to the configured zone: %s", items[2].PublishAt)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	assert.Equal(t, []string{ManifestTypeTag, MarkdownTypeTag}, reg.Types())

	loader, err := reg.Resolve(MarkdownTypeTag)
	require.NoError(t, err)
	assert.Equal(t, MarkdownTypeTag, loader.Type())

	_, err = reg.Resolve("html")
	assert.Error(t, err)
}

func TestStrategySourceAggregatesAndFlagsDuplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "one.md"), article("one"))
	writeFile(t, filepath.Join(dir, "a", "dup.md"), article("dup"))
	writeFile(t, filepath.Join(dir, "b", "dup.md"), article("dup"))

	src := NewStrategySource(DefaultRegistry(), []config.SourceConfig{
		{Name: "a", Type: MarkdownTypeTag, Root: filepath.Join(dir, "a")},
		{Name: "b", Type: MarkdownTypeTag, Root: filepath.Join(dir, "b")},
	}, time.UTC, nil)

	items, err := src.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, item := range items {
		if item.ID == "dup" {
			assert.False(t, item.Valid())
			assert.Contains(t, item.Defects[0], "duplicate id")
		} else {
			assert.True(t, item.Valid())
		}
	}
}

func TestStrategySourceUnknownType(t *testing.T) {
	t.Parallel()

	src := NewStrategySource(DefaultRegistry(), []config.SourceConfig{{Name: "x", Type: "rss"}}, time.UTC, nil)
	_, err := src.Items(context.Background())
	assert.Error(t, err)
}
