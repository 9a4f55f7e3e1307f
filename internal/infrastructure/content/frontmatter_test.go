package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePublisher/internal/domain"
)

const harborDoc = `---
id: stormwind-harbor
title: Harbor reopens
section: news
kicker: Trade
authors:
  - Anduin Wrynn
  - Jaina Proudmoore
teaser: The <em>harbor</em> is open again.
status: scheduled
publish_at: 2026-01-05 20:00
discord_announce: true
tags: [harbor, trade]
image:
  src: /images/harbor.jpg
  credit: Stormwind Press
  image_type: Photo
---

# Harbor reopens

Body text.
`

func copenhagen(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Copenhagen")
	require.NoError(t, err)
	return loc
}

func TestSplitFrontmatter(t *testing.T) {
	t.Parallel()

	front, body, ok := SplitFrontmatter([]byte("---\r\nid: a\r\n---\r\n\r\nbody\r\n"))
	require.True(t, ok)
	assert.Equal(t, "id: a", string(front))
	assert.Equal(t, "body\n", string(body))

	_, _, ok = SplitFrontmatter([]byte("# no frontmatter\n"))
	assert.False(t, ok)

	_, _, ok = SplitFrontmatter([]byte("---\nid: a\n"))
	assert.False(t, ok, "unterminated block")
}

func TestParseDocumentFullItem(t *testing.T) {
	t.Parallel()

	loc := copenhagen(t)
	item := ParseDocument([]byte(harborDoc), "content/news/2026/stormwind-harbor.md", loc)

	require.Empty(t, item.Defects)
	assert.True(t, item.Valid())
	assert.Equal(t, "stormwind-harbor", item.ID)
	assert.Equal(t, domain.StatusScheduled, item.Status)
	assert.True(t, item.Announce)
	assert.Equal(t, []string{"Anduin Wrynn", "Jaina Proudmoore"}, item.Authors)
	assert.Equal(t, []string{"harbor", "trade"}, item.Tags)
	assert.Equal(t, "Trade", item.Kicker)
	require.NotNil(t, item.Image)
	assert.Equal(t, "photo", item.Image.Type)
	assert.Empty(t, item.Notes)

	require.NotNil(t, item.PublishAt)
	want := time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(*item.PublishAt), "naive time is local to the configured zone: %s", item.PublishAt)
}

func TestParseFieldsDefects(t *testing.T) {
	t.Parallel()

	base := func() map[string]any {
		return map[string]any{
			"id":               "a",
			"title":            "A",
			"section":          "news",
			"authors":          "Someone",
			"teaser":           "t",
			"status":           "published",
			"discord_announce": false,
		}
	}

	item := ParseFields(base(), "a.md", time.UTC)
	require.Empty(t, item.Defects)
	assert.Equal(t, []string{"Someone"}, item.Authors)
	assert.Contains(t, item.Notes, "no tags set")

	cases := map[string]func(map[string]any){
		"missing id":          func(m map[string]any) { delete(m, "id") },
		"numeric title":       func(m map[string]any) { m["title"] = 42 },
		"empty section":       func(m map[string]any) { m["section"] = "  " },
		"missing authors":     func(m map[string]any) { delete(m, "authors") },
		"empty authors":       func(m map[string]any) { m["authors"] = []any{} },
		"bad author entry":    func(m map[string]any) { m["authors"] = []any{"ok", 3} },
		"missing teaser":      func(m map[string]any) { delete(m, "teaser") },
		"missing status":      func(m map[string]any) { delete(m, "status") },
		"missing announce":    func(m map[string]any) { delete(m, "discord_announce") },
		"string announce":     func(m map[string]any) { m["discord_announce"] = "yes" },
		"unparseable publish": func(m map[string]any) { m["publish_at"] = "next tuesday" },
		"image not mapping":   func(m map[string]any) { m["image"] = "pic.jpg" },
	}

	for name, mutate := range cases {
		fields := base()
		mutate(fields)
		item := ParseFields(fields, "a.md", time.UTC)
		assert.NotEmpty(t, item.Defects, name)
		assert.False(t, item.Valid(), name)
	}
}

func TestParseFieldsScheduledWithoutPublishAtIsNotDefect(t *testing.T) {
	t.Parallel()

	item := ParseFields(map[string]any{
		"id": "a", "title": "A", "section": "news", "authors": []any{"x"},
		"teaser": "t", "status": "Scheduled", "discord_announce": true,
	}, "a.md", time.UTC)

	assert.Empty(t, item.Defects)
	assert.Equal(t, domain.StatusScheduled, item.Status)
	assert.Nil(t, item.PublishAt)
}

func TestParseFieldsImageNotes(t *testing.T) {
	t.Parallel()

	item := ParseFields(map[string]any{
		"id": "a", "title": "A", "section": "news", "authors": []any{"x"},
		"teaser": "t", "status": "draft", "discord_announce": false,
		"tags":  []any{"x"},
		"image": map[string]any{"src": "a.jpg"},
	}, "a.md", time.UTC)

	assert.Empty(t, item.Defects)
	assert.Equal(t, []string{"image has src but no type"}, item.Notes)
}

func TestParsePublishAtShapes(t *testing.T) {
	t.Parallel()

	loc := copenhagen(t)
	want := time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC)

	inputs := []any{
		"2026-01-05 20:00",
		"2026-01-05 20:00:00",
		"2026-01-05T20:00",
		"2026-01-05T20:00:00",
		"2026-01-05T19:00:00Z",
		"2026-01-05T20:00:00+01:00",
		time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
	}
	for _, in := range inputs {
		got, err := ParsePublishAt(in, loc)
		require.NoError(t, err, "%v", in)
		assert.True(t, want.Equal(got), "%v parsed as %s", in, got)
	}

	for _, bad := range []any{"", "soon", 2026, []any{"x"}} {
		_, err := ParsePublishAt(bad, loc)
		assert.Error(t, err, "%v", bad)
	}
}

func TestParseDocumentPublishAtShapes(t *testing.T) {
	t.Parallel()

	loc := copenhagen(t)
	tests := map[string]time.Time{
		"2026-01-05 20:00":          time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
		"2026-01-05 20:00:00":       time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
		"2026-01-05T20:00:00":       time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
		"2026-07-05 20:00:00":       time.Date(2026, time.July, 5, 18, 0, 0, 0, time.UTC),
		"2026-01-05":                time.Date(2026, time.January, 4, 23, 0, 0, 0, time.UTC),
		"2026-01-05T19:00:00Z":      time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
		"2026-01-05T20:00:00+01:00": time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
		`"2026-01-05 20:00:00"`:     time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
	}
	for raw, want := range tests {
		doc := "---\nid: a\ntitle: A\nsection: news\nauthors: [R]\nteaser: T\nstatus: scheduled\n" +
			"discord_announce: true\npublish_at: " + raw + "\n---\n"
		item := ParseDocument([]byte(doc), "a.md", loc)
		require.Empty(t, item.Defects, raw)
		require.NotNil(t, item.PublishAt, raw)
		assert.True(t, want.Equal(*item.PublishAt), "%s parsed as %s", raw, item.PublishAt)
	}
}

func TestParseDocumentWithoutFrontmatter(t *testing.T) {
	t.Parallel()

	item := ParseDocument([]byte("# Title only\n"), "x.md", time.UTC)
	assert.False(t, item.Valid())
	assert.Equal(t, "x.md", item.SourcePath)

	item = ParseDocument([]byte("---\ntitle: [unclosed\n---\n"), "y.md", time.UTC)
	assert.False(t, item.Valid())

	item = ParseDocument([]byte("---\n---\n"), "z.md", time.UTC)
	assert.False(t, item.Valid())
}
