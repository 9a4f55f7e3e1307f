package content

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ArticlePublisher/internal/domain"
)

const delimiter = "---"

var naiveLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
}

// SplitFrontmatter separates the YAML block delimited by "---" lines at the
// top of a document from the body. ok is false when no block is present.
func SplitFrontmatter(doc []byte) (front, body []byte, ok bool) {
	doc = bytes.TrimPrefix(doc, []byte("\ufeff"))
	lines := strings.Split(strings.ReplaceAll(string(doc), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return nil, doc, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			front = []byte(strings.Join(lines[1:i], "\n"))
			body = []byte(strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n"))
			return front, body, true
		}
	}
	return nil, doc, false
}

// ParseDocument reads a Markdown document with frontmatter into an item.
// Problems never fail the call; they are attached as defects.
func ParseDocument(doc []byte, sourcePath string, loc *time.Location) domain.ContentItem {
	front, _, ok := SplitFrontmatter(doc)
	if !ok {
		return domain.ContentItem{SourcePath: sourcePath, Defects: []string{"missing frontmatter block"}}
	}

	var node yaml.Node
	if err := yaml.Unmarshal(front, &node); err != nil {
		return domain.ContentItem{SourcePath: sourcePath, Defects: []string{fmt.Sprintf("frontmatter is not valid YAML: %v", err)}}
	}
	fields, err := decodeFields(&node)
	if err != nil {
		return domain.ContentItem{SourcePath: sourcePath, Defects: []string{fmt.Sprintf("frontmatter is not valid YAML: %v", err)}}
	}
	if fields == nil {
		return domain.ContentItem{SourcePath: sourcePath, Defects: []string{"frontmatter is empty"}}
	}
	return ParseFields(fields, sourcePath, loc)
}

// decodeFields decodes a YAML mapping into plain values. Timestamp scalars
// keep their source text so that naive times can be placed in the
// configured zone instead of the UTC yaml.v3 assumes.
func decodeFields(node *yaml.Node) (map[string]any, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}

	var fields map[string]any
	if err := node.Decode(&fields); err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return fields, nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind == yaml.ScalarNode && value.ShortTag() == "!!timestamp" {
			fields[key.Value] = value.Value
		}
	}
	return fields, nil
}

// ParseFields maps declared frontmatter fields onto a content item.
// Naive publish times are interpreted in loc.
func ParseFields(fields map[string]any, sourcePath string, loc *time.Location) domain.ContentItem {
	if loc == nil {
		loc = time.UTC
	}
	p := fieldParser{fields: fields}
	item := domain.ContentItem{SourcePath: sourcePath}

	item.ID = p.requiredString("id")
	item.Title = p.requiredString("title")
	item.Section = p.requiredString("section")
	item.Status = domain.Status(strings.ToLower(p.requiredString("status")))
	item.Authors = p.stringList("authors", true)
	item.Tags = p.stringList("tags", false)
	item.Kicker = p.optionalString("kicker")

	if raw, ok := fields["teaser"]; !ok || raw == nil {
		p.defect("missing required key %q", "teaser")
	} else if s, ok := raw.(string); ok {
		item.Teaser = strings.TrimSpace(s)
	} else {
		p.defect("key %q must be a string", "teaser")
	}

	switch v := fields["discord_announce"].(type) {
	case bool:
		item.Announce = v
	case nil:
		p.defect("missing required key %q", "discord_announce")
	default:
		p.defect("key %q must be a boolean, got %T", "discord_announce", v)
	}

	if raw, ok := fields["publish_at"]; ok && raw != nil {
		at, err := ParsePublishAt(raw, loc)
		if err != nil {
			p.defect("publish_at: %v", err)
		} else {
			item.PublishAt = &at
		}
	}

	item.Image = p.image()

	if len(item.Tags) == 0 {
		p.note("no tags set")
	}
	if item.Image != nil && item.Image.Src != "" && item.Image.Type == "" {
		p.note("image has src but no type")
	}
	if item.Teaser == "" && len(p.defects) == 0 {
		p.note("teaser is empty")
	}

	item.Defects = p.defects
	item.Notes = p.notes
	return item
}

// ParsePublishAt accepts the publish_at shapes found in frontmatter:
// RFC 3339, and naive "YYYY-MM-DD[ HH:MM[:SS]]" values which are placed in
// loc. Decoded time.Time values are taken as they are.
func ParsePublishAt(raw any, loc *time.Location) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty value")
		}
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", raw)
	}
}

type fieldParser struct {
	fields  map[string]any
	defects []string
	notes   []string
}

func (p *fieldParser) defect(format string, args ...any) {
	p.defects = append(p.defects, fmt.Sprintf(format, args...))
}

func (p *fieldParser) note(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *fieldParser) requiredString(key string) string {
	raw, ok := p.fields[key]
	if !ok || raw == nil {
		p.defect("missing required key %q", key)
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		p.defect("key %q must be a string, got %T", key, raw)
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		p.defect("key %q is empty", key)
	}
	return s
}

func (p *fieldParser) optionalString(key string) string {
	raw, ok := p.fields[key]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		p.defect("key %q must be a string, got %T", key, raw)
		return ""
	}
	return strings.TrimSpace(s)
}

// stringList accepts a YAML sequence of strings or a single string.
func (p *fieldParser) stringList(key string, required bool) []string {
	raw, ok := p.fields[key]
	if !ok || raw == nil {
		if required {
			p.defect("missing required key %q", key)
		}
		return nil
	}

	var out []string
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []any:
		for i, elem := range v {
			s, ok := elem.(string)
			if !ok {
				p.defect("key %q item %d must be a string, got %T", key, i, elem)
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		p.defect("key %q must be a list of strings, got %T", key, raw)
		return nil
	}

	if required && len(out) == 0 {
		p.defect("key %q is empty", key)
	}
	return out
}

func (p *fieldParser) image() *domain.Image {
	raw, ok := p.fields["image"]
	if !ok || raw == nil {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		p.defect("key %q must be a mapping, got %T", "image", raw)
		return nil
	}

	sub := fieldParser{fields: m}
	img := &domain.Image{
		Src:    sub.optionalString("src"),
		Credit: sub.optionalString("credit"),
		Source: sub.optionalString("source"),
		Type:   strings.ToLower(sub.optionalString("type")),
	}
	if img.Type == "" {
		img.Type = strings.ToLower(sub.optionalString("image_type"))
	}
	for _, d := range sub.defects {
		p.defect("image: %s", d)
	}
	if *img == (domain.Image{}) {
		return nil
	}
	return img
}

// markDuplicates flags every item whose identity is shared with another.
func markDuplicates(items []domain.ContentItem) {
	seen := map[string][]int{}
	for i, item := range items {
		if item.ID != "" {
			seen[item.ID] = append(seen[item.ID], i)
		}
	}
	for id, idx := range seen {
		if len(idx) < 2 {
			continue
		}
		paths := make([]string, 0, len(idx))
		for _, i := range idx {
			paths = append(paths, items[i].SourcePath)
		}
		sort.Strings(paths)
		for _, i := range idx {
			items[i].Defects = append(items[i].Defects, fmt.Sprintf("duplicate id %q declared by %s", id, strings.Join(paths, ", ")))
		}
	}
}
