package discord

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"ArticlePublisher/internal/domain"
)

// Discord limits.
const (
	maxThreadName  = 100
	maxEmbedTitle  = 256
	maxDescription = 4096
	maxFieldValue  = 1024
	maxContent     = 2000
)

// Payload is the webhook execution body.
type Payload struct {
	Content         string          `json:"content"`
	ThreadName      string          `json:"thread_name,omitempty"`
	Embeds          []Embed         `json:"embeds,omitempty"`
	AllowedMentions AllowedMentions `json:"allowed_mentions"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
}

// AllowedMentions with an empty Parse list suppresses every ping.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

func noMentions() AllowedMentions {
	return AllowedMentions{Parse: []string{}}
}

// Links resolves public URLs of an article.
type Links struct {
	SiteBaseURL string
	Location    *time.Location
}

var yearSegment = regexp.MustCompile(`^\d{4}$`)

// ArticleURL builds {site}/{section}/{year}/{slug}/. The year comes from a
// four digit path segment, else from publish_at; the slug is the file name
// without extension, else the identity. Without a base URL the link is
// relative.
func (l Links) ArticleURL(item domain.ContentItem) string {
	year := yearFromPath(item.SourcePath)
	if year == "" && item.PublishAt != nil {
		year = fmt.Sprintf("%04d", item.PublishAt.In(l.location()).Year())
	}
	if year == "" {
		year = "unknown"
	}

	slug := item.ID
	if base := path.Base(toSlash(item.SourcePath)); strings.EqualFold(path.Ext(base), ".md") {
		slug = strings.TrimSuffix(base, path.Ext(base))
	}

	rel := fmt.Sprintf("%s/%s/%s/", item.Section, year, slug)
	base := strings.TrimRight(strings.TrimSpace(l.SiteBaseURL), "/")
	if base == "" {
		return rel
	}
	return base + "/" + rel
}

// AssetURL resolves an image source against the site. Relative sources
// without a base URL cannot be linked and yield "".
func (l Links) AssetURL(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	base := strings.TrimRight(strings.TrimSpace(l.SiteBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/" + strings.TrimLeft(src, "/")
}

// PublishTime renders the publish instant for display, or "".
func (l Links) PublishTime(item domain.ContentItem) string {
	if item.PublishAt == nil {
		return ""
	}
	return item.PublishAt.In(l.location()).Format("2006-01-02 15:04 MST")
}

func (l Links) absolute() bool {
	return strings.TrimSpace(l.SiteBaseURL) != ""
}

func (l Links) location() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}

// ForumPayload builds the thread-creating starter message.
func ForumPayload(item domain.ContentItem, links Links) Payload {
	title := plainText(item.Title)
	articleURL := links.ArticleURL(item)

	var desc []string
	if teaser := plainText(item.Teaser); teaser != "" {
		desc = append(desc, teaser)
	}
	// Discord rejects embeds whose url is not absolute.
	if !links.absolute() {
		articleURL = ""
	}
	if articleURL != "" {
		desc = append(desc, fmt.Sprintf("[Read on the site](%s)", articleURL))
	}

	var fields []EmbedField
	if len(item.Authors) > 0 {
		fields = append(fields, EmbedField{
			Name:   "By",
			Value:  truncateRunes(strings.Join(item.Authors, ", "), maxFieldValue),
			Inline: true,
		})
	}
	if published := links.PublishTime(item); published != "" {
		fields = append(fields, EmbedField{Name: "Published", Value: published, Inline: true})
	}

	embed := Embed{
		Title:       truncateRunes(title, maxEmbedTitle),
		Description: truncateRunes(strings.Join(desc, "\n\n"), maxDescription),
		URL:         articleURL,
		Fields:      fields,
	}
	if item.Image != nil {
		if img := links.AssetURL(item.Image.Src); img != "" {
			embed.Image = &EmbedImage{URL: img}
		}
	}

	name := threadName(title)
	if name == "" {
		name = threadName(item.ID)
	}

	return Payload{
		ThreadName:      name,
		Embeds:          []Embed{embed},
		AllowedMentions: noMentions(),
	}
}

// AnnouncePayload builds the short channel message pointing at the thread.
func AnnouncePayload(item domain.ContentItem, links Links, threadID string) Payload {
	mention := "(thread unavailable)"
	if threadID != "" {
		mention = fmt.Sprintf("<#%s>", threadID)
	}
	lines := []string{
		fmt.Sprintf("**%s**", plainText(item.Title)),
		links.ArticleURL(item),
		"Discuss: " + mention,
	}
	return Payload{
		Content:         truncateRunes(strings.Join(lines, "\n"), maxContent),
		AllowedMentions: noMentions(),
	}
}

// threadName NFC-normalises and collapses whitespace, then truncates to the
// forum limit.
func threadName(title string) string {
	s := strings.Join(strings.Fields(norm.NFC.String(title)), " ")
	return truncateRunes(s, maxThreadName)
}

// plainText strips markup from frontmatter strings such as teasers.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

func yearFromPath(p string) string {
	for _, seg := range strings.Split(toSlash(p), "/") {
		if yearSegment.MatchString(seg) {
			return seg
		}
	}
	return ""
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
