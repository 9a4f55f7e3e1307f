package domain

import "time"

// Status is the editorial lifecycle state declared in frontmatter.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusHidden    Status = "hidden"
)

// Known reports whether s is one of the supported lifecycle states.
func (s Status) Known() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusArchived, StatusHidden:
		return true
	default:
		return false
	}
}

// Image is the opaque image metadata attached to an article.
type Image struct {
	Src    string `json:"src,omitempty" yaml:"src,omitempty"`
	Credit string `json:"credit,omitempty" yaml:"credit,omitempty"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
}

// ContentItem is one article as handed over by a content source.
// ID is the only join key against persisted state and never changes.
type ContentItem struct {
	ID         string
	Status     Status
	PublishAt  *time.Time
	Announce   bool
	Title      string
	Section    string
	Kicker     string
	Teaser     string
	Authors    []string
	Tags       []string
	Image      *Image
	SourcePath string

	// Defects lists frontmatter problems detected while loading.
	// Any defect makes the item invalid.
	Defects []string
	// Notes are soft warnings that do not affect decisions.
	Notes []string
}

// Valid reports whether the loader found the item well-formed.
func (c ContentItem) Valid() bool {
	return len(c.Defects) == 0 && c.ID != ""
}
