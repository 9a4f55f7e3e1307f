package domain

import (
	"sort"
	"time"
)

// SchemaVersion is the state document shape this build reads and writes.
const SchemaVersion = 2

// Action names stored in Record.LastAction and the journal.
const (
	ActionRecorded     = "recorded"
	ActionForumPost    = "forum_post"
	ActionAnnouncePost = "announce_post"
)

// LastAction remembers the most recent side effect applied to a record.
type LastAction struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// Record is the reconciliation memory for one article.
type Record struct {
	Identity              string      `json:"identity"`
	PublishedAt           time.Time   `json:"published_at"`
	ThreadID              string      `json:"thread_id,omitempty"`
	StarterMessageID      string      `json:"starter_message_id,omitempty"`
	AnnouncementMessageID string      `json:"announcement_message_id,omitempty"`
	ThreadPostedAt        *time.Time  `json:"thread_posted_at,omitempty"`
	AnnouncedAt           *time.Time  `json:"announced_at,omitempty"`
	Path                  string      `json:"path,omitempty"`
	Title                 string      `json:"title,omitempty"`
	Section               string      `json:"section,omitempty"`
	PublishAt             string      `json:"publish_at,omitempty"`
	LastAction            *LastAction `json:"last_action,omitempty"`
	SchemaVersion         int         `json:"schema_version"`
}

// Complete reports whether both announcement steps are recorded.
func (r Record) Complete() bool {
	return r.ThreadID != "" && r.AnnouncementMessageID != ""
}

// Announced reports whether the announcement message is recorded. Records
// carried over from older files may have it without a thread.
func (r Record) Announced() bool {
	return r.AnnouncementMessageID != ""
}

// Partial reports whether the thread exists but the announcement does not.
func (r Record) Partial() bool {
	return r.ThreadID != "" && r.AnnouncementMessageID == ""
}

// StateDocument is the whole persisted reconciliation memory.
type StateDocument struct {
	SchemaVersion int               `json:"schema_version"`
	Records       map[string]Record `json:"records"`

	// MigratedFrom holds the on-disk version when Load had to migrate.
	// Zero value equals SchemaVersion for documents that were current.
	MigratedFrom int `json:"-"`
}

// NewStateDocument returns an empty document at the current version.
func NewStateDocument() *StateDocument {
	return &StateDocument{
		SchemaVersion: SchemaVersion,
		Records:       map[string]Record{},
		MigratedFrom:  SchemaVersion,
	}
}

// Migrated reports whether the document was upgraded during load.
func (d *StateDocument) Migrated() bool {
	return d.MigratedFrom != d.SchemaVersion
}

// Has reports whether any record exists for id.
func (d *StateDocument) Has(id string) bool {
	_, ok := d.Records[id]
	return ok
}

// Get returns the record for id.
func (d *StateDocument) Get(id string) (Record, bool) {
	r, ok := d.Records[id]
	return r, ok
}

// Upsert stores r, keyed by its identity.
func (d *StateDocument) Upsert(r Record) {
	if d.Records == nil {
		d.Records = map[string]Record{}
	}
	if r.SchemaVersion == 0 {
		r.SchemaVersion = SchemaVersion
	}
	d.Records[r.Identity] = r
}

// Identities returns record keys in sorted order.
func (d *StateDocument) Identities() []string {
	ids := make([]string, 0, len(d.Records))
	for id := range d.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AnnouncementResult carries the external identifiers produced by a dispatch.
// A result with ThreadID set and AnnouncementMessageID empty is partial.
type AnnouncementResult struct {
	ThreadID              string
	StarterMessageID      string
	AnnouncementMessageID string
}
