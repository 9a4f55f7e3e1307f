package domain

// ReasonCode explains a Decision.
type ReasonCode string

const (
	ReasonInvalidFrontmatter ReasonCode = "invalid-frontmatter"
	ReasonDraft              ReasonCode = "draft"
	ReasonArchived           ReasonCode = "archived"
	ReasonExplicitPublish    ReasonCode = "explicit-publish"
	ReasonMissingPublishAt   ReasonCode = "missing-publish-at"
	ReasonNotYetDue          ReasonCode = "not-yet-due"
	ReasonDue                ReasonCode = "due"
	ReasonHidden             ReasonCode = "hidden"
)

// Decision is the outcome of evaluating one item at one instant.
type Decision struct {
	ShouldBuild   bool       `json:"should_build" yaml:"should_build"`
	ShouldPublish bool       `json:"should_publish" yaml:"should_publish"`
	Reason        ReasonCode `json:"reason" yaml:"reason"`
}
