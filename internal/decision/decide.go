// Package decision maps a content item and an instant to a publish decision.
// It performs no I/O and never reads the wall clock.
package decision

import (
	"time"

	"ArticlePublisher/internal/domain"
)

// Decide evaluates item at now. Rules apply in precedence order and
// anything unrecognised fails closed.
func Decide(item domain.ContentItem, now time.Time) domain.Decision {
	if !item.Valid() || !item.Status.Known() {
		return domain.Decision{Reason: domain.ReasonInvalidFrontmatter}
	}

	switch item.Status {
	case domain.StatusDraft:
		return domain.Decision{ShouldBuild: true, Reason: domain.ReasonDraft}
	case domain.StatusArchived:
		return domain.Decision{Reason: domain.ReasonArchived}
	case domain.StatusPublished:
		return domain.Decision{ShouldBuild: true, ShouldPublish: true, Reason: domain.ReasonExplicitPublish}
	case domain.StatusScheduled:
		return decideScheduled(item.PublishAt, now)
	case domain.StatusHidden:
		return domain.Decision{ShouldBuild: true, Reason: domain.ReasonHidden}
	}

	return domain.Decision{Reason: domain.ReasonInvalidFrontmatter}
}

func decideScheduled(publishAt *time.Time, now time.Time) domain.Decision {
	if publishAt == nil || publishAt.IsZero() {
		return domain.Decision{ShouldBuild: true, Reason: domain.ReasonMissingPublishAt}
	}
	if now.Before(*publishAt) {
		return domain.Decision{ShouldBuild: true, Reason: domain.ReasonNotYetDue}
	}
	return domain.Decision{ShouldBuild: true, ShouldPublish: true, Reason: domain.ReasonDue}
}
