package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// Announcer posts a forum thread and a channel announcement per article.
// It keeps no state between calls.
type Announcer struct {
	client      *Client
	forumURL    string
	announceURL string
	links       Links
	logger      *slog.Logger
}

var _ ports.Announcer = (*Announcer)(nil)

// AnnouncerDeps groups everything the announcer needs.
type AnnouncerDeps struct {
	Client   *Client
	Discord  config.DiscordConfig
	SiteBase string
	Location *time.Location
	Logger   *slog.Logger
}

// NewAnnouncer wires webhook URLs from config.
func NewAnnouncer(deps AnnouncerDeps) *Announcer {
	return &Announcer{
		client:      deps.Client,
		forumURL:    deps.Discord.ForumWebhookURL,
		announceURL: deps.Discord.AnnounceWebhookURL,
		links:       Links{SiteBaseURL: deps.SiteBase, Location: deps.Location},
		logger:      deps.Logger,
	}
}

// Announce creates the forum thread, then posts the announcement. When only
// the thread was created the partial result is returned with the error.
func (a *Announcer) Announce(ctx context.Context, item domain.ContentItem) (domain.AnnouncementResult, error) {
	if err := a.check(); err != nil {
		return domain.AnnouncementResult{}, err
	}

	msg, err := a.client.Execute(ctx, a.forumURL, ForumPayload(item, a.links))
	if err != nil {
		return domain.AnnouncementResult{}, fmt.Errorf("create forum thread: %w", err)
	}
	if msg.ChannelID == "" {
		return domain.AnnouncementResult{}, domain.Permanent(errors.New("create forum thread: response is missing thread id"))
	}

	result := domain.AnnouncementResult{
		ThreadID:         msg.ChannelID,
		StarterMessageID: msg.ID,
	}
	if msg.ID == "" {
		// The thread exists; keep its id so the next run only resumes.
		return result, domain.Permanent(errors.New("create forum thread: response is missing starter message id"))
	}
	a.debug("forum thread created", "identity", item.ID, "thread_id", result.ThreadID)

	announcementID, err := a.Resume(ctx, item, result.ThreadID)
	if err != nil {
		return result, err
	}
	result.AnnouncementMessageID = announcementID
	return result, nil
}

// Resume posts only the announcement for an existing thread.
func (a *Announcer) Resume(ctx context.Context, item domain.ContentItem, threadID string) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}

	msg, err := a.client.Execute(ctx, a.announceURL, AnnouncePayload(item, a.links, threadID))
	if err != nil {
		return "", fmt.Errorf("post announcement: %w", err)
	}
	if msg.ID == "" {
		return "", domain.Permanent(errors.New("post announcement: response is missing message id"))
	}
	a.debug("announcement posted", "identity", item.ID, "message_id", msg.ID)
	return msg.ID, nil
}

func (a *Announcer) check() error {
	if a.client == nil || a.forumURL == "" || a.announceURL == "" {
		return domain.Permanent(errors.New("discord announcer misconfigured: webhook URLs are not set"))
	}
	return nil
}

func (a *Announcer) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
