package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
)

type fakeDiscord struct {
	t        *testing.T
	forum    func(w http.ResponseWriter, body map[string]any)
	announce func(w http.ResponseWriter, body map[string]any)

	forumCalls    atomic.Int32
	announceCalls atomic.Int32

	mu     sync.Mutex
	bodies []map[string]any
	query  []string
}

func (f *fakeDiscord) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.query = append(f.query, r.URL.RawQuery)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/forum-token"):
		f.forumCalls.Add(1)
		f.forum(w, body)
	case strings.HasSuffix(r.URL.Path, "/announce-token"):
		f.announceCalls.Add(1)
		f.announce(w, body)
	default:
		http.NotFound(w, r)
	}
}

func okForum(w http.ResponseWriter, _ map[string]any) {
	_, _ = w.Write([]byte(`{"id":"1322000000000000001","channel_id":"1322000000000000002"}`))
}

func okAnnounce(w http.ResponseWriter, _ map[string]any) {
	_, _ = w.Write([]byte(`{"id":"1322000000000000077","channel_id":"99"}`))
}

func status(code int, body string) func(http.ResponseWriter, map[string]any) {
	return func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

type harness struct {
	fake      *fakeDiscord
	announcer *Announcer
	client    *Client
	sleeps    *[]time.Duration
}

func newHarness(t *testing.T, fake *fakeDiscord, maxAttempts int) harness {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.DiscordConfig{
		ForumWebhookURL:    srv.URL + "/api/webhooks/1/forum-token",
		AnnounceWebhookURL: srv.URL + "/api/webhooks/2/announce-token",
		Username:           "Town Crier",
		Timeout:            2 * time.Second,
		MaxAttempts:        maxAttempts,
		RetryBase:          10 * time.Millisecond,
		RetryMaxDelay:      5 * time.Second,
	}
	client := NewClient(cfg, nil)
	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	return harness{
		fake:   fake,
		client: client,
		sleeps: &sleeps,
		announcer: NewAnnouncer(AnnouncerDeps{
			Client:   client,
			Discord:  cfg,
			SiteBase: "https://example.test/",
			Location: time.UTC,
		}),
	}
}

func harborItem() domain.ContentItem {
	at := time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC)
	return domain.ContentItem{
		ID:         "stormwind-harbor",
		Status:     domain.StatusPublished,
		PublishAt:  &at,
		Announce:   true,
		Title:      "Harbor reopens",
		Section:    "news",
		Teaser:     "The <em>harbor</em> is open again &amp; busy.",
		Authors:    []string{"Anduin Wrynn"},
		Image:      &domain.Image{Src: "/images/harbor.jpg", Type: "photo"},
		SourcePath: "content/news/2026/stormwind-harbor.md",
	}
}

func TestAnnounceCreatesThreadThenAnnouncement(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: okForum, announce: okAnnounce}, 3)
	res, err := h.announcer.Announce(context.Background(), harborItem())
	require.NoError(t, err)

	assert.Equal(t, domain.AnnouncementResult{
		ThreadID:              "1322000000000000002",
		StarterMessageID:      "1322000000000000001",
		AnnouncementMessageID: "1322000000000000077",
	}, res)

	require.Len(t, h.fake.bodies, 2)
	for _, q := range h.fake.query {
		assert.Equal(t, "wait=true", q)
	}

	forum := h.fake.bodies[0]
	assert.Equal(t, "Harbor reopens", forum["thread_name"])
	assert.Equal(t, "Town Crier", forum["username"])
	assert.Equal(t, map[string]any{"parse": []any{}}, forum["allowed_mentions"])

	embed := forum["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Harbor reopens", embed["title"])
	assert.Equal(t, "The harbor is open again & busy.\n\n[Read on the site](https://example.test/news/2026/stormwind-harbor/)", embed["description"])
	assert.Equal(t, map[string]any{"url": "https://example.test/images/harbor.jpg"}, embed["image"])
	fields := embed["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "By", fields[0].(map[string]any)["name"])
	assert.Equal(t, "2026-01-05 19:00 UTC", fields[1].(map[string]any)["value"])

	announce := h.fake.bodies[1]
	assert.Equal(t, "**Harbor reopens**\nhttps://example.test/news/2026/stormwind-harbor/\nDiscuss: <#1322000000000000002>", announce["content"])
	assert.Equal(t, map[string]any{"parse": []any{}}, announce["allowed_mentions"])
	assert.NotContains(t, announce, "thread_name")
}

func TestAnnounceReturnsPartialResult(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: okForum, announce: status(http.StatusForbidden, `{"message":"Missing Access"}`)}, 3)
	res, err := h.announcer.Announce(context.Background(), harborItem())
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))

	assert.Equal(t, "1322000000000000002", res.ThreadID)
	assert.Empty(t, res.AnnouncementMessageID)
	assert.EqualValues(t, 1, h.fake.announceCalls.Load())
}

func TestAnnounceKeepsThreadWhenStarterIDMissing(t *testing.T) {
	t.Parallel()

	threadOnly := func(w http.ResponseWriter, _ map[string]any) {
		_, _ = w.Write([]byte(`{"channel_id":"1322000000000000002"}`))
	}
	h := newHarness(t, &fakeDiscord{forum: threadOnly, announce: okAnnounce}, 3)
	res, err := h.announcer.Announce(context.Background(), harborItem())
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Equal(t, domain.AnnouncementResult{ThreadID: "1322000000000000002"}, res)
	assert.EqualValues(t, 0, h.fake.announceCalls.Load())

	noThread := func(w http.ResponseWriter, _ map[string]any) {
		_, _ = w.Write([]byte(`{"id":"1322000000000000001"}`))
	}
	h = newHarness(t, &fakeDiscord{forum: noThread, announce: okAnnounce}, 3)
	res, err = h.announcer.Announce(context.Background(), harborItem())
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Empty(t, res.ThreadID)
}

func TestResumePostsOnlyAnnouncement(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: okForum, announce: okAnnounce}, 3)
	id, err := h.announcer.Resume(context.Background(), harborItem(), "1322000000000000200")
	require.NoError(t, err)
	assert.Equal(t, "1322000000000000077", id)
	assert.EqualValues(t, 0, h.fake.forumCalls.Load())
	assert.Contains(t, h.fake.bodies[0]["content"], "<#1322000000000000200>")
}

func TestTransientFailureIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	forum := func(w http.ResponseWriter, body map[string]any) {
		if calls.Add(1) == 1 {
			status(http.StatusBadGateway, "upstream")(w, body)
			return
		}
		okForum(w, body)
	}

	h := newHarness(t, &fakeDiscord{forum: forum, announce: okAnnounce}, 3)
	res, err := h.announcer.Announce(context.Background(), harborItem())
	require.NoError(t, err)
	assert.Equal(t, "1322000000000000077", res.AnnouncementMessageID)
	assert.EqualValues(t, 2, h.fake.forumCalls.Load())
	require.Len(t, *h.sleeps, 1)
}

func TestRateLimitHonoursRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	announce := func(w http.ResponseWriter, body map[string]any) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1.5")
			status(http.StatusTooManyRequests, `{"retry_after": 1.5, "global": false}`)(w, body)
			return
		}
		okAnnounce(w, body)
	}

	h := newHarness(t, &fakeDiscord{forum: okForum, announce: announce}, 3)
	_, err := h.announcer.Resume(context.Background(), harborItem(), "1")
	require.NoError(t, err)
	require.Len(t, *h.sleeps, 1)
	assert.GreaterOrEqual(t, (*h.sleeps)[0], 1500*time.Millisecond)
}

func TestRetryAfterBeyondBudgetGivesUpRetryable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: status(http.StatusTooManyRequests, `{"retry_after": 120}`), announce: okAnnounce}, 3)
	_, err := h.announcer.Announce(context.Background(), harborItem())
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))

	var ra domain.RetryAfterError
	require.True(t, errors.As(err, &ra))
	assert.Equal(t, 120*time.Second, ra.RetryAfter())
	assert.EqualValues(t, 1, h.fake.forumCalls.Load())
	assert.Empty(t, *h.sleeps)
}

func TestServerErrorsExhaustAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: status(http.StatusServiceUnavailable, ""), announce: okAnnounce}, 4)
	_, err := h.announcer.Announce(context.Background(), harborItem())
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.EqualValues(t, 4, h.fake.forumCalls.Load())
	assert.Len(t, *h.sleeps, 3)
}

func TestPermanentFailuresAreNotRetried(t *testing.T) {
	t.Parallel()

	cases := map[string]func(http.ResponseWriter, map[string]any){
		"not found":       status(http.StatusNotFound, `{"message":"Unknown Webhook"}`),
		"bad request":     status(http.StatusBadRequest, `{"message":"Invalid Form Body"}`),
		"malformed json":  status(http.StatusOK, `<html>`),
		"missing channel": status(http.StatusOK, `{"id":"1"}`),
	}

	for name, forum := range cases {
		h := newHarness(t, &fakeDiscord{forum: forum, announce: okAnnounce}, 4)
		res, err := h.announcer.Announce(context.Background(), harborItem())
		require.Error(t, err, name)
		assert.True(t, domain.IsPermanent(err), "%s: %v", name, err)
		assert.Empty(t, res.ThreadID, name)
		assert.EqualValues(t, 1, h.fake.forumCalls.Load(), name)
		assert.EqualValues(t, 0, h.fake.announceCalls.Load(), name)
	}
}

func TestMisconfiguredAnnouncerIsPermanent(t *testing.T) {
	t.Parallel()

	a := NewAnnouncer(AnnouncerDeps{Client: NewClient(config.DiscordConfig{MaxAttempts: 1}, nil)})
	_, err := a.Announce(context.Background(), harborItem())
	assert.True(t, domain.IsPermanent(err))
}

func TestTransportErrorsDoNotLeakWebhookToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/api/webhooks/1/secret-token"
	srv.Close()

	client := NewClient(config.DiscordConfig{Timeout: time.Second, MaxAttempts: 2}, nil)
	client.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := client.Execute(context.Background(), url, Payload{Content: "x"})
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeDiscord{forum: status(http.StatusInternalServerError, ""), announce: okAnnounce}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	h.client.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := h.announcer.Announce(ctx, harborItem())
	require.Error(t, err)
	assert.EqualValues(t, 1, h.fake.forumCalls.Load())
}
