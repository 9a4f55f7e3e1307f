package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ArticlePublisher/internal/config"
	"ArticlePublisher/internal/domain"
)

const (
	userAgent    = "ArticlePublisher/1.0"
	maxErrorBody = 512
)

// Message is the part of a webhook execution response the publisher needs.
// For forum webhooks ChannelID is the newly created thread.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// StatusError is a non-2xx webhook response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("discord webhook HTTP %d", e.Code)
	}
	return fmt.Sprintf("discord webhook HTTP %d: %s", e.Code, e.Body)
}

// Client executes Discord webhooks with pacing and bounded retries.
type Client struct {
	http          *http.Client
	limiter       *rate.Limiter
	maxAttempts   int
	retryBase     time.Duration
	retryMaxDelay time.Duration
	username      string
	avatarURL     string
	logger        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a webhook client from config.
func NewClient(cfg config.DiscordConfig, log *slog.Logger) *Client {
	c := &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		maxAttempts:   cfg.MaxAttempts,
		retryBase:     cfg.RetryBase,
		retryMaxDelay: cfg.RetryMaxDelay,
		username:      strings.TrimSpace(cfg.Username),
		avatarURL:     strings.TrimSpace(cfg.AvatarURL),
		logger:        log,
		sleep:         sleepContext,
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c
}

// Execute posts payload to the webhook and waits for the created message.
// Transient failures are retried; the returned error is marked with
// domain.Permanent when retrying cannot help.
func (c *Client) Execute(ctx context.Context, webhookURL string, payload Payload) (Message, error) {
	endpoint, err := withWait(webhookURL)
	if err != nil {
		return Message{}, domain.Permanent(err)
	}

	if c.username != "" {
		payload.Username = c.username
	}
	if c.avatarURL != "" {
		payload.AvatarURL = c.avatarURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, domain.Permanent(fmt.Errorf("encode payload: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Message{}, fmt.Errorf("rate limiter: %w", err)
			}
		}

		msg, err := c.post(ctx, endpoint, body)
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if domain.IsPermanent(err) || ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}

		delay := retryDelay(c.retryBase, c.retryMaxDelay, attempt)
		var ra domain.RetryAfterError
		if errors.As(err, &ra) {
			if ra.RetryAfter() > c.maxDelay() {
				c.debug("retry-after exceeds budget", "retry_after", ra.RetryAfter())
				break
			}
			if ra.RetryAfter() > delay {
				delay = ra.RetryAfter()
			}
		}

		c.debug("webhook attempt failed", "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return Message{}, fmt.Errorf("%w (retry interrupted: %v)", lastErr, err)
		}
	}
	return Message{}, lastErr
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Message{}, domain.Permanent(fmt.Errorf("new request: %w", redact(err)))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("do request: %w", redact(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Message{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Message{}, classify(resp, raw)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, domain.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return msg, nil
}

// classify maps a failed response onto the retry taxonomy: 429 and 5xx are
// transient, other statuses permanent.
func classify(resp *http.Response, raw []byte) error {
	statusErr := &StatusError{Code: resp.StatusCode, Body: truncateRunes(strings.TrimSpace(string(raw)), maxErrorBody)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.RetryAfter(statusErr, retryAfter(resp.Header, raw))
	case resp.StatusCode >= 500:
		return statusErr
	default:
		return domain.Permanent(statusErr)
	}
}

// retryAfter reads the delay from the Retry-After header or the JSON body
// field retry_after, both in (possibly fractional) seconds.
func retryAfter(h http.Header, raw []byte) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(raw, &body) == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return 0
}

func (c *Client) maxDelay() time.Duration {
	if c.retryMaxDelay <= 0 {
		return 10 * time.Second
	}
	return c.retryMaxDelay
}

func retryDelay(base, maxD time.Duration, attempt int) time.Duration {
	// attempt starts at 1, the delay is for the next attempt.
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

func withWait(webhookURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(webhookURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errors.New("webhook URL is not an absolute URL")
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact drops the request URL from transport errors; webhook URLs embed
// their token.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return fmt.Errorf("%s: timeout: %w", ue.Op, ue.Err)
		}
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
