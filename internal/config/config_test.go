package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(forumWebhookEnv, "")
	t.Setenv(announceWebhookEnv, "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Europe/Copenhagen", cfg.Timezone)
	assert.Equal(t, "state/published.json", cfg.State.Path)
	assert.Equal(t, 20, cfg.Reconcile.Limit)
	assert.Equal(t, 4, cfg.Discord.MaxAttempts)
	assert.Equal(t, 25*time.Second, cfg.Discord.Timeout)
	assert.False(t, cfg.Discord.Configured())
	require.Len(t, cfg.Content.Sources, 1)
	assert.Equal(t, "markdown", cfg.Content.Sources[0].Type)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "publisher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: UTC
logging:
  level: debug
content:
  sources:
    - name: news
      type: markdown
      root: content/news
state:
  path: var/state.json
journal:
  driver: sqlite
  path: var/journal.db
site:
  baseUrl: https://example.test
discord:
  username: Town Crier
  timeout: 5s
  retryBase: 50ms
  maxAttempts: 2
reconcile:
  limit: 5
`), 0o644))

	t.Setenv(configPathEnv, "")
	t.Setenv(forumWebhookEnv, "https://discord.test/api/webhooks/1/forum")
	t.Setenv(announceWebhookEnv, "https://discord.test/api/webhooks/2/announce")
	t.Setenv(siteBaseURLEnv, "https://override.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Location().String())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "var/state.json", cfg.State.Path)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, "https://override.test", cfg.Site.BaseURL)
	assert.Equal(t, "Town Crier", cfg.Discord.Username)
	assert.Equal(t, 5*time.Second, cfg.Discord.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Discord.RetryBase)
	assert.Equal(t, 2, cfg.Discord.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Discord.RetryMaxDelay)
	assert.Equal(t, 5, cfg.Reconcile.Limit)
	assert.Equal(t, 1, cfg.Reconcile.Concurrency)
	assert.True(t, cfg.Discord.Configured())
	require.Len(t, cfg.Content.Sources, 1)
	assert.Equal(t, "content/news", cfg.Content.Sources[0].Root)
}

func TestLoadIgnoresWebhooksInYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(configPathEnv, "")
	t.Setenv(forumWebhookEnv, "")
	t.Setenv(announceWebhookEnv, "")

	path := filepath.Join(dir, "publisher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord:\n  ForumWebhookURL: https://leak.test\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Discord.ForumWebhookURL)
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(configPathEnv, "")
	t.Setenv(forumWebhookEnv, "https://discord.test/from-env")
	t.Setenv(announceWebhookEnv, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"DISCORD_FORUM_WEBHOOK_URL=https://discord.test/from-file\nDISCORD_ANNOUNCE_WEBHOOK_URL=\"https://discord.test/announce\"\n",
	), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://discord.test/from-env", cfg.Discord.ForumWebhookURL)
	assert.Equal(t, "https://discord.test/announce", cfg.Discord.AnnounceWebhookURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(configPathEnv, "")

	cases := map[string]string{
		"timezone": "timezone: Mars/Olympus\n",
		"journal":  "journal:\n  driver: mongo\n",
		"yaml":     "content: [\n",
		"limit":    "reconcile:\n  limit: -5\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
