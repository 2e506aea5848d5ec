package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "777")
	t.Setenv("WEBAPP_URL", "https://feed.example")
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://feed@localhost/feed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, int64(777), cfg.Bot.AdminID)
	assert.Equal(t, "https://feed.example", cfg.Bot.WebAppURL)
	assert.Equal(t, ":8081", cfg.Address())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://feed@localhost/feed", cfg.Database.DSN)
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"news", "biz", "svc"}, cfg.Bot.Categories)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.Feed.Limit)
	assert.Equal(t, 10, cfg.Feed.PendingLimit)
	assert.True(t, cfg.Feed.MediaProxy)
	assert.Equal(t, 50*time.Minute, cfg.Redis.MediaURLTTL)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
}

func TestLoadRequiresBotSettings(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("ADMIN_ID", "")
	t.Setenv("WEBAPP_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 3000, Mode: "release"},
			Bot:      BotConfig{Token: "t", AdminID: 1, WebAppURL: "https://feed.example", Categories: []string{"news"}},
			Database: DatabaseConfig{Driver: "sqlite", DSN: "feed.db", LogLevel: "warn"},
			Feed:     FeedConfig{Limit: 100, PendingLimit: 10},
			Notify:   NotifyConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1, RatePerSecond: 1},
			Log:      LogConfig{Level: "info", Format: "json"},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"unknown category":  func(c *Config) { c.Bot.Categories = []string{"sports"} },
		"zero admin":        func(c *Config) { c.Bot.AdminID = 0 },
		"bad webapp url":    func(c *Config) { c.Bot.WebAppURL = "not a url" },
		"unknown driver":    func(c *Config) { c.Database.Driver = "mysql" },
		"feed over the cap": func(c *Config) { c.Feed.Limit = 500 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	single := valid()
	single.Bot.Categories = nil
	assert.NoError(t, single.Validate(), "no categories means single-category mode")
}
