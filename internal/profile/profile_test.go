package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileEnvVars = []string{
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"OPENAI_MODEL",
	"TAVILY_API_KEY",
	"TELEGRAM_BOT_TOKEN",
	"TELEGRAM_ALLOWED_USERS",
	"TELEGRAM_WEBHOOK_URL",
	"TELEGRAM_WEBHOOK_PORT",
	"TELEGRAM_WEBHOOK_SECRET",
	"ENABLE_CACHE",
	"CACHE_MEMORY_MAX_ITEMS",
	"CACHE_MEMORY_TTL_HOURS",
	"CACHE_DISK_DIR",
	"CACHE_DISK_TTL_DAYS",
	"CACHE_ENABLE_DISK",
	"CACHE_CLEANUP_INTERVAL",
	"RATE_LIMIT_PER_MINUTE",
	"MAX_CONCURRENT_VALUATIONS",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"PORT",
	"RAILWAY_PUBLIC_DOMAIN",
}

// clearProfileEnv unsets every variable the profile reads and restores them
// after the test.
func clearProfileEnv(t *testing.T) {
	t.Helper()
	for _, key := range profileEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestProfileDefaults(t *testing.T) {
	clearProfileEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "https://api.openai.com/v1", p.OpenAIBaseURL)
	assert.Equal(t, "gpt-4o-mini", p.OpenAIModel)
	assert.Equal(t, 8443, p.TelegramWebhookPort)
	assert.True(t, p.EnableCache)
	assert.Equal(t, 100, p.CacheMemoryMaxItems)
	assert.Equal(t, 24, p.CacheMemoryTTLHours)
	assert.Equal(t, "cache", p.CacheDiskDir)
	assert.Equal(t, 7, p.CacheDiskTTLDays)
	assert.True(t, p.CacheEnableDisk)
	assert.Equal(t, 10*time.Minute, p.CacheCleanupInterval)
	assert.Equal(t, 6, p.RateLimitPerMinute)
	assert.Equal(t, 2, p.MaxConcurrentValuations)
	assert.Equal(t, "info", p.LogLevel)
	assert.Equal(t, ModePolling, p.Mode())
	require.NoError(t, p.Validate())
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) any
		expected any
	}{
		{"OPENAI_API_KEY", "OPENAI_API_KEY", "sk-test", func(p *Profile) any { return p.OpenAIAPIKey }, "sk-test"},
		{"TAVILY_API_KEY", "TAVILY_API_KEY", "tvly-test", func(p *Profile) any { return p.TavilyAPIKey }, "tvly-test"},
		{"TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN", "123:abc", func(p *Profile) any { return p.TelegramBotToken }, "123:abc"},
		{"ENABLE_CACHE=false", "ENABLE_CACHE", "false", func(p *Profile) any { return p.EnableCache }, false},
		{"CACHE_MEMORY_MAX_ITEMS", "CACHE_MEMORY_MAX_ITEMS", "5", func(p *Profile) any { return p.CacheMemoryMaxItems }, 5},
		{"CACHE_MEMORY_TTL_HOURS", "CACHE_MEMORY_TTL_HOURS", "2", func(p *Profile) any { return p.CacheMemoryTTLHours }, 2},
		{"CACHE_DISK_DIR", "CACHE_DISK_DIR", "/data/cache", func(p *Profile) any { return p.CacheDiskDir }, "/data/cache"},
		{"CACHE_DISK_TTL_DAYS", "CACHE_DISK_TTL_DAYS", "30", func(p *Profile) any { return p.CacheDiskTTLDays }, 30},
		{"CACHE_ENABLE_DISK=false", "CACHE_ENABLE_DISK", "false", func(p *Profile) any { return p.CacheEnableDisk }, false},
		{"CACHE_CLEANUP_INTERVAL", "CACHE_CLEANUP_INTERVAL", "90s", func(p *Profile) any { return p.CacheCleanupInterval }, 90 * time.Second},
		{"TELEGRAM_WEBHOOK_PORT", "TELEGRAM_WEBHOOK_PORT", "9000", func(p *Profile) any { return p.TelegramWebhookPort }, 9000},
		{"LOG_LEVEL is lowercased", "LOG_LEVEL", "DEBUG", func(p *Profile) any { return p.LogLevel }, "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProfileEnv(t)
			t.Setenv(tt.envVar, tt.envValue)

			p := &Profile{}
			p.FromEnv()

			assert.Equal(t, tt.expected, tt.field(p))
		})
	}
}

func TestProfileHostedPort(t *testing.T) {
	t.Run("RailwayDerivesWebhook", func(t *testing.T) {
		clearProfileEnv(t)
		t.Setenv("PORT", "7070")
		t.Setenv("RAILWAY_PUBLIC_DOMAIN", "estatebot.up.railway.app")

		p := &Profile{}
		p.FromEnv()

		assert.Equal(t, "https://estatebot.up.railway.app/webhook", p.TelegramWebhookURL)
		assert.Equal(t, 7070, p.TelegramWebhookPort)
		assert.Equal(t, ModeWebhook, p.Mode())
		assert.Equal(t, "/webhook", p.WebhookPath())
	})

	t.Run("ExplicitURLWins", func(t *testing.T) {
		clearProfileEnv(t)
		t.Setenv("PORT", "7070")
		t.Setenv("RAILWAY_PUBLIC_DOMAIN", "estatebot.up.railway.app")
		t.Setenv("TELEGRAM_WEBHOOK_URL", "https://bot.example.com/tg/hook")

		p := &Profile{}
		p.FromEnv()

		assert.Equal(t, "https://bot.example.com/tg/hook", p.TelegramWebhookURL)
		assert.Equal(t, "/tg/hook", p.WebhookPath())
		assert.Equal(t, 7070, p.TelegramWebhookPort)
	})
}

func TestProfileFromFile(t *testing.T) {
	clearProfileEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "OPENAI_API_KEY=sk-file\nCACHE_MEMORY_MAX_ITEMS=42\nTELEGRAM_BOT_TOKEN=1:file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Environment overrides the file.
	t.Setenv("TELEGRAM_BOT_TOKEN", "1:env")

	p := &Profile{}
	require.NoError(t, p.FromFile(path))

	assert.Equal(t, "sk-file", p.OpenAIAPIKey)
	assert.Equal(t, 42, p.CacheMemoryMaxItems)
	assert.Equal(t, "1:env", p.TelegramBotToken)
	assert.Equal(t, "gpt-4o-mini", p.OpenAIModel)
}

func TestAllowedUserIDs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []int64
		wantErr bool
	}{
		{name: "Empty", raw: "", want: nil},
		{name: "Single", raw: "42", want: []int64{42}},
		{name: "SpacesAndBlanks", raw: " 1, 2 ,,3 ", want: []int64{1, 2, 3}},
		{name: "Invalid", raw: "1,alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{TelegramAllowedUsers: tt.raw}
			got, err := p.AllowedUserIDs()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Profile {
		return &Profile{
			OpenAIAPIKey:        "sk",
			TelegramBotToken:    "1:a",
			CacheMemoryMaxItems: 10,
			CacheMemoryTTLHours: 1,
			CacheDiskDir:        "cache",
			CacheDiskTTLDays:    1,
			CacheEnableDisk:     true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{name: "Valid", mutate: func(*Profile) {}},
		{name: "ZeroMemoryItems", mutate: func(p *Profile) { p.CacheMemoryMaxItems = 0 }, wantErr: true},
		{name: "NegativeMemoryTTL", mutate: func(p *Profile) { p.CacheMemoryTTLHours = -1 }, wantErr: true},
		{name: "ZeroDiskTTL", mutate: func(p *Profile) { p.CacheDiskTTLDays = 0 }, wantErr: true},
		{name: "ZeroDiskTTLWithDiskOff", mutate: func(p *Profile) { p.CacheDiskTTLDays = 0; p.CacheEnableDisk = false }},
		{name: "BadAllowedUsers", mutate: func(p *Profile) { p.TelegramAllowedUsers = "x" }, wantErr: true},
		{name: "HTTPWebhook", mutate: func(p *Profile) { p.TelegramWebhookURL = "http://example.com/webhook"; p.TelegramWebhookPort = 80 }, wantErr: true},
		{name: "MissingToken", mutate: func(p *Profile) { p.TelegramBotToken = "" }, wantErr: true},
		{name: "MissingOpenAIKey", mutate: func(p *Profile) { p.OpenAIAPIKey = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.ValidateForServe()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCacheConfig(t *testing.T) {
	clearProfileEnv(t)
	t.Setenv("ENABLE_CACHE", "false")
	t.Setenv("CACHE_MEMORY_TTL_HOURS", "3")
	t.Setenv("CACHE_DISK_TTL_DAYS", "2")

	p := &Profile{}
	p.FromEnv()
	cfg := p.CacheConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 100, cfg.MemoryMaxItems)
	assert.Equal(t, 3*time.Hour, cfg.MemoryTTL)
	assert.Equal(t, 48*time.Hour, cfg.DiskTTL)
	assert.Equal(t, "cache", cfg.DiskDir)
	assert.True(t, cfg.EnableDisk)
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval)
}
