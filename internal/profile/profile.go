package profile

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/hrygo/estatebot/store/cache"
)

// Profile is the configuration to start the bot.
type Profile struct {
	// OpenAI configuration
	OpenAIAPIKey  string // OPENAI_API_KEY
	OpenAIBaseURL string // OPENAI_BASE_URL (default: https://api.openai.com/v1)
	OpenAIModel   string // OPENAI_MODEL (default: gpt-4o-mini)

	// Search configuration
	TavilyAPIKey string // TAVILY_API_KEY

	// Telegram configuration
	TelegramBotToken      string // TELEGRAM_BOT_TOKEN
	TelegramAllowedUsers  string // TELEGRAM_ALLOWED_USERS (comma separated user IDs)
	TelegramWebhookURL    string // TELEGRAM_WEBHOOK_URL (empty: polling mode)
	TelegramWebhookPort   int    // TELEGRAM_WEBHOOK_PORT (default: 8443)
	TelegramWebhookSecret string // TELEGRAM_WEBHOOK_SECRET

	// Cache configuration
	EnableCache          bool          // ENABLE_CACHE (default: true)
	CacheMemoryMaxItems  int           // CACHE_MEMORY_MAX_ITEMS (default: 100)
	CacheMemoryTTLHours  int           // CACHE_MEMORY_TTL_HOURS (default: 24)
	CacheDiskDir         string        // CACHE_DISK_DIR (default: cache)
	CacheDiskTTLDays     int           // CACHE_DISK_TTL_DAYS (default: 7)
	CacheEnableDisk      bool          // CACHE_ENABLE_DISK (default: true)
	CacheCleanupInterval time.Duration // CACHE_CLEANUP_INTERVAL (default: 10m)

	// Request handling
	RateLimitPerMinute      int // RATE_LIMIT_PER_MINUTE (default: 6)
	MaxConcurrentValuations int // MAX_CONCURRENT_VALUATIONS (default: 2)

	// Logging
	LogLevel  string // LOG_LEVEL (default: info)
	LogFormat string // LOG_FORMAT (text or json, default: text)
}

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	defaultWebhookPath = "/webhook"
)

var defaults = map[string]any{
	"openai_base_url":           "https://api.openai.com/v1",
	"openai_model":              "gpt-4o-mini",
	"telegram_webhook_port":     8443,
	"enable_cache":              true,
	"cache_memory_max_items":    100,
	"cache_memory_ttl_hours":    24,
	"cache_disk_dir":            "cache",
	"cache_disk_ttl_days":       7,
	"cache_enable_disk":         true,
	"cache_cleanup_interval":    "10m",
	"rate_limit_per_minute":     6,
	"max_concurrent_valuations": 2,
	"log_level":                 "info",
	"log_format":                "text",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.load(newViper())
}

// FromFile loads configuration from a dotenv file. Environment variables take
// precedence over values in the file.
func (p *Profile) FromFile(path string) error {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	p.load(v)
	return nil
}

func (p *Profile) load(v *viper.Viper) {
	p.OpenAIAPIKey = v.GetString("openai_api_key")
	p.OpenAIBaseURL = v.GetString("openai_base_url")
	p.OpenAIModel = v.GetString("openai_model")
	p.TavilyAPIKey = v.GetString("tavily_api_key")

	p.TelegramBotToken = v.GetString("telegram_bot_token")
	p.TelegramAllowedUsers = v.GetString("telegram_allowed_users")
	p.TelegramWebhookURL = v.GetString("telegram_webhook_url")
	p.TelegramWebhookPort = v.GetInt("telegram_webhook_port")
	p.TelegramWebhookSecret = v.GetString("telegram_webhook_secret")

	p.EnableCache = v.GetBool("enable_cache")
	p.CacheMemoryMaxItems = v.GetInt("cache_memory_max_items")
	p.CacheMemoryTTLHours = v.GetInt("cache_memory_ttl_hours")
	p.CacheDiskDir = v.GetString("cache_disk_dir")
	p.CacheDiskTTLDays = v.GetInt("cache_disk_ttl_days")
	p.CacheEnableDisk = v.GetBool("cache_enable_disk")
	p.CacheCleanupInterval = v.GetDuration("cache_cleanup_interval")

	p.RateLimitPerMinute = v.GetInt("rate_limit_per_minute")
	p.MaxConcurrentValuations = v.GetInt("max_concurrent_valuations")

	p.LogLevel = strings.ToLower(v.GetString("log_level"))
	p.LogFormat = strings.ToLower(v.GetString("log_format"))

	// Hosting platforms assign the listening port dynamically. Railway also
	// exposes the public domain, from which the webhook URL is derived.
	if port := v.GetInt("port"); port > 0 {
		p.TelegramWebhookPort = port
		if domain := v.GetString("railway_public_domain"); domain != "" && p.TelegramWebhookURL == "" {
			p.TelegramWebhookURL = "https://" + domain + defaultWebhookPath
		}
	}
}

// Mode returns the update delivery mode.
func (p *Profile) Mode() string {
	if p.TelegramWebhookURL != "" {
		return ModeWebhook
	}
	return ModePolling
}

// WebhookPath returns the HTTP path Telegram posts updates to.
func (p *Profile) WebhookPath() string {
	u, err := url.Parse(p.TelegramWebhookURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultWebhookPath
	}
	return u.Path
}

// AllowedUserIDs parses TELEGRAM_ALLOWED_USERS. An empty list allows everyone.
func (p *Profile) AllowedUserIDs() ([]int64, error) {
	var ids []int64
	for _, field := range strings.Split(p.TelegramAllowedUsers, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid user id %q in TELEGRAM_ALLOWED_USERS", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks the cache and access settings. Serving additionally
// requires credentials, see ValidateForServe.
func (p *Profile) Validate() error {
	if p.CacheMemoryMaxItems <= 0 {
		return fmt.Errorf("CACHE_MEMORY_MAX_ITEMS must be positive, got %d", p.CacheMemoryMaxItems)
	}
	if p.CacheMemoryTTLHours <= 0 {
		return fmt.Errorf("CACHE_MEMORY_TTL_HOURS must be positive, got %d", p.CacheMemoryTTLHours)
	}
	if p.CacheEnableDisk {
		if p.CacheDiskTTLDays <= 0 {
			return fmt.Errorf("CACHE_DISK_TTL_DAYS must be positive, got %d", p.CacheDiskTTLDays)
		}
		if p.CacheDiskDir == "" {
			return errors.New("CACHE_DISK_DIR must not be empty when the disk cache is enabled")
		}
	}
	if p.CacheCleanupInterval <= 0 {
		p.CacheCleanupInterval = 10 * time.Minute
	}
	if p.RateLimitPerMinute <= 0 {
		p.RateLimitPerMinute = 6
	}
	if p.MaxConcurrentValuations <= 0 {
		p.MaxConcurrentValuations = 2
	}
	if _, err := p.AllowedUserIDs(); err != nil {
		return err
	}
	if p.TelegramWebhookURL != "" {
		u, err := url.Parse(p.TelegramWebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("TELEGRAM_WEBHOOK_URL must be an absolute https URL, got %q", p.TelegramWebhookURL)
		}
		if p.TelegramWebhookPort <= 0 || p.TelegramWebhookPort > 65535 {
			return fmt.Errorf("TELEGRAM_WEBHOOK_PORT out of range: %d", p.TelegramWebhookPort)
		}
	}
	return nil
}

// ValidateForServe validates everything needed to run the bot.
func (p *Profile) ValidateForServe() error {
	if p.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}
	if p.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	return p.Validate()
}

// CacheConfig projects the cache settings.
func (p *Profile) CacheConfig() cache.Config {
	return cache.Config{
		Enabled:         p.EnableCache,
		MemoryMaxItems:  p.CacheMemoryMaxItems,
		MemoryTTL:       time.Duration(p.CacheMemoryTTLHours) * time.Hour,
		DiskDir:         p.CacheDiskDir,
		DiskTTL:         time.Duration(p.CacheDiskTTLDays) * 24 * time.Hour,
		EnableDisk:      p.CacheEnableDisk,
		CleanupInterval: p.CacheCleanupInterval,
	}
}
