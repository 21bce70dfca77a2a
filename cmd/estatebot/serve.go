package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"

	"github.com/hrygo/estatebot/internal/profile"
	"github.com/hrygo/estatebot/internal/version"
	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/plugin/search"
	"github.com/hrygo/estatebot/server"
	"github.com/hrygo/estatebot/server/bot"
	"github.com/hrygo/estatebot/server/finops"
	"github.com/hrygo/estatebot/server/middleware"
	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot (polling, or webhook when TELEGRAM_WEBHOOK_URL is set)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	if err := p.ValidateForServe(); err != nil {
		return err
	}

	logger := newLogger(p.LogLevel, p.LogFormat)
	slog.SetDefault(logger)

	c, err := openServeCache(p.CacheConfig(), logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.Enabled() {
		janitor := cache.NewJanitor(c, p.CacheCleanupInterval)
		janitor.Start(ctx)
		defer janitor.Stop()
	}

	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		return err
	}
	provider := ai.NewProvider(aiConfig)
	usage := finops.NewCostMonitor(nil)
	provider.SetUsageRecorder(usage)

	searcher := search.NewClient(p.TavilyAPIKey)
	if !searcher.Enabled() {
		logger.Warn("TAVILY_API_KEY is not set; valuations run without web research")
	}

	agent := valuation.NewAgent(provider, valuation.NewTools(searcher))
	svc := valuation.NewService(agent, provider, c, p.MaxConcurrentValuations)

	tg := telegram.New(telegram.Config{Token: p.TelegramBotToken, Logger: logger})
	allowed, err := p.AllowedUserIDs()
	if err != nil {
		return err
	}

	b := bot.New(bot.Opts{
		Client:       tg,
		Valuer:       svc,
		Parser:       valuation.NewParser(provider),
		AllowedUsers: allowed,
		Limiter:      middleware.NewRateLimiter(p.RateLimitPerMinute),
		Usage:        usage,
		Logger:       logger,
	})
	if err := tg.SetMyCommands(ctx, b.Commands()); err != nil {
		logger.Warn("failed to set bot commands", "error", err)
	}

	logger.Info("starting estatebot",
		"version", version.String(),
		"mode", p.Mode(),
		"model", aiConfig.Model,
		"cache", c.Enabled(),
		"allowed_users", len(allowed))

	if p.Mode() == profile.ModeWebhook {
		secret := p.TelegramWebhookSecret
		if secret == "" {
			secret = shortuuid.New()
			logger.Info("generated webhook secret for this run")
		}
		srv := server.New(server.Config{
			Addr:        fmt.Sprintf(":%d", p.TelegramWebhookPort),
			WebhookURL:  p.TelegramWebhookURL,
			WebhookPath: p.WebhookPath(),
			Secret:      secret,
		}, tg, b, svc, logger)
		return srv.Start(ctx)
	}

	return bot.NewPoller(tg, b, logger).Run(ctx)
}

// openServeCache opens the cache for serving. An unusable disk tier (for
// example a read-only volume) degrades to memory only rather than keeping the
// bot down.
func openServeCache(cfg cache.Config, logger *slog.Logger) (*cache.PropertyCache, error) {
	c, err := cache.New(cfg)
	if err == nil || !cfg.Enabled || !cfg.EnableDisk {
		return c, err
	}
	logger.Warn("disk cache unavailable, continuing with memory cache only",
		"dir", cfg.DiskDir,
		"error", err)
	cfg.EnableDisk = false
	return cache.New(cfg)
}
