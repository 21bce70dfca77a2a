// Package bot handles Telegram updates: commands and free-text valuation
// requests.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/estatebot/plugin/ai/valuation"
	boterrors "github.com/hrygo/estatebot/server/internal/errors"
	"github.com/hrygo/estatebot/server/finops"
	"github.com/hrygo/estatebot/server/internal/observability"
	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

// typingInterval refreshes the typing status, which Telegram clears after
// about five seconds.
const typingInterval = 4 * time.Second

// Sender is the Telegram API surface the bot replies through.
type Sender interface {
	SendMarkdown(ctx context.Context, chatID int64, markdown string) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// Valuer runs valuations and cache maintenance. *valuation.Service
// implements it.
type Valuer interface {
	Analyze(ctx context.Context, q valuation.PropertyQuery) (*valuation.Valuation, error)
	QuickEstimate(ctx context.Context, address string) valuation.QuickEstimate
	Health(ctx context.Context) bool
	CacheInfo(ctx context.Context) (*cache.Info, error)
	ClearCache(ctx context.Context) (cache.ClearResult, error)
	InvalidateAddress(ctx context.Context, address string) (int, error)
}

// Parser extracts addresses from a message. *valuation.Parser implements it.
type Parser interface {
	Parse(ctx context.Context, message string) valuation.PropertyQuery
}

// UsageReporter reports LLM token usage. *finops.CostMonitor implements it.
type UsageReporter interface {
	Report() finops.CostReport
}

// Limiter decides whether a user may make another request.
type Limiter interface {
	Allow(userID int64) bool
}

var (
	_ Sender = (*telegram.Client)(nil)
	_ Valuer = (*valuation.Service)(nil)
	_ Parser = (*valuation.Parser)(nil)

	_ UsageReporter = (*finops.CostMonitor)(nil)
)

// Opts configures a Bot.
type Opts struct {
	Client       Sender
	Valuer       Valuer
	Parser       Parser
	AllowedUsers []int64       // empty allows everyone
	Limiter      Limiter       // nil disables rate limiting
	Usage        UsageReporter // optional
	Logger       *slog.Logger
	Now          func() time.Time
}

// Bot dispatches updates.
type Bot struct {
	client  Sender
	valuer  Valuer
	parser  Parser
	allowed map[int64]struct{}
	limiter Limiter
	usage   UsageReporter
	logger  *slog.Logger
	now     func() time.Time
	format  *Formatter
	metrics *observability.Metrics

	typingInterval time.Duration
}

// New creates a Bot.
func New(opts Opts) *Bot {
	b := &Bot{
		client:         opts.Client,
		valuer:         opts.Valuer,
		parser:         opts.Parser,
		limiter:        opts.Limiter,
		usage:          opts.Usage,
		logger:         opts.Logger,
		now:            opts.Now,
		format:         NewFormatter(),
		typingInterval: typingInterval,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if len(opts.AllowedUsers) > 0 {
		b.allowed = make(map[int64]struct{}, len(opts.AllowedUsers))
		for _, id := range opts.AllowedUsers {
			b.allowed[id] = struct{}{}
		}
	}
	known := []string{"text"}
	for _, c := range b.Commands() {
		known = append(known, c.Command)
	}
	b.metrics = observability.NewMetrics(b.now(), known...)
	return b
}

// Metrics returns the bot's request counters.
func (b *Bot) Metrics() *observability.Metrics {
	return b.metrics
}

// Commands returns the command menu.
func (b *Bot) Commands() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "help", Description: "Show help message"},
		{Command: "estimate", Description: "Quick estimate for an address"},
		{Command: "stats", Description: "Show bot statistics"},
		{Command: "health", Description: "Check bot health"},
		{Command: "cache", Description: "Show cache information"},
		{Command: "clearcache", Description: "Clear all cached data"},
		{Command: "invalidate", Description: "Forget cached valuations for an address"},
	}
}

// HandleUpdate processes one update. The returned error reports a failure to
// talk to Telegram; request failures are answered in the chat.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) error {
	msg := u.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	cmd, args, isCommand := msg.Command()
	name := "text"
	if isCommand {
		name = cmd
	}

	rc := observability.NewRequestContext(b.logger, name, msg.SenderID(), msg.Chat.ID)
	ctx = observability.WithRequestContext(ctx, rc)
	b.metrics.RecordCommand(name)

	var err error
	if isCommand {
		err = b.handleCommand(ctx, msg, cmd, args)
	} else {
		err = b.handleText(ctx, msg)
	}
	if err != nil {
		rc.Error("failed to handle update", err)
		return err
	}
	rc.Done()
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message, cmd, args string) error {
	chatID := msg.Chat.ID
	switch cmd {
	case "start":
		return b.reply(ctx, chatID, b.format.Welcome())
	case "help":
		return b.reply(ctx, chatID, b.format.Help())
	case "stats":
		return b.stats(ctx, chatID)
	case "health":
		if b.valuer.Health(ctx) {
			return b.reply(ctx, chatID, "✅ Bot is healthy and ready!")
		}
		return b.reply(ctx, chatID, "❌ Bot is experiencing issues. Please try again later.")
	case "cache":
		if err := b.authorize(msg); err != nil {
			return b.replyError(ctx, chatID, err)
		}
		info, err := b.valuer.CacheInfo(ctx)
		if err != nil {
			return b.replyError(ctx, chatID, boterrors.Wrap(err, boterrors.ErrCodeValuationFailed, "cache info failed"))
		}
		return b.reply(ctx, chatID, b.format.CacheInfo(info))
	case "clearcache":
		if err := b.authorize(msg); err != nil {
			return b.replyError(ctx, chatID, err)
		}
		res, err := b.valuer.ClearCache(ctx)
		if err != nil {
			return b.reply(ctx, chatID, "❌ Cache clear failed: "+err.Error())
		}
		return b.reply(ctx, chatID, b.format.CacheCleared(res))
	case "invalidate":
		return b.invalidate(ctx, msg, args)
	case "estimate":
		return b.estimate(ctx, msg, args)
	default:
		return b.reply(ctx, chatID, b.format.Help())
	}
}

func (b *Bot) stats(ctx context.Context, chatID int64) error {
	info, err := b.valuer.CacheInfo(ctx)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to read cache info", "error", err)
	}
	now := b.now()
	view := StatsView{
		Uptime:            b.metrics.Uptime(now),
		RequestsProcessed: b.metrics.RequestTotal(),
		RequestsFailed:    b.metrics.RequestFailed(),
		Commands:          b.metrics.Commands(),
		Healthy:           b.valuer.Health(ctx),
		Cache:             info,
		Now:               now,
	}
	if b.usage != nil {
		r := b.usage.Report()
		view.Usage = &r
	}
	return b.reply(ctx, chatID, b.format.Stats(view))
}

func (b *Bot) invalidate(ctx context.Context, msg *telegram.Message, address string) error {
	chatID := msg.Chat.ID
	if err := b.authorize(msg); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if address == "" {
		return b.reply(ctx, chatID, "Usage: /invalidate <address>")
	}
	n, err := b.valuer.InvalidateAddress(ctx, address)
	if errors.Is(err, valuation.ErrCacheDisabled) {
		return b.replyError(ctx, chatID, boterrors.CacheDisabled())
	}
	if err != nil {
		return b.reply(ctx, chatID, "❌ Cache invalidation failed: "+err.Error())
	}
	return b.reply(ctx, chatID, b.format.Invalidated(address, n))
}

func (b *Bot) estimate(ctx context.Context, msg *telegram.Message, address string) error {
	chatID := msg.Chat.ID
	if err := b.admit(msg); err != nil {
		return b.replyError(ctx, chatID, err)
	}
	if address == "" {
		return b.reply(ctx, chatID, "Usage: /estimate <address>")
	}
	if valid, _ := valuation.ValidateAddresses([]string{address}); len(valid) == 0 {
		return b.replyError(ctx, chatID, boterrors.InvalidAddress([]string{address}))
	}

	stop := b.keepTyping(ctx, chatID)
	q := b.valuer.QuickEstimate(ctx, address)
	stop()

	b.metrics.RecordRequest()
	if !q.Success {
		b.metrics.RecordFailure()
		return b.replyError(ctx, chatID, boterrors.ValuationFailed(errors.New(q.Error)))
	}
	return b.reply(ctx, chatID, b.format.QuickEstimate(q))
}

func (b *Bot) handleText(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID
	if err := b.admit(msg); err != nil {
		return b.replyError(ctx, chatID, err)
	}

	q := b.parser.Parse(ctx, msg.Text)
	if len(q.Addresses) == 0 {
		return b.replyError(ctx, chatID, boterrors.AddressNotFound("no address in message"))
	}
	valid, invalid := valuation.ValidateAddresses(q.Addresses)
	if len(valid) == 0 {
		return b.replyError(ctx, chatID, boterrors.InvalidAddress(invalid))
	}
	if len(invalid) > 0 {
		b.logger.InfoContext(ctx, "dropped invalid addresses", "invalid", invalid)
	}
	q.Addresses = valid

	processing, err := b.client.SendMarkdown(ctx, chatID, b.format.Processing(valid))
	if err != nil {
		return err
	}
	stop := b.keepTyping(ctx, chatID)
	v, err := b.valuer.Analyze(ctx, q)
	stop()
	b.deleteMessage(ctx, processing)

	b.metrics.RecordRequest()
	if err != nil {
		b.metrics.RecordFailure()
		return b.replyError(ctx, chatID, classify(err))
	}

	if q.QueryType == valuation.QueryMultiple {
		return b.reply(ctx, chatID, b.format.Multiple(v))
	}
	return b.reply(ctx, chatID, b.format.Valuation(v))
}

// authorize checks the allow list.
func (b *Bot) authorize(msg *telegram.Message) error {
	if b.allowed == nil {
		return nil
	}
	if _, ok := b.allowed[msg.SenderID()]; !ok {
		return boterrors.Unauthorized("user is not on the allow list")
	}
	return nil
}

// admit checks the allow list and the rate limit before expensive work.
func (b *Bot) admit(msg *telegram.Message) error {
	if err := b.authorize(msg); err != nil {
		return err
	}
	if b.limiter != nil && !b.limiter.Allow(msg.SenderID()) {
		return boterrors.RateLimited("too many requests")
	}
	return nil
}

// keepTyping shows the typing status until stop is called.
func (b *Bot) keepTyping(ctx context.Context, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	send := func() {
		if err := b.client.SendChatAction(ctx, chatID, telegram.ActionTyping); err != nil && ctx.Err() == nil {
			b.logger.DebugContext(ctx, "failed to send chat action", "error", err)
		}
	}
	send()

	go func() {
		defer close(done)
		ticker := time.NewTicker(b.typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (b *Bot) deleteMessage(ctx context.Context, msg *telegram.Message) {
	if msg == nil {
		return
	}
	if err := b.client.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
		b.logger.WarnContext(ctx, "failed to delete processing message", "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, markdown string) error {
	_, err := b.client.SendMarkdown(ctx, chatID, markdown)
	return err
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) error {
	if rc, ok := observability.FromContext(ctx); ok {
		rc.Warn("request failed",
			slog.String(observability.LogFieldErrorCode, string(boterrors.CodeOf(err, boterrors.ErrCodeValuationFailed))),
			slog.String("error", err.Error()))
	}
	return b.reply(ctx, chatID, b.format.Error(err))
}

// classify maps an analysis failure to a user-facing error code.
func classify(err error) error {
	var be *boterrors.BotError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return boterrors.Timeout(err)
	}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
		return boterrors.LLMUnavailable(err)
	}
	return boterrors.ValuationFailed(err)
}
