// Package telegram implements the subset of the Telegram Bot API the bot uses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/estatebot/internal/version"
	"github.com/hrygo/estatebot/server/tgmarkup"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	sendRetryLimit = 5 // N attempts to retry message sending
)

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Config configures a Client.
type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the Bot API.
type Client struct {
	token    string
	baseURL  string
	httpc    *http.Client
	scrubber *strings.Replacer
	slog     *slog.Logger
	sleep    func(context.Context, time.Duration) bool
}

// New returns a Bot API client.
func New(cfg Config) *Client {
	c := &Client{
		token:    cfg.Token,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:    cfg.HTTPClient,
		scrubber: strings.NewReplacer(cfg.Token, "[EXPUNGED]"),
		slog:     cfg.Logger,
		sleep:    sleep,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpc == nil {
		// Long polling holds requests open for up to 30 seconds.
		c.httpc = &http.Client{Timeout: 60 * time.Second}
	}
	if c.slog == nil {
		c.slog = slog.Default()
	}
	return c
}

type response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Call invokes method with args and decodes the result into result, which
// may be nil.
func (c *Client) Call(ctx context.Context, method string, args, result any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s arguments", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return c.scrub(errors.Wrapf(err, "failed to build %s request", method))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.httpc.Do(req)
	if err != nil {
		return c.scrub(errors.Wrapf(err, "%s request failed", method))
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return c.scrub(errors.Wrapf(err, "failed to read %s response", method))
	}

	var resp response
	if err := json.Unmarshal(b, &resp); err != nil {
		return errors.Wrapf(err, "failed to decode %s response (status %d)", method, res.StatusCode)
	}
	if !resp.OK {
		return &APIError{
			Method:      method,
			Code:        resp.ErrorCode,
			Description: resp.Description,
			RetryAfter:  time.Duration(resp.Parameters.RetryAfter) * time.Second,
		}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrapf(err, "failed to decode %s result", method)
	}
	return nil
}

// scrubbedError hides the bot token, which is part of every request URL.
type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (se *scrubbedError) Error() string { return se.scrubber.Replace(se.err.Error()) }
func (se *scrubbedError) Unwrap() error { return se.err }

func (c *Client) scrub(err error) error {
	return &scrubbedError{err: err, scrubber: c.scrubber}
}

// GetMe returns the bot user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.Call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMessage sends a message, retrying requests when rate limited.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var (
		msg Message
		err error
	)
	for range sendRetryLimit {
		err = c.Call(ctx, "sendMessage", params, &msg)
		if err == nil {
			return &msg, nil
		}

		wait, retryable := isRateLimited(err)
		if !retryable {
			break
		}
		c.slog.Warn("sending rate limited, waiting", slog.Int64("chat_id", params.ChatID), slog.Duration("wait", wait))
		if !c.sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// SendMarkdown renders markdown to Telegram entities and sends it, split into
// as many messages as needed. It returns the last message sent.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, markdown string) (*Message, error) {
	var last *Message
	for _, chunk := range SplitMessage(markdown, MaxMessageLength) {
		m := tgmarkup.FromMarkdown(chunk)
		msg, err := c.SendMessage(ctx, SendMessageParams{
			ChatID:             chatID,
			Text:               m.Text,
			Entities:           m.Entities,
			LinkPreviewOptions: &LinkPreviewOptions{IsDisabled: true},
		})
		if err != nil {
			return nil, err
		}
		last = msg
	}
	return last, nil
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.Call(ctx, "deleteMessage", map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SendChatAction shows a status such as "typing" in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.Call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}

// SetMyCommands sets the command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.Call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// SetWebhook registers url for update delivery. Telegram sends secret in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	return c.Call(ctx, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": []string{"message"},
	}, nil)
}

// DeleteWebhook switches the bot back to getUpdates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.Call(ctx, "deleteWebhook", map[string]any{}, nil)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.Call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

func isRateLimited(err error) (time.Duration, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		return 0, false
	}
	return apiErr.RetryAfter, true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
