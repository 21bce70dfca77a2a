package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/estatebot/server/telegram"
)

const (
	pollTimeout = 30 * time.Second
	pollBackoff = 3 * time.Second
)

// Updater fetches updates by long polling. *telegram.Client implements it.
type Updater interface {
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Handler handles one update. *Bot implements it.
type Handler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// Poller receives updates with getUpdates and hands each one to a handler on
// its own goroutine.
type Poller struct {
	client  Updater
	handler Handler
	logger  *slog.Logger
	timeout time.Duration
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewPoller creates a Poller.
func NewPoller(client Updater, handler Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  client,
		handler: handler,
		logger:  logger,
		timeout: pollTimeout,
		backoff: pollBackoff,
	}
}

// Run polls until ctx is canceled, then waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(ctx); err != nil {
		return errors.Wrap(err, "failed to delete webhook before polling")
	}
	p.logger.Info("polling for updates")
	defer p.wg.Wait()

	var offset int64
	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("failed to get updates, backing off", "error", err, "backoff", p.backoff)
			select {
			case <-ctx.Done():
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.wg.Go(func() {
				if err := p.handler.HandleUpdate(ctx, u); err != nil {
					p.logger.Error("failed to handle update", "update_id", u.UpdateID, "error", err)
				}
			})
		}
	}
	p.logger.Info("polling stopped")
	return nil
}
