package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"convertbot/internal/logging"
)

const (
	minPollBackoff = time.Second
	maxPollBackoff = 30 * time.Second
)

// Poller long-polls getUpdates and hands each allowed update to a handler.
type Poller struct {
	client  *Client
	timeout time.Duration
	allowed map[int64]struct{}
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
	offset  int64
}

// NewPoller returns a poller. An empty allow list accepts every chat.
func NewPoller(client *Client, timeout time.Duration, allowedChats []int64, logger *slog.Logger) *Poller {
	allowed := make(map[int64]struct{}, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = struct{}{}
	}
	return &Poller{
		client:  client,
		timeout: timeout,
		allowed: allowed,
		logger:  logging.NewComponentLogger(logger, "telegram"),
		sleep:   sleepContext,
	}
}

// Allowed reports whether updates from chatID are handled.
func (p *Poller) Allowed(chatID int64) bool {
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[chatID]
	return ok
}

// Offset returns the next update id the poller will request.
func (p *Poller) Offset() int64 {
	return p.offset
}

// Run polls until ctx is done. Poll errors back off exponentially; handler
// calls happen on the polling goroutine in update order.
func (p *Poller) Run(ctx context.Context, handle func(Update)) error {
	backoff := minPollBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			logging.WarnWithContext(p.logger, "telegram getUpdates failed", "telegram_poll_failed",
				logging.Error(err),
				logging.Duration("retry_in", wait),
				logging.String(logging.FieldErrorHint, "check network access and the bot token"),
				logging.String(logging.FieldImpact, "incoming messages are delayed"),
			)
			if err := p.sleep(ctx, wait); err != nil {
				return nil
			}
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = minPollBackoff

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			chatID := update.ChatID()
			if !p.Allowed(chatID) {
				p.logger.Debug("update from chat outside allow list dropped",
					logging.Int64("chat_id", chatID),
					logging.Int64("update_id", update.UpdateID),
				)
				continue
			}
			handle(update)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
