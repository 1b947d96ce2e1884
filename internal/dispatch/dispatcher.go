package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"convertbot/internal/logging"
	"convertbot/internal/metrics"
	"convertbot/internal/services"
	"convertbot/internal/session"
	"convertbot/internal/telegram"
)

var (
	// ErrClosed is returned once Shutdown has started.
	ErrClosed = errors.New("dispatcher closed")
	// ErrQueueFull reports a chat whose worker is too far behind.
	ErrQueueFull = fmt.Errorf("%w: chat queue full", services.ErrTransient)
)

// Handler applies events; *session.Machine satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev session.Event) error
}

// Options tunes the dispatcher.
type Options struct {
	QueueSize   int
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Metrics     metrics.Recorder
}

// Dispatcher fans updates out to per-chat workers.
type Dispatcher struct {
	handler   Handler
	files     FileSource
	queueSize int
	idle      time.Duration
	logger    *slog.Logger
	metrics   metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	workers map[int64]chan telegram.Update
}

// New returns a dispatcher delivering events to handler.
func New(handler Handler, files FileSource, opts Options) *Dispatcher {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:   handler,
		files:     files,
		queueSize: queueSize,
		idle:      idle,
		logger:    logging.NewComponentLogger(opts.Logger, "dispatch"),
		metrics:   metrics.OrNop(opts.Metrics),
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[int64]chan telegram.Update),
	}
}

// Dispatch queues update on its chat's worker, starting one if needed.
// It never blocks on a busy chat.
func (d *Dispatcher) Dispatch(update telegram.Update) error {
	d.metrics.IncUpdate(update.Kind())
	chatID := update.ChatID()
	if chatID == 0 {
		d.logger.Debug("update without chat ignored", logging.Int64("update_id", update.UpdateID))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	queue, ok := d.workers[chatID]
	if !ok {
		queue = make(chan telegram.Update, d.queueSize)
		d.workers[chatID] = queue
		d.wg.Add(1)
		go d.run(chatID, queue)
	}
	select {
	case queue <- update:
		return nil
	default:
		logging.WarnWithContext(d.logger, "chat queue full; update dropped", "dispatch_queue_full",
			logging.Int64("chat_id", chatID),
			logging.Int64("update_id", update.UpdateID),
			logging.Alert("queue_full"),
			logging.String(logging.FieldErrorHint, "raise telegram.worker_queue_size or check for a stuck conversion"),
			logging.String(logging.FieldImpact, "the user's message was not processed"),
		)
		return ErrQueueFull
	}
}

// Workers reports the number of live chat workers.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// Shutdown stops accepting updates and waits for queued work. If ctx ends
// first, in-flight handlers are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, queue := range d.workers {
			close(queue)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(chatID int64, queue chan telegram.Update) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case update, ok := <-queue:
			if !ok {
				return
			}
			d.handle(update)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.idle)
		case <-timer.C:
			if d.retire(chatID, queue) {
				return
			}
			timer.Reset(d.idle)
		}
	}
}

// retire removes an idle worker unless an update slipped in meanwhile.
func (d *Dispatcher) retire(chatID int64, queue chan telegram.Update) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(queue) > 0 {
		return false
	}
	delete(d.workers, chatID)
	d.logger.Debug("idle chat worker stopped", logging.Int64("chat_id", chatID))
	return true
}

func (d *Dispatcher) handle(update telegram.Update) {
	ctx := services.WithRequestID(d.ctx, uuid.NewString())
	ctx = services.WithConversationID(ctx, telegram.FormatChatID(update.ChatID()))
	logger := logging.WithContext(ctx, d.logger)

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "update handler panicked", "dispatch_panic",
				logging.Any("panic", r),
				logging.Int64("update_id", update.UpdateID),
			)
		}
	}()

	ev, ok := toEvent(update, d.files)
	if !ok {
		logger.Debug("update ignored", logging.Int64("update_id", update.UpdateID))
		return
	}
	if err := d.handler.Handle(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WarnWithContext(logger, "update handling failed", "dispatch_handle_failed",
			logging.Error(err),
			logging.String("event", string(ev.Kind)),
			logging.String(logging.FieldImpact, "the user may not have received a reply"),
		)
	}
}
