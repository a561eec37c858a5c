package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

const notifySendTimeout = 30 * time.Second

// transientError is satisfied by transport errors worth retrying.
type transientError interface {
	Transient() bool
}

func isTransient(err error) bool {
	var te transientError
	return errors.As(err, &te) && te.Transient()
}

// Notifier decouples notification latency from the scan loop: Notify
// marks the listing delivered, queues it, and returns; a small worker
// pool formats and dispatches to every destination with bounded retries.
type Notifier struct {
	store   ports.ListingStore
	sender  ports.Sender
	chatIDs []string

	veryFresh   float64
	maxAttempts int
	baseDelay   time.Duration

	queue  chan domain.ListingPreview
	wg     sync.WaitGroup
	closed sync.Once

	logger *slog.Logger
}

// NotifierDeps wires the delivery pipeline.
type NotifierDeps struct {
	Store   ports.ListingStore
	Sender  ports.Sender
	ChatIDs []string
	// VeryFreshMinutes flags listings young enough for the priority header.
	VeryFreshMinutes float64
	MaxAttempts      int
	BaseDelay        time.Duration
	QueueSize        int
	Workers          int
	Logger           *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier starts the worker pool; callers must Close to drain it.
func NewNotifier(deps NotifierDeps) *Notifier {
	if deps.QueueSize <= 0 {
		deps.QueueSize = 64
	}
	if deps.Workers <= 0 {
		deps.Workers = 2
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = 5
	}
	if deps.BaseDelay <= 0 {
		deps.BaseDelay = 3 * time.Second
	}

	n := &Notifier{
		store:       deps.Store,
		sender:      deps.Sender,
		chatIDs:     deps.ChatIDs,
		veryFresh:   deps.VeryFreshMinutes,
		maxAttempts: deps.MaxAttempts,
		baseDelay:   deps.BaseDelay,
		queue:       make(chan domain.ListingPreview, deps.QueueSize),
		logger:      deps.Logger,
	}

	n.wg.Add(deps.Workers)
	for i := 0; i < deps.Workers; i++ {
		go n.worker()
	}
	return n
}

// Notify marks the listing delivered and queues it for dispatch. A full
// queue refuses the listing so backpressure stays visible.
func (n *Notifier) Notify(ctx context.Context, preview domain.ListingPreview) bool {
	// Only the caller whose test-and-set flips the delivered flag may
	// queue the dispatch; a link arriving from two sources at once is
	// therefore sent at most once. A refused mark leaves the record
	// undelivered for backlog reconciliation to retry.
	flipped, err := n.store.MarkDelivered(ctx, preview.Link)
	if err != nil {
		n.logger.Warn("could not mark listing delivered", "link", preview.Link, "error", err)
		return false
	}
	if !flipped {
		n.logger.Debug("listing already delivered", "link", preview.Link)
		return false
	}

	n.logger.Info("delivering notification", "title", preview.Title, "link", preview.Link)

	select {
	case n.queue <- preview:
		return true
	default:
		n.logger.Error("notification queue full, dropping listing", "link", preview.Link)
		return false
	}
}

// Close drains pending notifications and stops the workers.
func (n *Notifier) Close() {
	n.closed.Do(func() { close(n.queue) })
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for preview := range n.queue {
		n.dispatch(preview)
	}
}

// dispatch sends to every chat independently; one failing destination
// never blocks or rolls back the others.
func (n *Notifier) dispatch(preview domain.ListingPreview) {
	caption := formatCaption(preview, n.veryFresh)

	for _, chatID := range n.chatIDs {
		if err := n.sendWithRetry(chatID, caption, preview.ImageURL); err != nil {
			n.logger.Error("notification failed", "chat", chatID, "link", preview.Link, "error", err)
			continue
		}
		n.logger.Info("notification sent", "chat", chatID, "link", preview.Link)
	}
}

// sendWithRetry retries transient transport faults with a linearly
// growing delay; permanent faults stop immediately.
func (n *Notifier) sendWithRetry(chatID, caption, imageURL string) error {
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		if imageURL != "" {
			lastErr = n.sender.SendPhoto(ctx, chatID, caption, imageURL)
		} else {
			lastErr = n.sender.SendMessage(ctx, chatID, caption)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return fmt.Errorf("permanent transport fault: %w", lastErr)
		}
		if attempt < n.maxAttempts {
			wait := time.Duration(attempt) * n.baseDelay
			n.logger.Warn("transient transport fault, retrying",
				"chat", chatID, "attempt", attempt, "wait", wait, "error", lastErr)
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", n.maxAttempts, lastErr)
}

func formatCaption(preview domain.ListingPreview, veryFresh float64) string {
	header := "📌 *OPORTUNITATE DETECTATĂ*"
	if !math.IsInf(preview.MinutesAgo, 1) && preview.MinutesAgo <= veryFresh {
		header = "🔥 *ANUNȚ NOU (ULTRA-FRESH)*"
	}

	published := preview.RawDate
	if published == "" {
		published = "Necunoscută"
	}

	return fmt.Sprintf("%s\n\n📦 *Titlu:* %s\n⏱️ *Publicat acum:* %.1f min\n📆 *Data OLX:* %s\n\n🔗 [VEZI ANUNȚUL PE OLX](%s)",
		header, preview.Title, preview.MinutesAgo, published, preview.Link)
}
