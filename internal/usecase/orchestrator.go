package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

type sourceScanner interface {
	Scan(ctx context.Context, url string) domain.ScanOutcome
}

// Orchestrator runs the scan cycle forever: reconcile the undelivered
// backlog, scan every watched source concurrently, then sleep for an
// adaptive delay that tightens while fresh listings keep appearing.
type Orchestrator struct {
	watchlist ports.Watchlist
	store     ports.ListingStore
	ages      ports.AgeResolver
	notifier  ports.Notifier
	scanner   sourceScanner

	maxParallel   int
	maxAge        float64
	backlogFactor float64
	fastInterval  time.Duration
	slowInterval  time.Duration
	floorFast     time.Duration
	floorSlow     time.Duration
	fallbackSleep time.Duration

	logger *slog.Logger
}

// OrchestratorDeps wires the cycle loop.
type OrchestratorDeps struct {
	Watchlist ports.Watchlist
	Store     ports.ListingStore
	Ages      ports.AgeResolver
	Notifier  ports.Notifier
	Scanner   sourceScanner

	// MaxParallel caps concurrent source scans per cycle.
	MaxParallel int
	// MaxAgeMinutes is the freshness window; the backlog uses it scaled
	// by BacklogFactor.
	MaxAgeMinutes float64
	BacklogFactor float64
	FastInterval  time.Duration
	SlowInterval  time.Duration
	FloorFast     time.Duration
	FloorSlow     time.Duration
	FallbackSleep time.Duration
	Logger        *slog.Logger
}

// NewOrchestrator constructs the cycle loop.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.MaxParallel <= 0 {
		deps.MaxParallel = 4
	}
	if deps.FallbackSleep <= 0 {
		deps.FallbackSleep = 15 * time.Second
	}
	return &Orchestrator{
		watchlist:     deps.Watchlist,
		store:         deps.Store,
		ages:          deps.Ages,
		notifier:      deps.Notifier,
		scanner:       deps.Scanner,
		maxParallel:   deps.MaxParallel,
		maxAge:        deps.MaxAgeMinutes,
		backlogFactor: deps.BacklogFactor,
		fastInterval:  deps.FastInterval,
		slowInterval:  deps.SlowInterval,
		floorFast:     deps.FloorFast,
		floorSlow:     deps.FloorSlow,
		fallbackSleep: deps.FallbackSleep,
		logger:        deps.Logger,
	}
}

// Run loops until the context is cancelled. A faulty cycle never
// terminates the loop; it is answered with a fixed cooldown sleep.
func (o *Orchestrator) Run(ctx context.Context) error {
	cycle := 0
	for {
		cycle++
		o.logger.Info("cycle started", "cycle", cycle)
		delay := o.runCycle(ctx)
		o.logger.Info("cycle finished", "cycle", cycle, "next_in", delay.Round(100*time.Millisecond))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle panicked", "panic", r)
			delay = o.fallbackSleep
		}
	}()

	start := time.Now()

	if _, err := o.store.PurgeExpired(ctx, start); err != nil {
		o.logger.Warn("cleanup failed", "error", err)
	}

	o.reconcileBacklog(ctx)

	urls, err := o.watchlist.Load()
	if err != nil {
		o.logger.Error("watchlist load failed", "error", err)
		return o.fallbackSleep
	}
	if len(urls) == 0 {
		o.logger.Info("watchlist empty, nothing to scan")
		return o.slowInterval
	}

	freshFound := o.scanAll(ctx, urls)

	elapsed := time.Since(start)
	if freshFound {
		return maxDuration(o.floorFast, o.fastInterval-elapsed)
	}
	return maxDuration(o.floorSlow, o.slowInterval-elapsed)
}

// scanAll runs one scanner per source with bounded concurrency and waits
// for every source to finish or fail before the cycle completes.
func (o *Orchestrator) scanAll(ctx context.Context, urls []string) bool {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		freshFound bool
	)
	sem := make(chan struct{}, o.maxParallel)

	for _, url := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				// A crashing source counts as a failed scan; the
				// cycle and its siblings keep going.
				if r := recover(); r != nil {
					o.logger.Error("source scan panicked", "url", url, "panic", r)
				}
			}()

			outcome := o.scanner.Scan(ctx, url)
			mu.Lock()
			freshFound = freshFound || outcome.FoundFresh
			mu.Unlock()
		}(url)
	}
	wg.Wait()
	return freshFound
}

// reconcileBacklog re-examines stored but undelivered listings: still
// fresh ones (within the relaxed backlog window) get delivered, stale
// ones are closed out silently so old stock never spams the chats.
func (o *Orchestrator) reconcileBacklog(ctx context.Context) {
	records, err := o.store.ListUndelivered(ctx)
	if err != nil {
		o.logger.Error("backlog load failed", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}
	o.logger.Info("reconciling backlog", "count", len(records))

	limit := o.maxAge * o.backlogFactor
	now := time.Now()
	for _, rec := range records {
		age := o.ages.Age(rec.AdID, rec.RawDate, now)
		if age <= limit {
			o.notifier.Notify(ctx, domain.ListingPreview{
				Link:       rec.Link,
				Title:      rec.Title,
				AdID:       rec.AdID,
				Source:     rec.Source,
				RawDate:    rec.RawDate,
				MinutesAgo: age,
			})
			continue
		}
		if _, err := o.store.MarkDelivered(ctx, rec.Link); err != nil {
			o.logger.Warn("could not close out stale backlog record", "link", rec.Link, "error", err)
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
