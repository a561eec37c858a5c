package app

import (
	"context"
	"fmt"
	"log/slog"

	"olxmonitor/internal/agecache"
	"olxmonitor/internal/config"
	"olxmonitor/internal/datetext"
	"olxmonitor/internal/infrastructure/browser"
	"olxmonitor/internal/infrastructure/storage"
	"olxmonitor/internal/infrastructure/telegram"
	"olxmonitor/internal/infrastructure/watchlist"
	"olxmonitor/internal/logging"
	"olxmonitor/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	store        *storage.Store
	notifier     *usecase.Notifier
	orchestrator *usecase.Orchestrator
	adminBot     *telegram.AdminBot
	sender       *telegram.Sender
	logger       *slog.Logger
}

// New builds the full monitoring pipeline. The returned application owns
// the store and the notifier pool; Run releases both on shutdown.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path, baseLogger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("open listing store: %w", err)
	}

	ages := agecache.New(datetext.MinutesSince, config.AgeCacheSize, config.AgeCacheValidity)
	urls := watchlist.NewFile(cfg.Watchlist.Path)
	sender := telegram.NewSender(cfg.Telegram.BotToken, "")

	notifier := usecase.NewNotifier(usecase.NotifierDeps{
		Store:            store,
		Sender:           sender,
		ChatIDs:          cfg.Telegram.ChatIDs,
		VeryFreshMinutes: cfg.Notify.VeryFreshMinutes,
		MaxAttempts:      cfg.Notify.MaxAttempts,
		BaseDelay:        cfg.Notify.RetryBaseDelay,
		QueueSize:        cfg.Notify.QueueSize,
		Workers:          cfg.Notify.Workers,
		Logger:           baseLogger.With("component", "notifier"),
	})

	evaluator := usecase.NewEvaluator(usecase.EvaluatorDeps{
		Predicate:     usecase.KeywordPredicate(cfg.Scan.Keywords),
		Ages:          ages,
		Store:         store,
		Notifier:      notifier,
		MaxAgeMinutes: cfg.Scan.MaxAgeMinutes,
		Logger:        baseLogger.With("component", "evaluator"),
	})

	fetcher := browser.NewFetcher(cfg.Scan.PageTimeout, cfg.Scan.ScrollCount,
		cfg.Scan.ChromeBin, baseLogger.With("component", "fetcher"))

	scanner := usecase.NewScanner(usecase.ScannerDeps{
		Fetcher:     fetcher,
		Evaluator:   evaluator,
		SkipLeading: cfg.Scan.SkipLeading,
		MaxCards:    cfg.Scan.MaxCards,
		OldStreak:   cfg.Scan.OldStreak,
		Logger:      baseLogger.With("component", "scanner"),
	})

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Watchlist:     urls,
		Store:         store,
		Ages:          ages,
		Notifier:      notifier,
		Scanner:       scanner,
		MaxParallel:   cfg.Scan.MaxParallel,
		MaxAgeMinutes: cfg.Scan.MaxAgeMinutes,
		BacklogFactor: cfg.Scan.BacklogAgeFactor,
		FastInterval:  cfg.Scan.FastInterval,
		SlowInterval:  cfg.Scan.SlowInterval,
		FloorFast:     cfg.Scan.FloorFast,
		FloorSlow:     cfg.Scan.FloorSlow,
		FallbackSleep: cfg.Scan.FallbackSleep,
		Logger:        baseLogger.With("component", "orchestrator"),
	})

	var adminBot *telegram.AdminBot
	if len(cfg.Telegram.AdminIDs) > 0 {
		adminBot = telegram.NewAdminBot(cfg.Telegram.BotToken, "", sender, urls, store,
			cfg.Telegram.AdminIDs, baseLogger.With("component", "admin"))
	}

	return &Application{
		cfg:          cfg,
		store:        store,
		notifier:     notifier,
		orchestrator: orchestrator,
		adminBot:     adminBot,
		sender:       sender,
		logger:       baseLogger.With("component", "app"),
	}, nil
}

// Run blocks until ctx is cancelled, then drains pending notifications
// and closes the store.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		a.notifier.Close()
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
	}()

	a.announceStartup(ctx)

	if a.adminBot != nil {
		go a.adminBot.Run(ctx)
	}

	return a.orchestrator.Run(ctx)
}

func (a *Application) announceStartup(ctx context.Context) {
	for _, chatID := range a.cfg.Telegram.ChatIDs {
		if err := a.sender.SendMessage(ctx, chatID, "🤖 Monitorul OLX a pornit."); err != nil {
			a.logger.Warn("startup announcement failed", "chat", chatID, "error", err)
		}
	}
	a.store.LogActivity(ctx, "startup", fmt.Sprintf("chats=%d", len(a.cfg.Telegram.ChatIDs)))
}
