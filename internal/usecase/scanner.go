package usecase

import (
	"context"
	"log/slog"
	"time"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

type cardEvaluator interface {
	Evaluate(ctx context.Context, preview domain.ListingPreview) (sent, consideredOld bool)
}

// Scanner drives one search source for one cycle: fetch the page,
// walk the freshest cards in order, and stop early once a run of old
// listings shows the rest of the page is older still.
type Scanner struct {
	fetcher   ports.PageFetcher
	evaluator cardEvaluator

	skipLeading int
	maxCards    int
	oldStreak   int

	logger *slog.Logger
}

// ScannerDeps wires the scanner's collaborators and scan window.
type ScannerDeps struct {
	Fetcher   ports.PageFetcher
	Evaluator cardEvaluator
	// SkipLeading leading cards are reserved for promoted slots.
	SkipLeading int
	// MaxCards caps how deep into the page the scan goes.
	MaxCards int
	// OldStreak is the consecutive-old count that aborts the scan.
	OldStreak int
	Logger    *slog.Logger
}

// NewScanner constructs a per-source scanner.
func NewScanner(deps ScannerDeps) *Scanner {
	return &Scanner{
		fetcher:     deps.Fetcher,
		evaluator:   deps.Evaluator,
		skipLeading: deps.SkipLeading,
		maxCards:    deps.MaxCards,
		oldStreak:   deps.OldStreak,
		logger:      deps.Logger,
	}
}

// Scan processes one source URL. A fetch failure aborts this source for
// the cycle; the outcome then reports nothing found.
func (s *Scanner) Scan(ctx context.Context, url string) domain.ScanOutcome {
	start := time.Now()
	s.logger.Info("scanning source", "url", url)

	cards, err := s.fetcher.FetchCards(ctx, url)
	if err != nil {
		s.logger.Error("source fetch failed", "url", url, "error", err)
		return domain.ScanOutcome{Elapsed: time.Since(start)}
	}

	if len(cards) > s.skipLeading {
		cards = cards[s.skipLeading:]
	} else {
		cards = nil
	}
	if len(cards) > s.maxCards {
		cards = cards[:s.maxCards]
	}

	var (
		sent      int
		streak    int
		evaluated int
	)
	for _, card := range cards {
		if card.Promoted() {
			continue
		}

		preview, err := card.Preview()
		if err != nil {
			s.logger.Debug("card extraction failed", "url", url, "error", err)
			continue
		}

		accepted, old := s.evaluator.Evaluate(ctx, preview)
		evaluated++
		switch {
		case accepted:
			sent++
			streak = 0
		case old:
			streak++
		}

		if streak >= s.oldStreak {
			s.logger.Info("scan stopped at old listings", "url", url, "evaluated", evaluated)
			break
		}
	}

	elapsed := time.Since(start)
	s.logger.Info("source done", "url", url, "sent", sent, "elapsed", elapsed.Round(100*time.Millisecond))
	return domain.ScanOutcome{Sent: sent, FoundFresh: sent > 0, Elapsed: elapsed}
}
