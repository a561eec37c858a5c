package usecase

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

// Predicate decides whether a listing title is a candidate at all.
type Predicate func(title string) bool

// KeywordPredicate matches titles containing any of the keywords,
// case-insensitively.
func KeywordPredicate(keywords []string) Predicate {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return func(title string) bool {
		title = strings.ToLower(title)
		for _, kw := range lowered {
			if strings.Contains(title, kw) {
				return true
			}
		}
		return false
	}
}

// Evaluator makes the per-card decision: candidate, fresh enough, not a
// duplicate, then notify. Checks are ordered cheapest first so filtered
// listings never reach the store.
type Evaluator struct {
	predicate Predicate
	ages      ports.AgeResolver
	store     ports.ListingStore
	notifier  ports.Notifier
	maxAge    float64
	logger    *slog.Logger
}

// EvaluatorDeps wires the evaluator's collaborators.
type EvaluatorDeps struct {
	Predicate Predicate
	Ages      ports.AgeResolver
	Store     ports.ListingStore
	Notifier  ports.Notifier
	// MaxAgeMinutes is the freshness window.
	MaxAgeMinutes float64
	Logger        *slog.Logger
}

// NewEvaluator constructs the decision component.
func NewEvaluator(deps EvaluatorDeps) *Evaluator {
	return &Evaluator{
		predicate: deps.Predicate,
		ages:      deps.Ages,
		store:     deps.Store,
		notifier:  deps.Notifier,
		maxAge:    deps.MaxAgeMinutes,
		logger:    deps.Logger,
	}
}

// Evaluate returns whether a notification was accepted and whether the
// card counts toward the consecutive-old streak.
func (e *Evaluator) Evaluate(ctx context.Context, preview domain.ListingPreview) (sent, consideredOld bool) {
	if !e.predicate(preview.Title) {
		return false, false
	}

	minutes := e.ages.Age(preview.AdID, preview.RawDate, time.Now())
	preview.MinutesAgo = minutes
	if math.IsInf(minutes, 1) || minutes > e.maxAge {
		e.logger.Debug("listing too old", "title", preview.Title, "minutes", minutes)
		return false, true
	}

	// One atomic create-or-check; separate exists/delivered lookups
	// would let two sources seeing the same link race past each other.
	created, alreadyDelivered, err := e.store.InsertIfAbsent(ctx, domain.ListingRecord{
		Link:    preview.Link,
		Title:   preview.Title,
		AdID:    preview.AdID,
		Source:  preview.Source,
		RawDate: preview.RawDate,
	})
	if err != nil {
		// Fail closed: without the dedup record we cannot guarantee
		// at-most-once, so skip and let the next cycle retry.
		e.logger.Error("store insert failed, skipping listing", "link", preview.Link, "error", err)
		return false, false
	}
	if alreadyDelivered {
		return false, false
	}
	if !created {
		e.logger.Info("listing stored but not yet delivered", "link", preview.Link)
	}

	return e.notifier.Notify(ctx, preview), false
}
