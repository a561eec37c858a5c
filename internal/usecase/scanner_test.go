package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

func testScanner(fetcher ports.PageFetcher, evaluator cardEvaluator, skip, max, streak int) *Scanner {
	return NewScanner(ScannerDeps{
		Fetcher:     fetcher,
		Evaluator:   evaluator,
		SkipLeading: skip,
		MaxCards:    max,
		OldStreak:   streak,
		Logger:      testLogger(),
	})
}

func TestScanEarlyExit(t *testing.T) {
	t.Parallel()

	// Ordered newest-first: two fresh, two old, one fresh that must
	// never be reached once the old streak hits the threshold.
	cards := []ports.Card{
		card("l1", "a1", "defect 1"),
		card("l2", "a2", "defect 2"),
		card("l3", "a3", "defect 3"),
		card("l4", "a4", "defect 4"),
		card("l5", "a5", "defect 5"),
	}
	eval := &scriptedEvaluator{results: []struct{ sent, old bool }{
		{true, false}, {true, false}, {false, true}, {false, true}, {true, false},
	}}
	fetcher := &fakeFetcher{cards: map[string][]ports.Card{"u": cards}}

	outcome := testScanner(fetcher, eval, 0, 12, 2).Scan(context.Background(), "u")

	if eval.calls != 4 {
		t.Fatalf("expected exactly 4 evaluations, got %d", eval.calls)
	}
	if cards[4].(*fakeCard).previewCalls != 0 {
		t.Fatal("card after the early exit must never be examined")
	}
	if outcome.Sent != 2 || !outcome.FoundFresh {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestScanSkipsLeadingCards(t *testing.T) {
	t.Parallel()

	cards := []ports.Card{
		card("l1", "a1", "slot 1"),
		card("l2", "a2", "slot 2"),
		card("l3", "a3", "real 1"),
	}
	eval := &scriptedEvaluator{results: []struct{ sent, old bool }{{false, false}}}
	fetcher := &fakeFetcher{cards: map[string][]ports.Card{"u": cards}}

	testScanner(fetcher, eval, 2, 12, 2).Scan(context.Background(), "u")

	if cards[0].(*fakeCard).previewCalls != 0 || cards[1].(*fakeCard).previewCalls != 0 {
		t.Fatal("leading promoted slots must be skipped unconditionally")
	}
	if eval.calls != 1 {
		t.Fatalf("expected 1 evaluation, got %d", eval.calls)
	}
}

func TestScanPromotedCardsSkippedWithoutCounting(t *testing.T) {
	t.Parallel()

	promoted := card("l2", "a2", "promoted")
	promoted.promoted = true
	cards := []ports.Card{card("l1", "a1", "one"), promoted, card("l3", "a3", "two")}
	eval := &scriptedEvaluator{results: []struct{ sent, old bool }{{false, true}, {false, true}}}
	fetcher := &fakeFetcher{cards: map[string][]ports.Card{"u": cards}}

	testScanner(fetcher, eval, 0, 12, 2).Scan(context.Background(), "u")

	if promoted.previewCalls != 0 {
		t.Fatal("promoted card must not be extracted")
	}
	if eval.calls != 2 {
		t.Fatalf("expected 2 evaluations, got %d", eval.calls)
	}
}

func TestScanExtractionFailureSkipsCard(t *testing.T) {
	t.Parallel()

	broken := &fakeCard{previewErr: errors.New("no link")}
	cards := []ports.Card{broken, card("l2", "a2", "fine")}
	eval := &scriptedEvaluator{results: []struct{ sent, old bool }{{true, false}}}
	fetcher := &fakeFetcher{cards: map[string][]ports.Card{"u": cards}}

	outcome := testScanner(fetcher, eval, 0, 12, 2).Scan(context.Background(), "u")
	if eval.calls != 1 {
		t.Fatalf("expected the broken card to be skipped, evaluations = %d", eval.calls)
	}
	if outcome.Sent != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestScanFetchFailureAbortsSource(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("timeout")}
	eval := &scriptedEvaluator{}

	outcome := testScanner(fetcher, eval, 0, 12, 2).Scan(context.Background(), "u")
	if outcome.Sent != 0 || outcome.FoundFresh {
		t.Fatalf("failed fetch must report nothing found: %+v", outcome)
	}
	if eval.calls != 0 {
		t.Fatal("no evaluation after a failed fetch")
	}
}

// Full scenario: a 14-card page where two sponsored slots lead, one fresh
// match gets delivered, a duplicate is suppressed, and two old cards end
// the scan before the tail is touched.
func TestScanEndToEnd(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put(domain.ListingRecord{Link: "dup", Title: "gtx 1080 defect", AdID: "adup", Delivered: true})
	notifier := newFakeNotifier(store)
	ages := fakeAges{"afresh": 5, "adup": 5, "aold1": 60, "aold2": 90}
	evaluator := testEvaluator(store, notifier, ages)

	cards := []ports.Card{
		card("sponsor1", "s1", "sponsor"),
		card("sponsor2", "s2", "sponsor"),
		card("fresh", "afresh", "rtx 3080 defect artefacte"),
		card("dup", "adup", "gtx 1080 defect"),
		card("old1", "aold1", "rx 6800 defect"),
		card("old2", "aold2", "rtx 3070 defect"),
	}
	for i := 6; i < 14; i++ {
		cards = append(cards, card(fmt.Sprintf("tail%d", i), fmt.Sprintf("t%d", i), "rtx defect"))
	}
	fetcher := &fakeFetcher{cards: map[string][]ports.Card{"u": cards}}

	outcome := testScanner(fetcher, evaluator, 2, 12, 2).Scan(context.Background(), "u")

	if outcome.Sent != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", outcome.Sent)
	}
	if !outcome.FoundFresh {
		t.Fatal("expected fresh outcome")
	}
	if notifier.count() != 1 || notifier.notified[0].Link != "fresh" {
		t.Fatalf("unexpected notifications: %+v", notifier.notified)
	}
	for i := 6; i < 14; i++ {
		if cards[i].(*fakeCard).previewCalls != 0 {
			t.Fatalf("tail card %d was examined after the early exit", i)
		}
	}
}
