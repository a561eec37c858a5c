package domain

import "time"

// ListingPreview is the ephemeral per-scan view of a search-result card.
// It feeds the evaluator and is discarded once a decision is made.
type ListingPreview struct {
	Link       string
	Title      string
	AdID       string
	Source     string
	RawDate    string
	ImageURL   string
	MinutesAgo float64
}

// ListingRecord is the durable representation of a listing in the store.
// Link is the unique key; a record is created at most once per link and
// Delivered transitions false to true exactly once.
type ListingRecord struct {
	Link      string
	Title     string
	AdID      string
	Source    string
	RawDate   string
	FirstSeen time.Time
	ExpiresAt time.Time
	Delivered bool
}

// ScanOutcome summarizes one source's pass for the orchestrator.
type ScanOutcome struct {
	Sent       int
	FoundFresh bool
	Elapsed    time.Duration
}

// StoreStats is an operator-facing snapshot of the listing store.
type StoreStats struct {
	TotalListings int
	BySource      map[string]int
	Last24h       int
	Undelivered   int
	LastCleanup   string
}
