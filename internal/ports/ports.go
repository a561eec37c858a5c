package ports

import (
	"context"
	"time"

	"olxmonitor/internal/domain"
)

// Card is one candidate element on a fetched search-result page.
type Card interface {
	// Promoted reports whether the card is a sponsored/featured slot.
	Promoted() bool
	// Preview extracts the listing fields; an error means a required
	// field is missing and the card should be skipped.
	Preview() (domain.ListingPreview, error)
}

// PageFetcher renders a search source and enumerates its cards in page
// order (newest first by source convention).
type PageFetcher interface {
	FetchCards(ctx context.Context, url string) ([]Card, error)
}

// ListingStore is the durable dedup record and the single source of
// truth for delivery state.
type ListingStore interface {
	Exists(ctx context.Context, link string) (bool, error)
	IsDelivered(ctx context.Context, link string) (bool, error)
	// InsertIfAbsent creates the record with delivered=false, or extends
	// the expiry of an existing one without touching first-seen fields.
	InsertIfAbsent(ctx context.Context, rec domain.ListingRecord) (created bool, alreadyDelivered bool, err error)
	// MarkDelivered atomically flips the delivered flag and reports
	// whether this call performed the flip. A link already delivered,
	// or never stored, returns false without effect.
	MarkDelivered(ctx context.Context, link string) (flipped bool, err error)
	ListUndelivered(ctx context.Context) ([]domain.ListingRecord, error)
	// PurgeExpired deletes expired records, at most once per cleanup cadence.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// Sender delivers a formatted message to one destination chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, text, photoURL string) error
}

// Notifier accepts a listing for asynchronous delivery. A true result
// means the listing was marked delivered and queued.
type Notifier interface {
	Notify(ctx context.Context, preview domain.ListingPreview) bool
}

// AgeResolver answers "minutes since publication" for a listing,
// typically via a memoizing cache over the date normalizer.
type AgeResolver interface {
	Age(id, rawDate string, now time.Time) float64
}

// Watchlist is the ordered set of search source URLs.
type Watchlist interface {
	Load() ([]string, error)
	Save(urls []string) error
}
