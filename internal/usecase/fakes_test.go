package usecase

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeStore is an in-memory ports.ListingStore with injectable faults.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*domain.ListingRecord

	insertErr error
	markErr   error
	listErr   error

	insertCalls int
	inserts     int
	markCalls   int
}

var _ ports.ListingStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*domain.ListingRecord{}}
}

func (s *fakeStore) put(rec domain.ListingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := rec
	s.records[rec.Link] = &copied
}

func (s *fakeStore) Exists(ctx context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[link]
	return ok, nil
}

func (s *fakeStore) IsDelivered(ctx context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[link]
	if !ok {
		return false, nil
	}
	return rec.Delivered, nil
}

func (s *fakeStore) InsertIfAbsent(ctx context.Context, rec domain.ListingRecord) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.insertErr != nil {
		return false, false, s.insertErr
	}
	if existing, ok := s.records[rec.Link]; ok {
		return false, existing.Delivered, nil
	}
	s.inserts++
	copied := rec
	s.records[rec.Link] = &copied
	return true, false, nil
}

func (s *fakeStore) MarkDelivered(ctx context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if s.markErr != nil {
		return false, s.markErr
	}
	rec, ok := s.records[link]
	if !ok || rec.Delivered {
		return false, nil
	}
	rec.Delivered = true
	return true, nil
}

func (s *fakeStore) ListUndelivered(ctx context.Context) ([]domain.ListingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.ListingRecord
	for _, rec := range s.records {
		if !rec.Delivered {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *fakeStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *fakeStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	return domain.StoreStats{}, nil
}

// fakeNotifier records accepted listings and mimics the real notifier's
// contract: only the call that flips the delivered flag is accepted.
type fakeNotifier struct {
	mu       sync.Mutex
	store    *fakeStore
	accept   bool
	notified []domain.ListingPreview
}

var _ ports.Notifier = (*fakeNotifier)(nil)

func newFakeNotifier(store *fakeStore) *fakeNotifier {
	return &fakeNotifier{store: store, accept: true}
}

func (n *fakeNotifier) Notify(ctx context.Context, preview domain.ListingPreview) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.accept {
		return false
	}
	if n.store != nil {
		if flipped, _ := n.store.MarkDelivered(ctx, preview.Link); !flipped {
			return false
		}
	}
	n.notified = append(n.notified, preview)
	return true
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notified)
}

// fakeAges maps listing id to a fixed age; unknown ids are unparseable.
type fakeAges map[string]float64

var _ ports.AgeResolver = fakeAges{}

func (f fakeAges) Age(id, rawDate string, now time.Time) float64 {
	if age, ok := f[id]; ok {
		return age
	}
	return math.Inf(1)
}

// fakeCard is a scripted page card that tracks access.
type fakeCard struct {
	promoted   bool
	preview    domain.ListingPreview
	previewErr error

	mu           sync.Mutex
	previewCalls int
}

var _ ports.Card = (*fakeCard)(nil)

func (c *fakeCard) Promoted() bool { return c.promoted }

func (c *fakeCard) Preview() (domain.ListingPreview, error) {
	c.mu.Lock()
	c.previewCalls++
	c.mu.Unlock()
	if c.previewErr != nil {
		return domain.ListingPreview{}, c.previewErr
	}
	return c.preview, nil
}

// fakeFetcher serves a fixed card list per URL.
type fakeFetcher struct {
	cards map[string][]ports.Card
	err   error
}

var _ ports.PageFetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) FetchCards(ctx context.Context, url string) ([]ports.Card, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cards[url], nil
}

// fakeWatchlist returns a fixed URL list.
type fakeWatchlist struct {
	urls []string
	err  error
}

var _ ports.Watchlist = (*fakeWatchlist)(nil)

func (w *fakeWatchlist) Load() ([]string, error) { return w.urls, w.err }
func (w *fakeWatchlist) Save(urls []string) error {
	w.urls = urls
	return nil
}

// scriptedEvaluator replays fixed evaluation outcomes.
type scriptedEvaluator struct {
	results []struct{ sent, old bool }
	calls   int
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, preview domain.ListingPreview) (bool, bool) {
	if e.calls >= len(e.results) {
		return false, false
	}
	r := e.results[e.calls]
	e.calls++
	return r.sent, r.old
}

func card(link, adID, title string) *fakeCard {
	return &fakeCard{preview: domain.ListingPreview{
		Link:    link,
		AdID:    adID,
		Title:   title,
		Source:  "OLX.ro",
		RawDate: "Azi la 12:00",
	}}
}
