package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"olxmonitor/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(link string) domain.ListingRecord {
	return domain.ListingRecord{
		Link:    link,
		Title:   "rtx 3080 defect",
		AdID:    "Abc123",
		Source:  "OLX.ro",
		RawDate: "Azi la 10:30",
	}
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	created, delivered, err := s.InsertIfAbsent(ctx, sampleRecord("https://www.olx.ro/oferta/x-IDAbc123.html"))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created || delivered {
		t.Fatalf("first insert: created=%v delivered=%v", created, delivered)
	}

	second := sampleRecord("https://www.olx.ro/oferta/x-IDAbc123.html")
	second.Title = "should not overwrite"
	created, delivered, err = s.InsertIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created || delivered {
		t.Fatalf("second insert: created=%v delivered=%v", created, delivered)
	}

	backlog, err := s.ListUndelivered(ctx)
	if err != nil {
		t.Fatalf("list undelivered: %v", err)
	}
	if len(backlog) != 1 {
		t.Fatalf("expected 1 undelivered record, got %d", len(backlog))
	}
	if backlog[0].Title != "rtx 3080 defect" {
		t.Fatalf("repeat insert rewrote first-seen title: %q", backlog[0].Title)
	}
}

func TestMarkDeliveredFlipsExactlyOnce(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	link := "https://www.olx.ro/oferta/y-IDDef456.html"

	if _, _, err := s.InsertIfAbsent(ctx, sampleRecord(link)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	flipped, err := s.MarkDelivered(ctx, link)
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if !flipped {
		t.Fatal("first mark must win the flip")
	}

	flipped, err = s.MarkDelivered(ctx, link)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if flipped {
		t.Fatal("second mark must observe the flag already set")
	}

	flipped, err = s.MarkDelivered(ctx, "https://www.olx.ro/oferta/absent.html")
	if err != nil {
		t.Fatalf("absent mark: %v", err)
	}
	if flipped {
		t.Fatal("marking an absent link must not report a flip")
	}

	delivered, err := s.IsDelivered(ctx, link)
	if err != nil {
		t.Fatalf("is delivered: %v", err)
	}
	if !delivered {
		t.Fatal("expected delivered flag set")
	}

	_, alreadyDelivered, err := s.InsertIfAbsent(ctx, sampleRecord(link))
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if !alreadyDelivered {
		t.Fatal("reinsert must report existing delivered flag")
	}
}

func TestIsDeliveredAbsentLink(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	delivered, err := s.IsDelivered(context.Background(), "https://www.olx.ro/oferta/none.html")
	if err != nil {
		t.Fatalf("is delivered: %v", err)
	}
	if delivered {
		t.Fatal("absent link must read as not delivered")
	}

	exists, err := s.Exists(context.Background(), "https://www.olx.ro/oferta/none.html")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("absent link must not exist")
	}
}

func TestPurgeExpiredHonorsCadence(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	if _, _, err := s.InsertIfAbsent(ctx, sampleRecord("https://www.olx.ro/oferta/old.html")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Far future: the record is expired and the seeded cleanup marker is
	// well past the cadence.
	future := time.Now().Add(8 * 24 * time.Hour)
	deleted, err := s.PurgeExpired(ctx, future)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	// A second purge inside the cadence window must be a no-op even with
	// expired rows present.
	if _, _, err := s.InsertIfAbsent(ctx, sampleRecord("https://www.olx.ro/oferta/old2.html")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	deleted, err = s.PurgeExpired(ctx, future.Add(time.Hour))
	if err != nil {
		t.Fatalf("second purge: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("purge inside cadence deleted %d records", deleted)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()

	for _, link := range []string{
		"https://www.olx.ro/oferta/a.html",
		"https://www.olx.ro/oferta/b.html",
	} {
		if _, _, err := s.InsertIfAbsent(ctx, sampleRecord(link)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := s.MarkDelivered(ctx, "https://www.olx.ro/oferta/a.html"); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalListings != 2 {
		t.Fatalf("expected 2 total, got %d", stats.TotalListings)
	}
	if stats.Undelivered != 1 {
		t.Fatalf("expected 1 undelivered, got %d", stats.Undelivered)
	}
	if stats.BySource["OLX.ro"] != 2 {
		t.Fatalf("expected 2 for OLX.ro, got %d", stats.BySource["OLX.ro"])
	}
}
