package watchlist

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	wl := NewFile(filepath.Join(t.TempDir(), "urls.json"))
	urls, err := wl.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(urls) != 0 {
		t.Fatalf("expected empty list, got %v", urls)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	wl := NewFile(filepath.Join(t.TempDir(), "nested", "urls.json"))
	want := []string{
		"https://www.olx.ro/oferte/q-rtx-3080/",
		"https://www.olx.ro/oferte/q-rx-6800/",
	}

	if err := wl.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := wl.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, want)
	}
}
