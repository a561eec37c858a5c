// Package browser renders OLX.ro search pages in headless Chrome and
// exposes their result cards to the scan core.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"olxmonitor/internal/ports"
)

// Fetcher implements ports.PageFetcher with a fresh headless browser per
// fetch, so a wedged renderer never leaks into the next cycle.
type Fetcher struct {
	timeout     time.Duration
	scrollCount int
	chromeBin   string
	logger      *slog.Logger
}

var _ ports.PageFetcher = (*Fetcher)(nil)

// NewFetcher configures the render timeout and the number of lazy-load
// scrolls performed before reading the page.
func NewFetcher(timeout time.Duration, scrollCount int, chromeBin string, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Fetcher{
		timeout:     timeout,
		scrollCount: scrollCount,
		chromeBin:   chromeBin,
		logger:      logger,
	}
}

// FetchCards renders the search page and returns its listing cards in
// page order.
func (f *Fetcher) FetchCards(ctx context.Context, pageURL string) ([]ports.Card, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"),
	)
	if f.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(f.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.Evaluate(`localStorage.setItem('olx-consent', 'true');`, nil),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	for i := 0; i < f.scrollCount; i++ {
		actions = append(actions,
			chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d);", (i+1)*800), nil),
			chromedp.Sleep(500*time.Millisecond),
		)
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	cards := CardsFromDocument(doc)
	if f.logger != nil {
		f.logger.Debug("page fetched", "url", pageURL, "cards", len(cards))
	}
	return cards, nil
}
