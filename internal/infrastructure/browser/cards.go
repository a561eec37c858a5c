package browser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olxmonitor/internal/domain"
	"olxmonitor/internal/ports"
)

const sourceName = "OLX.ro"

// OLX desktop markup changes often; each lookup tries an ordered list of
// selectors and the first one that matches wins.
var (
	cardSelectors = []string{
		`div[data-cy="l-card"]`,
		`div[data-testid="l-card"]`,
	}
	dateSelectors = []string{
		`p[data-testid="location-date"]`,
		`.css-vbz67q`,
	}
)

var adIDExpr = regexp.MustCompile(`ID([a-zA-Z0-9]+)`)

// CardsFromDocument enumerates listing cards in page order.
func CardsFromDocument(doc *goquery.Document) []ports.Card {
	for _, selector := range cardSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		cards := make([]ports.Card, 0, sel.Length())
		sel.Each(func(i int, s *goquery.Selection) {
			cards = append(cards, &card{sel: s})
		})
		return cards
	}
	return nil
}

type card struct {
	sel *goquery.Selection
}

var _ ports.Card = (*card)(nil)

// Promoted detects sponsored slots: the stable attribute first, then the
// badge class, then a label text scan as last resort.
func (c *card) Promoted() bool {
	if c.sel.Find(`div[data-testid="adCard-featured"]`).Length() > 0 {
		return true
	}
	if c.sel.Find("div.css-p9u9v3").Length() > 0 {
		return true
	}

	promoted := false
	c.sel.Find("span").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), "sponsorizat") {
			promoted = true
			return false
		}
		return true
	})
	return promoted
}

// Preview extracts the listing fields. The offer link is the only
// required field; everything else degrades gracefully.
func (c *card) Preview() (domain.ListingPreview, error) {
	link, ok := c.sel.Find(`a[href*="/oferta/"]`).First().Attr("href")
	if !ok || link == "" {
		return domain.ListingPreview{}, fmt.Errorf("card has no offer link")
	}
	link = absoluteLink(link)

	preview := domain.ListingPreview{
		Link:    link,
		AdID:    ExtractAdID(link),
		Title:   TitleFromURL(link),
		RawDate: c.dateText(),
		Source:  sourceName,
	}

	if img, ok := c.sel.Find("img[src]").First().Attr("src"); ok {
		preview.ImageURL = img
	}
	return preview, nil
}

func (c *card) dateText() string {
	for _, selector := range dateSelectors {
		text := strings.TrimSpace(c.sel.Find(selector).First().Text())
		if text == "" {
			continue
		}
		// Rendered as "Bucuresti - Azi la 12:00"; the date follows the dash.
		if _, after, found := strings.Cut(text, " - "); found {
			return strings.TrimSpace(after)
		}
		return text
	}
	return ""
}

func absoluteLink(link string) string {
	if strings.HasPrefix(link, "http") {
		return link
	}
	if strings.Contains(link, "olx.pl") {
		return "https://www.olx.pl" + link
	}
	return "https://www.olx.ro" + link
}

// ExtractAdID pulls the listing identifier out of an offer URL.
func ExtractAdID(link string) string {
	match := adIDExpr.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}

// TitleFromURL recovers a human-readable title from the offer URL slug.
func TitleFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return sourceName
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for _, segment := range segments {
		if strings.Contains(segment, "ID") && strings.Contains(segment, "-") {
			slug, _, _ := strings.Cut(segment, "-ID")
			return cleanSlug(slug)
		}
	}
	if len(segments) > 0 && segments[len(segments)-1] != "" {
		slug, _, _ := strings.Cut(segments[len(segments)-1], "ID")
		return cleanSlug(slug)
	}
	return sourceName
}

func cleanSlug(slug string) string {
	unescaped, err := url.PathUnescape(slug)
	if err == nil {
		slug = unescaped
	}
	title := strings.TrimSpace(strings.ReplaceAll(slug, "-", " "))
	if title == "" {
		return sourceName
	}
	return title
}
