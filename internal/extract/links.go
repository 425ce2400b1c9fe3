package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// DefaultMaxLinks caps ExtractLinks when the caller passes a non-positive limit.
const DefaultMaxLinks = 50

// ExtractLinks fetches pageURL and returns up to maxLinks anchors pointing at
// the same host, in document order.
func (e *Extractor) ExtractLinks(ctx context.Context, pageURL string, maxLinks int) ([]crawler.Link, error) {
	doc, err := e.FetchDocument(ctx, crawler.FetchRequest{URL: pageURL})
	if err != nil {
		return nil, err
	}
	links := Links(doc, pageURL, maxLinks)
	e.logger.Info("links found", zap.String("url", pageURL), zap.Int("count", len(links)))
	return links, nil
}

// Links collects same-host anchors from doc, resolved against pageURL.
func Links(doc *goquery.Document, pageURL string, maxLinks int) []crawler.Link {
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var links []crawler.Link
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if !crawler.SameHost(base, abs) {
			return true
		}
		links = append(links, crawler.Link{
			URL:   abs.String(),
			Text:  VisibleText(a),
			Title: a.AttrOr("title", ""),
		})
		return len(links) < maxLinks
	})
	return links
}
