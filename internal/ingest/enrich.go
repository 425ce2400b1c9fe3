package ingest

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/extract"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Enrich fills ImageURL on sitemap-origin records from each article page.
// It returns the records (same order) and how many images were found.
func (p *Pipeline) Enrich(ctx context.Context, records []crawler.ArticleRecord) ([]crawler.ArticleRecord, int) {
	out := make([]crawler.ArticleRecord, len(records))
	copy(out, records)
	if !p.cfg.EnrichImages || p.fetcher == nil {
		return out, 0
	}

	limit := p.cfg.ImageConcurrency
	if limit <= 0 {
		limit = -1
	}
	found := make([]bool, len(out))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range out {
		if !out[i].SourceType.IsSitemap() || out[i].ImageURL != "" {
			continue
		}
		g.Go(func() error {
			img := p.pageImage(ctx, out[i].IdentifyingURL())
			if img != "" {
				out[i].ImageURL = img
				found[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range found {
		if ok {
			n++
		}
	}
	return out, n
}

func (p *Pipeline) pageImage(ctx context.Context, pageURL string) string {
	resp, err := p.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:        pageURL,
		MaxRetries: 1,
		Timeout:    p.cfg.ImageTimeout,
	})
	if err != nil {
		metrics.ObserveImage("error")
		p.logger.Debug("image fetch failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		metrics.ObserveImage("error")
		return ""
	}
	img := extract.OpenGraphImage(doc, pageURL)
	if img == "" {
		metrics.ObserveImage("missing")
		return ""
	}
	metrics.ObserveImage("found")
	return img
}
