// Package sitemap discovers sitemap feeds through robots.txt and extracts
// article records from sitemap XML.
package sitemap

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/robots"
)

var sitemapDirective = regexp.MustCompile(`(?im)^\s*Sitemap:\s*(https?://\S+)`)

// Discoverer finds sitemap URLs declared in a site's robots.txt.
type Discoverer struct {
	robots *robots.Cache
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer backed by a per-run robots cache.
func NewDiscoverer(cache *robots.Cache, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{robots: cache, logger: logger.Named("discover")}
}

// DiscoverSitemaps returns the sitemap URLs listed in the seed host's
// robots.txt. Every failure yields an empty result.
func (d *Discoverer) DiscoverSitemaps(ctx context.Context, seedURL string) []string {
	robotsURL, err := crawler.RobotsURL(seedURL)
	if err != nil {
		d.logger.Error("invalid seed url", zap.String("seed", seedURL), zap.Error(err))
		return nil
	}
	entry, err := d.robots.Lookup(ctx, seedURL)
	if err != nil {
		d.logger.Warn("robots.txt unavailable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	sitemaps := ParseSitemapDirectives(entry.Body)
	if len(sitemaps) == 0 {
		d.logger.Info("no sitemap directives", zap.String("url", robotsURL))
		return nil
	}
	d.logger.Debug("sitemaps discovered", zap.String("url", robotsURL), zap.Int("count", len(sitemaps)))
	return sitemaps
}

// ParseSitemapDirectives extracts Sitemap: URLs from a robots.txt body in
// file order, without repeats.
func ParseSitemapDirectives(body []byte) []string {
	matches := sitemapDirective.FindAllSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		u := string(m[1])
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
