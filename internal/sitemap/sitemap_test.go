package sitemap

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/robots"
)

const newsSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"
        xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url>
    <loc> https://x.com/a </loc>
    <lastmod>2024-05-01T10:00:00Z</lastmod>
    <news:news>
      <news:publication>
        <news:name>X Daily</news:name>
        <news:language>en</news:language>
      </news:publication>
      <news:publication_date>2024-05-01T09:30:00Z</news:publication_date>
      <news:title>  Budget passed  </news:title>
      <news:keywords>budget, parliament</news:keywords>
    </news:news>
  </url>
  <url>
    <loc>https://x.com/b</loc>
  </url>
  <url>
    <lastmod>2024-05-01</lastmod>
  </url>
</urlset>`

func TestExtractNewsSitemap(t *testing.T) {
	t.Parallel()

	records := ExtractNewsData([]byte(newsSitemap), zap.NewNop())
	require.Len(t, records, 2)

	news := records[0]
	assert.Equal(t, "https://x.com/a", news.LocationURL)
	assert.Equal(t, "2024-05-01T10:00:00Z", news.LastModified)
	assert.Equal(t, "Budget passed", news.Title)
	assert.Equal(t, "X Daily", news.PublicationName)
	assert.Equal(t, "en", news.PublicationLanguage)
	assert.Equal(t, "2024-05-01T09:30:00Z", news.PublicationDate)
	assert.Equal(t, "budget, parliament", news.Keywords)
	assert.Equal(t, crawler.SourceSitemapNews, news.SourceType)

	regular := records[1]
	assert.Equal(t, "https://x.com/b", regular.LocationURL)
	assert.Equal(t, crawler.SourceSitemapRegular, regular.SourceType)
	assert.Empty(t, regular.Title)
	assert.Empty(t, regular.PublicationName)
}

func TestExtractRegularSitemap(t *testing.T) {
	t.Parallel()

	body := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://x.com/b</loc><lastmod>2024-01-01</lastmod></url>
</urlset>`
	records := ExtractNewsData([]byte(body), nil)
	require.Len(t, records, 1)
	assert.Equal(t, crawler.ArticleRecord{
		LocationURL:  "https://x.com/b",
		LastModified: "2024-01-01",
		SourceType:   crawler.SourceSitemapRegular,
	}, records[0])
}

func TestExtractUnqualifiedSitemap(t *testing.T) {
	t.Parallel()

	body := `<urlset>
  <url>
    <loc>https://plain.example/story</loc>
    <news>
      <publication><name>Plain Times</name><language>hi</language></publication>
      <title>Monsoon arrives</title>
    </news>
  </url>
  <url><loc>https://plain.example/page</loc></url>
</urlset>`
	records := ExtractNewsData([]byte(body), nil)
	require.Len(t, records, 2)
	assert.Equal(t, crawler.SourceSitemapNews, records[0].SourceType)
	assert.Equal(t, "Plain Times", records[0].PublicationName)
	assert.Equal(t, "hi", records[0].PublicationLanguage)
	assert.Equal(t, "Monsoon arrives", records[0].Title)
	assert.Equal(t, crawler.SourceSitemapRegular, records[1].SourceType)
}

func TestExtractNamespacedDocumentEmitsEachEntryOnce(t *testing.T) {
	t.Parallel()

	records := ExtractNewsData([]byte(newsSitemap), nil)
	seen := map[string]int{}
	for _, r := range records {
		seen[r.LocationURL]++
	}
	for loc, n := range seen {
		assert.Equal(t, 1, n, loc)
	}
}

func TestExtractMalformed(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ExtractNewsData([]byte("<urlset><url><loc>https://x.com/a</loc>"), nil))
	assert.Empty(t, ExtractNewsData([]byte("not xml at all"), nil))
	assert.Empty(t, ExtractNewsData(nil, nil))
}

func TestExtractSitemapIndex(t *testing.T) {
	t.Parallel()

	body := `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://x.com/news-1.xml</loc></sitemap>
  <sitemap><loc> https://x.com/news-2.xml.gz </loc><lastmod>2024-05-01</lastmod></sitemap>
  <sitemap><lastmod>2024-05-01</lastmod></sitemap>
</sitemapindex>`
	assert.Equal(t, []string{"https://x.com/news-1.xml", "https://x.com/news-2.xml.gz"}, ExtractSitemapIndex([]byte(body)))
	assert.Empty(t, ExtractSitemapIndex([]byte(newsSitemap)))
	assert.Empty(t, ExtractSitemapIndex([]byte("<broken")))
	assert.Empty(t, ExtractNewsData([]byte(body), nil))
}

func TestParseSitemapDirectives(t *testing.T) {
	t.Parallel()

	body := "User-agent: *\nDisallow: /admin\n  sitemap: https://x.com/news.xml\nSITEMAP:http://x.com/a.xml\n" +
		"Sitemap: https://x.com/news.xml\n# Sitemap: https://x.com/commented.xml\nSitemap: ftp://x.com/no.xml\n"
	assert.Equal(t, []string{"https://x.com/news.xml", "http://x.com/a.xml"}, ParseSitemapDirectives([]byte(body)))
	assert.Nil(t, ParseSitemapDirectives([]byte("User-agent: *\nAllow: /\n")))
}

type robotsFetcher map[string]string

func (f robotsFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	body, ok := f[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: req.URL, StatusCode: http.StatusNotFound, Attempts: 3}
	}
	return crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func TestDiscoverSitemaps(t *testing.T) {
	t.Parallel()

	fetcher := robotsFetcher{
		"https://x.com/robots.txt":     "User-agent: *\nSitemap: https://x.com/sitemap-news.xml\nSitemap: https://x.com/sitemap.xml\n",
		"https://quiet.com/robots.txt": "User-agent: *\nDisallow:\n",
	}
	d := NewDiscoverer(robots.NewCache(fetcher, "harvester", nil), nil)
	ctx := context.Background()

	assert.Equal(t,
		[]string{"https://x.com/sitemap-news.xml", "https://x.com/sitemap.xml"},
		d.DiscoverSitemaps(ctx, "https://x.com/politics/today"),
	)
	assert.Empty(t, d.DiscoverSitemaps(ctx, "https://quiet.com/"))
	assert.Empty(t, d.DiscoverSitemaps(ctx, "https://missing.com/"))
	assert.Empty(t, d.DiscoverSitemaps(ctx, "::not-a-url"))
}
