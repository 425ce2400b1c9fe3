package crawler

import (
	"net/http"
	"strings"
	"time"
)

// SourceType tags the provenance of an ArticleRecord.
type SourceType string

// Known provenance tags. Per-site profile crawls use CustomSourceType.
const (
	SourceSitemapNews    SourceType = "sitemap_news"
	SourceSitemapRegular SourceType = "sitemap_regular"
	SourceHTMLContent    SourceType = "html_content"
	SourceCustomCrawl    SourceType = "custom_crawl"
)

// CustomSourceType returns the tag used for records crawled with a named site profile.
func CustomSourceType(site string) SourceType {
	return SourceType("custom_" + site)
}

// IsSitemap reports whether the tag denotes a sitemap-origin record.
func (s SourceType) IsSitemap() bool {
	return strings.HasPrefix(string(s), "sitemap")
}

// ArticleRecord is the unit of extracted data. It is persisted as one document.
type ArticleRecord struct {
	ID                  string            `json:"id,omitempty"`
	LocationURL         string            `json:"loc,omitempty"`
	PageURL             string            `json:"url,omitempty"`
	LastModified        string            `json:"lastmod,omitempty"`
	Title               string            `json:"title,omitempty"`
	PublicationName     string            `json:"publication_name,omitempty"`
	PublicationLanguage string            `json:"publication_language,omitempty"`
	PublicationDate     string            `json:"publication_date,omitempty"`
	Keywords            string            `json:"keywords,omitempty"`
	Content             string            `json:"content,omitempty"`
	Author              string            `json:"author,omitempty"`
	Date                string            `json:"date,omitempty"`
	ImageURL            string            `json:"image_url,omitempty"`
	DetectedLanguage    string            `json:"detected_language,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
	SourceType          SourceType        `json:"source_type"`
	CrawledAt           *time.Time        `json:"crawled_at,omitempty"`
}

// IdentifyingURL returns the sitemap location when present, otherwise the page URL.
func (r ArticleRecord) IdentifyingURL() string {
	if loc := strings.TrimSpace(r.LocationURL); loc != "" {
		return loc
	}
	return strings.TrimSpace(r.PageURL)
}

// Link is an outbound same-domain anchor collected from a page.
type Link struct {
	URL   string `json:"url"`
	Text  string `json:"text"`
	Title string `json:"title"`
}

// FetchRequest captures everything needed to fetch a URL.
// Zero MaxRetries and Timeout select the fetcher defaults.
type FetchRequest struct {
	URL        string
	MaxRetries int
	Timeout    time.Duration
	Headers    http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}
