package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// OpenGraphImage returns the page's og:image, falling back to the first
// img with a src. Relative URLs are resolved against pageURL.
func OpenGraphImage(doc *goquery.Document, pageURL string) string {
	if doc == nil {
		return ""
	}
	if og := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")); og != "" {
		return ResolveURL(pageURL, og)
	}
	if src := strings.TrimSpace(doc.Find("img[src]").First().AttrOr("src", "")); src != "" {
		return ResolveURL(pageURL, src)
	}
	return ""
}

// ResolveURL resolves ref against base. Unparsable input is returned unchanged.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
