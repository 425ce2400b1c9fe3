package sitemap

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// XML namespaces used by news sitemaps.
const (
	NamespaceSitemap = "http://www.sitemaps.org/schemas/sitemap/0.9"
	NamespaceNews    = "http://www.google.com/schemas/sitemap-news/0.9"
)

// ExtractNewsData turns a sitemap document into article records.
//
// Entries are collected in two passes: url elements in the sitemaps.org
// namespace first, then url elements with no namespace at all. A body that
// does not parse yields no records.
func ExtractNewsData(body []byte, logger *zap.Logger) []crawler.ArticleRecord {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc, err := parse(body)
	if err != nil {
		logger.Error("sitemap parse failed", zap.Error(err))
		return nil
	}

	var records []crawler.ArticleRecord
	for _, u := range elements(doc, "url", NamespaceSitemap) {
		if rec, ok := qualifiedRecord(u); ok {
			records = append(records, rec)
		}
	}
	for _, u := range elements(doc, "url", "") {
		if rec, ok := unqualifiedRecord(u); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ExtractSitemapIndex returns the child sitemap locations of a sitemap index.
// Namespaces are ignored. A document that is not an index yields nothing.
func ExtractSitemapIndex(body []byte) []string {
	doc, err := parse(body)
	if err != nil {
		return nil
	}
	var locs []string
	for _, idx := range elementsAnyNS(doc, "sitemapindex") {
		for _, sm := range elementsAnyNS(idx, "sitemap") {
			if loc := firstAnyNS(sm, "loc"); loc != nil {
				if v := text(loc); v != "" {
					locs = append(locs, v)
				}
			}
		}
	}
	return locs
}

func parse(body []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrParseFailed, err)
	}
	return doc, nil
}

func qualifiedRecord(u *xmlquery.Node) (crawler.ArticleRecord, bool) {
	loc := text(child(u, "loc", NamespaceSitemap))
	if loc == "" {
		return crawler.ArticleRecord{}, false
	}
	rec := crawler.ArticleRecord{
		LocationURL:  loc,
		LastModified: text(child(u, "lastmod", NamespaceSitemap)),
		SourceType:   crawler.SourceSitemapRegular,
	}
	news := child(u, "news", NamespaceNews)
	if news == nil {
		return rec, true
	}
	rec.SourceType = crawler.SourceSitemapNews
	rec.Title = text(child(news, "title", NamespaceNews))
	if pub := child(news, "publication", NamespaceNews); pub != nil {
		rec.PublicationName = text(child(pub, "name", NamespaceNews))
		rec.PublicationLanguage = text(child(pub, "language", NamespaceNews))
	}
	rec.PublicationDate = text(child(news, "publication_date", NamespaceNews))
	rec.Keywords = text(child(news, "keywords", NamespaceNews))
	return rec, true
}

func unqualifiedRecord(u *xmlquery.Node) (crawler.ArticleRecord, bool) {
	loc := text(child(u, "loc", ""))
	if loc == "" {
		return crawler.ArticleRecord{}, false
	}
	rec := crawler.ArticleRecord{
		LocationURL:  loc,
		LastModified: text(child(u, "lastmod", "")),
		SourceType:   crawler.SourceSitemapRegular,
	}
	news := descendant(u, "news", "")
	if news == nil {
		return rec, true
	}
	rec.SourceType = crawler.SourceSitemapNews
	rec.Title = text(descendant(news, "title", ""))
	rec.PublicationName = text(descendant(news, "name", ""))
	rec.PublicationLanguage = text(descendant(news, "language", ""))
	rec.PublicationDate = text(descendant(news, "publication_date", ""))
	rec.Keywords = text(descendant(news, "keywords", ""))
	return rec, true
}

// elements returns every element named local in namespace ns, in document order.
func elements(root *xmlquery.Node, local, ns string) []*xmlquery.Node {
	var out []*xmlquery.Node
	walk(root, func(n *xmlquery.Node) {
		if n.Data == local && n.NamespaceURI == ns {
			out = append(out, n)
		}
	})
	return out
}

func elementsAnyNS(root *xmlquery.Node, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	walk(root, func(n *xmlquery.Node) {
		if n.Data == local {
			out = append(out, n)
		}
	})
	return out
}

func walk(n *xmlquery.Node, visit func(*xmlquery.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			visit(c)
		}
		walk(c, visit)
	}
}

func child(parent *xmlquery.Node, local, ns string) *xmlquery.Node {
	if parent == nil {
		return nil
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local && c.NamespaceURI == ns {
			return c
		}
	}
	return nil
}

// descendant finds the first element named local in namespace ns at any depth beneath parent.
func descendant(parent *xmlquery.Node, local, ns string) *xmlquery.Node {
	var found *xmlquery.Node
	walk(parent, func(n *xmlquery.Node) {
		if found == nil && n.Data == local && n.NamespaceURI == ns {
			found = n
		}
	})
	return found
}

func firstAnyNS(parent *xmlquery.Node, local string) *xmlquery.Node {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			return c
		}
	}
	return nil
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}
