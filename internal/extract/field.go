// Package extract pulls article fields, images, and links out of HTML pages.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/news-harvester/internal/selector"
)

// Field names with a dedicated ArticleRecord slot.
const (
	FieldTitle   = "title"
	FieldContent = "content"
	FieldDate    = "date"
	FieldAuthor  = "author"
	FieldImage   = "image"
)

// DefaultConfig is the selector set used when no site profile or category applies.
func DefaultConfig() selector.Config {
	return selector.Config{
		FieldTitle: selector.MustParseList(
			"h1", "h2", "h3", ".title", ".headline", `[class*="title"]`, `[class*="headline"]`,
		),
		FieldContent: selector.MustParseList(
			".content", ".article", ".post", ".entry-content", ".story", `[class*="content"]`, `[class*="article"]`,
		),
		FieldDate: selector.MustParseList(
			".date", ".publish-date", ".timestamp", `[class*="date"]`, "time",
		),
		FieldAuthor: selector.MustParseList(
			".author", ".byline", `[class*="author"]`, `[rel="author"]`,
		),
	}
}

// Field returns the visible text of the first element matched by the first
// selector in list that yields non-empty text, or "" when none does.
func Field(doc *goquery.Document, list selector.List) string {
	if doc == nil {
		return ""
	}
	for _, sel := range list {
		matches := sel.Select(doc.Selection)
		if matches.Length() == 0 {
			continue
		}
		if text := VisibleText(matches.First()); text != "" {
			return text
		}
	}
	return ""
}

// Image returns the src (or data-src) of the first image matched by list.
// A matched non-img element contributes its first descendant img.
func Image(doc *goquery.Document, list selector.List) string {
	if doc == nil {
		return ""
	}
	for _, sel := range list {
		matches := sel.Select(doc.Selection)
		if matches.Length() == 0 {
			continue
		}
		img := matches.First()
		if goquery.NodeName(img) != "img" {
			img = img.Find("img").First()
		}
		if src := imageSource(img); src != "" {
			return src
		}
	}
	return ""
}

func imageSource(img *goquery.Selection) string {
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// VisibleText joins the element's text nodes with single spaces, skipping
// script and style content.
func VisibleText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
