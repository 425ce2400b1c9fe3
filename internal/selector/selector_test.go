package selector

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

const page = `<html><body>
<div class="story lead" id="main">
  <h1>Headline</h1>
  <span rel="author">Asha Rao</span>
  <div class="article-image"><img src="/a.jpg"></div>
  <p class="content-body">Body</p>
</div>
<div id="main">second main</div>
</body></html>`

func mustDoc(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestParseVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want Selector
	}{
		{".story", Class{Name: "story"}},
		{" #main ", ID{Value: "main"}},
		{"H1", Tag{Name: "h1"}},
		{`[rel="author"]`, Attribute{Name: "rel", Value: "author"}},
		{`[rel='author']`, Attribute{Name: "rel", Value: "author"}},
		{`[data-kind=lead]`, Attribute{Name: "data-kind", Value: "lead"}},
		{".2col", Class{Name: "2col"}},
		{".md:flex", Class{Name: "md:flex"}},
		{`[data-role=by line]`, Attribute{Name: "data-role", Value: "by line"}},
		{`[data-role="by line"`, nil},
	}
	for _, tt := range tests {
		got, err := Parse(tt.expr)
		if tt.want == nil {
			require.Error(t, err, tt.expr)
			continue
		}
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	for _, expr := range []string{".article-image img", `[class*="title"]`, `img[alt*="article"]`, "div > p"} {
		got, err := Parse(expr)
		require.NoError(t, err, expr)
		compound, ok := got.(Compound)
		require.True(t, ok, "%s should be compound, got %T", expr, got)
		assert.Equal(t, expr, compound.String())
	}
}

func TestLiteralFallbackMatches(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
<span class="2col">Two</span>
<p class="hidden md:flex">Flex</p>
<div id="x y">Spaced</div>
<em data-role="by line">Byline</em>
</body></html>`))
	require.NoError(t, err)

	for expr, want := range map[string]string{
		".2col":               "Two",
		".md:flex":            "Flex",
		"#x y":                "Spaced",
		"[data-role=by line]": "Byline",
	} {
		sel, err := Parse(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, want, sel.Select(doc.Selection).First().Text(), expr)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"", "   ", "[[bad", "div >", "#"} {
		_, err := Parse(expr)
		require.Error(t, err, "%q", expr)
		assert.ErrorIs(t, err, crawler.ErrSelector, "%q", expr)
	}
}

func TestParseListKeepsInvalidInPlace(t *testing.T) {
	t.Parallel()

	list, errs := ParseList([]string{".a", "[[bad", "h1"})
	require.Len(t, list, 3)
	require.Len(t, errs, 1)
	assert.IsType(t, Invalid{}, list[1])
	assert.Equal(t, []string{".a", "[[bad", "h1"}, list.Strings())
}

func TestSelect(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t)
	root := doc.Selection

	assert.Equal(t, 1, Class{Name: "lead"}.Select(root).Length())
	assert.Equal(t, 0, Class{Name: "stor"}.Select(root).Length())

	ids := ID{Value: "main"}.Select(root)
	require.Equal(t, 1, ids.Length())
	assert.True(t, ids.HasClass("story"))

	assert.Equal(t, "Asha Rao", Attribute{Name: "rel", Value: "author"}.Select(root).Text())
	assert.Equal(t, 1, Attribute{Name: "class", Value: "lead"}.Select(root).Length())
	assert.Equal(t, "Headline", Tag{Name: "h1"}.Select(root).Text())

	compound, err := Parse(".article-image img")
	require.NoError(t, err)
	src, _ := compound.Select(root).Attr("src")
	assert.Equal(t, "/a.jpg", src)

	contains, err := Parse(`[class*="content"]`)
	require.NoError(t, err)
	assert.Equal(t, "Body", contains.Select(root).Text())

	assert.Equal(t, 0, Invalid{Expr: "[[bad"}.Select(root).Length())
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, errs := ParseConfig(map[string][]string{
		"Title":  {"h1", ".title"},
		"image":  {".article-image img"},
		"broken": {"[[x"},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "field broken")
	assert.Equal(t, []string{"broken", "image", "title"}, cfg.Fields())
	assert.Equal(t, []string{"h1", ".title"}, cfg["title"].Strings())

	empty, errs := ParseConfig(nil)
	assert.Nil(t, empty)
	assert.Nil(t, errs)
}

func TestMustParseListPanics(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { MustParseList("h1", ".x") })
	assert.Panics(t, func() { MustParseList("[[") })
}
