package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	t.Parallel()

	reg, err := Load("", nil)
	require.NoError(t, err)

	sites := reg.Sites()
	require.NotEmpty(t, sites)
	assert.Equal(t, "aajtak", sites[0].Name)
	assert.Equal(t, "https://www.aajtak.in", sites[0].BaseURL)

	ndtv, ok := reg.Site("NDTV")
	require.True(t, ok)
	assert.Equal(t, []string{"h1", ".sp-h1", ".article-title", ".post-title"}, ndtv.Selectors["title"].Strings())

	names := []string{}
	for _, c := range reg.Categories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"news", "blog", "general"}, names)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	reg, err := Load("", nil)
	require.NoError(t, err)

	cfg, match := reg.Resolve("https://www.NDTV.com/india-news/story")
	require.NotNil(t, cfg)
	assert.Equal(t, "site:ndtv", match)

	// "news" category applies when no site name matches.
	cfg, match = reg.Resolve("https://example.com/news/today")
	require.NotNil(t, cfg)
	assert.Equal(t, "category:news", match)

	_, match = reg.Resolve("https://myblog.example/post")
	assert.Equal(t, "category:blog", match)

	cfg, match = reg.Resolve("https://example.com/markets")
	assert.Nil(t, cfg)
	assert.Empty(t, match)
}

func TestParseRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("sites:\n  - name: a\n  - name: A\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = Parse([]byte("categories:\n  - selectors: {title: [h1]}\n"), nil)
	require.Error(t, err)
}

func TestParseKeepsMalformedSelectorsInert(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte("sites:\n  - name: odd\n    url: https://odd.example\n    selectors:\n      title: ['[[', 'h1']\n"), nil)
	require.NoError(t, err)
	site, ok := reg.Site("odd")
	require.True(t, ok)
	assert.Len(t, site.Selectors["title"], 2)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - name: local\n    url: http://127.0.0.1\n"), 0o600))
	reg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, reg.Sites(), 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	var nilReg *Registry
	cfg, _ := nilReg.Resolve("https://x.com")
	assert.Nil(t, cfg)
}
