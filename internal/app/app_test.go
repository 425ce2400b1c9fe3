package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/config"
	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Harvest: config.HarvestConfig{
			Workers:        2,
			SitemapWorkers: 2,
			Mode:           config.ModePooled,
			UnitTimeout:    time.Second,
			UseProfiles:    true,
			CustomSites: []config.CustomSite{{
				URL:       "https://custom.example.com/",
				Selectors: map[string][]string{"title": {"h1", "div["}},
			}},
		},
		HTTP:    config.HTTPConfig{Timeout: time.Second, MaxRetries: 1, BackoffBase: time.Millisecond},
		Ingest:  config.IngestConfig{FilterConcurrency: 2},
		Store:   config.StoreConfig{Provider: "memory"},
		Archive: config.ArchiveConfig{Provider: "local", BaseDir: t.TempDir(), Prefix: "raw"},
	}
}

func TestNewLoadsEmbeddedProfiles(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	profiles := a.Profiles()
	require.NotEmpty(t, profiles)
	_, ok := a.Registry().Site("ndtv")
	assert.True(t, ok)
	for _, p := range profiles {
		assert.NotEmpty(t, p.BaseURL)
	}
}

func TestNewRejectsMissingProfilesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Harvest.ProfilesFile = "/nonexistent/profiles.yaml"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestCustomSitesKeepInvalidSelectors(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	sites := a.CustomSites()
	require.Len(t, sites, 1)
	assert.Len(t, sites[0].Selectors["title"], 2)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	store, err := a.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &memory.ArticleStore{}, store)

	archive, err := a.OpenArchive(ctx)
	require.NoError(t, err)
	require.NotNil(t, archive)

	pub, err := a.OpenPublisher(ctx)
	require.NoError(t, err)
	assert.Nil(t, pub)

	orch, err := a.Orchestrator(archive)
	require.NoError(t, err)
	assert.NotNil(t, orch)

	pipeline, err := a.Pipeline(store, pub)
	require.NoError(t, err)
	res, err := pipeline.Run(ctx, []crawler.ArticleRecord{{PageURL: "https://custom.example.com/a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestOpenStoreRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Provider = "mongo"
	a, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = a.OpenStore(context.Background())
	require.Error(t, err)
}
