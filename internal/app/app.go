// Package app builds the long-lived services of a harvest run from Config and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/clock/system"
	"github.com/JakeFAU/news-harvester/internal/config"
	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/news-harvester/internal/fetcher/colly"
	hashsha "github.com/JakeFAU/news-harvester/internal/hash/sha256"
	"github.com/JakeFAU/news-harvester/internal/id/uuid"
	"github.com/JakeFAU/news-harvester/internal/ingest"
	"github.com/JakeFAU/news-harvester/internal/orchestrator"
	"github.com/JakeFAU/news-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/news-harvester/internal/profiles"
	"github.com/JakeFAU/news-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/news-harvester/internal/robots"
	"github.com/JakeFAU/news-harvester/internal/selector"
	"github.com/JakeFAU/news-harvester/internal/sitemap"
	"github.com/JakeFAU/news-harvester/internal/storage/gcs"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
	"github.com/JakeFAU/news-harvester/internal/storage/memory"
	"github.com/JakeFAU/news-harvester/internal/storage/postgres"
)

// App holds the services shared by the CLI commands. Backends that talk to
// external systems are opened on demand so read-only commands stay offline.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	fetcher  *collyfetcher.Fetcher
	registry *profiles.Registry
	closers  []func() error
}

// New builds the fetcher and loads the profile registry.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry, err := profiles.Load(cfg.Harvest.ProfilesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.HTTP.Timeout,
		MaxRetries:         cfg.HTTP.MaxRetries,
		BackoffBase:        cfg.HTTP.BackoffBase,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
	}, limiter, logger)
	return &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		fetcher:  fetcher,
		registry: registry,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the run clock.
func (a *App) Clock() crawler.Clock { return a.clock }

// Registry returns the site-profile registry.
func (a *App) Registry() *profiles.Registry { return a.registry }

// Extractor returns an HTML extractor on the shared fetcher.
func (a *App) Extractor() *extract.Extractor {
	return extract.NewExtractor(a.fetcher, a.clock, a.logger)
}

// Orchestrator builds an orchestrator with a fresh robots cache. archive may be nil.
func (a *App) Orchestrator(archive crawler.BlobStore) (*orchestrator.Orchestrator, error) {
	cache := robots.NewCache(a.fetcher, a.cfg.HTTP.UserAgent, a.logger)
	deps := orchestrator.Deps{
		Fetcher:    a.fetcher,
		Discoverer: sitemap.NewDiscoverer(cache, a.logger),
		Extractor:  a.Extractor(),
		Robots:     cache,
		Resolver:   a.registry,
		Logger:     a.logger,
	}
	if archive != nil {
		deps.Archive = archive
		deps.Hasher = hashsha.New()
	}
	h := a.cfg.Harvest
	return orchestrator.New(deps, orchestrator.Config{
		Workers:            h.Workers,
		SitemapWorkers:     h.SitemapWorkers,
		Mode:               orchestrator.Mode(h.Mode),
		UnitTimeout:        h.UnitTimeout,
		CrawlHTML:          h.CrawlHTML,
		UseProfiles:        h.UseProfiles,
		RespectRobots:      h.RespectRobots,
		FollowSitemapIndex: h.FollowSitemapIndex,
		ArchivePrefix:      a.cfg.Archive.Prefix,
	})
}

// Pipeline builds the ingestion pipeline. publisher may be nil.
func (a *App) Pipeline(store crawler.ArticleStore, publisher crawler.Publisher) (*ingest.Pipeline, error) {
	in := a.cfg.Ingest
	return ingest.New(ingest.Deps{
		Store:     store,
		Fetcher:   a.fetcher,
		Publisher: publisher,
		Clock:     a.clock,
		IDs:       uuid.New(),
		Logger:    a.logger,
	}, ingest.Config{
		FilterConcurrency: in.FilterConcurrency,
		EnrichImages:      in.EnrichImages,
		ImageTimeout:      in.ImageTimeout,
		ImageConcurrency:  in.ImageConcurrency,
		Topic:             a.cfg.Publish.Topic,
	})
}

// Profiles converts the registry sites into orchestrator profiles.
func (a *App) Profiles() []orchestrator.Profile {
	sites := a.registry.Sites()
	out := make([]orchestrator.Profile, 0, len(sites))
	for _, s := range sites {
		out = append(out, orchestrator.Profile{Name: s.Name, BaseURL: s.BaseURL, Selectors: s.Selectors})
	}
	return out
}

// CustomSites parses the configured custom sites. Bad selectors are logged
// and kept as never-matching entries.
func (a *App) CustomSites() []orchestrator.CustomSite {
	out := make([]orchestrator.CustomSite, 0, len(a.cfg.Harvest.CustomSites))
	for _, site := range a.cfg.Harvest.CustomSites {
		cfg, errs := selector.ParseConfig(site.Selectors)
		for _, err := range errs {
			a.logger.Warn("custom site selector rejected", zap.String("url", site.URL), zap.Error(err))
		}
		out = append(out, orchestrator.CustomSite{URL: site.URL, Selectors: cfg})
	}
	return out
}

// OpenStore connects the configured article store.
func (a *App) OpenStore(ctx context.Context) (crawler.ArticleStore, error) {
	switch a.cfg.Store.Provider {
	case "memory":
		a.logger.Warn("using in-memory article store; nothing will be persisted across runs")
		return memory.NewArticleStore(), nil
	case "postgres":
		return a.OpenPostgres(ctx)
	default:
		return nil, fmt.Errorf("store.provider %q is not supported", a.cfg.Store.Provider)
	}
}

// OpenPostgres connects the Postgres article store.
func (a *App) OpenPostgres(ctx context.Context) (*postgres.ArticleStore, error) {
	store, err := postgres.NewArticleStore(ctx, postgres.ArticleStoreConfig{
		DSN:      a.cfg.Store.DSN,
		Table:    a.cfg.Store.Table,
		MaxConns: a.cfg.Store.MaxConns,
	}, uuid.New(), a.clock)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.logger.Info("connected to postgres", zap.String("table", a.cfg.Store.Table))
	return store, nil
}

// OpenArchive returns the configured raw archive, or nil when disabled.
func (a *App) OpenArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("archive.provider %q is not supported", a.cfg.Archive.Provider)
	}
}

// OpenPublisher returns the configured publisher, or nil when disabled.
func (a *App) OpenPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.Publish.Provider {
	case "", "none":
		return nil, nil
	case "pubsub":
		pub, err := pubsub.Open(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	default:
		return nil, fmt.Errorf("publish.provider %q is not supported", a.cfg.Publish.Provider)
	}
}

// Close releases opened backends in reverse order and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
