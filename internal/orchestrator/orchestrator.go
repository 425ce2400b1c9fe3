// Package orchestrator fans seed URLs out over bounded worker pools and
// collects the extracted article records.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/selector"
	"github.com/JakeFAU/news-harvester/internal/sitemap"
)

// Mode selects how a unit of work is bounded in time.
type Mode string

const (
	// ModePooled runs units inline and relies on context deadlines.
	ModePooled Mode = "pooled"
	// ModeIsolated runs each unit detached and abandons it at the hard timeout.
	ModeIsolated Mode = "isolated"
)

// ErrDisallowed marks an HTML unit skipped because robots.txt forbids the page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Discoverer finds the sitemap feeds advertised by a seed's host.
type Discoverer interface {
	DiscoverSitemaps(ctx context.Context, seedURL string) []string
}

// PageExtractor turns one HTML page into one record.
type PageExtractor interface {
	CrawlHTMLContent(ctx context.Context, pageURL string, cfg selector.Config) (crawler.ArticleRecord, error)
	CrawlWithCustomSelectors(
		ctx context.Context,
		pageURL string,
		cfg selector.Config,
		sourceType crawler.SourceType,
	) (crawler.ArticleRecord, error)
}

// RobotsChecker answers whether a page may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// SelectorResolver maps a URL to a selector configuration.
type SelectorResolver interface {
	Resolve(rawURL string) (selector.Config, string)
}

// Profile is a named site crawled with its own selectors.
type Profile struct {
	Name      string
	BaseURL   string
	Selectors selector.Config
}

// CustomSite is an operator-supplied URL plus the selectors to apply to it.
type CustomSite struct {
	URL       string
	Selectors selector.Config
}

// Deps are the collaborators used by the Orchestrator. Robots, Resolver,
// Archive and Hasher are optional.
type Deps struct {
	Fetcher    crawler.Fetcher
	Discoverer Discoverer
	Extractor  PageExtractor
	Robots     RobotsChecker
	Resolver   SelectorResolver
	Archive    crawler.BlobStore
	Hasher     crawler.Hasher
	Logger     *zap.Logger
}

// Config tunes the worker pools.
type Config struct {
	Workers            int
	SitemapWorkers     int
	Mode               Mode
	UnitTimeout        time.Duration
	CrawlHTML          bool
	UseProfiles        bool
	RespectRobots      bool
	FollowSitemapIndex bool
	ArchivePrefix      string
}

// Orchestrator runs the extraction phase of a harvest.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator, filling zero config values with defaults.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Archive != nil && deps.Hasher == nil {
		return nil, fmt.Errorf("hasher is required when archiving")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.SitemapWorkers <= 0 {
		cfg.SitemapWorkers = 5
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = 60 * time.Second
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePooled
	case ModePooled, ModeIsolated:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// Run processes every seed: sitemap mode always, HTML mode when enabled.
// Records are returned in completion order.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) ([]crawler.ArticleRecord, Summary) {
	start := time.Now()
	sink := newSink()

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for _, seed := range seeds {
		if ctx.Err() != nil {
			o.logger.Warn("run canceled, no further seeds dispatched", zap.Error(ctx.Err()))
			break
		}
		sink.seed()
		g.Go(func() error {
			o.processSeed(ctx, seed, sink)
			return nil
		})
	}
	_ = g.Wait()

	records, summary := sink.finish(time.Since(start))
	o.logger.Info("harvest finished",
		zap.Int("seeds", summary.Seeds),
		zap.Int("sitemaps", summary.Sitemaps),
		zap.Int("units", summary.Units),
		zap.Int("failed", summary.Failed),
		zap.Int("records", summary.Records),
		zap.Duration("duration", summary.Duration),
	)
	return records, summary
}

// CrawlProfiles crawls each profile's base URL with its selectors, tagging
// records custom_<name>.
func (o *Orchestrator) CrawlProfiles(ctx context.Context, profiles []Profile) ([]crawler.ArticleRecord, Summary) {
	units := make([]unit, 0, len(profiles))
	for _, p := range profiles {
		units = append(units, unit{
			kind:   KindProfile,
			target: p.BaseURL,
			run: func(ctx context.Context) ([]crawler.ArticleRecord, error) {
				rec, err := o.deps.Extractor.CrawlWithCustomSelectors(ctx, p.BaseURL, p.Selectors, crawler.CustomSourceType(p.Name))
				if err != nil {
					return nil, err
				}
				return []crawler.ArticleRecord{rec}, nil
			},
		})
	}
	return o.runAll(ctx, units)
}

// CrawlCustomSites crawls operator-supplied URLs, tagging records custom_crawl.
func (o *Orchestrator) CrawlCustomSites(ctx context.Context, sites []CustomSite) ([]crawler.ArticleRecord, Summary) {
	units := make([]unit, 0, len(sites))
	for _, s := range sites {
		units = append(units, unit{
			kind:   KindCustom,
			target: s.URL,
			run: func(ctx context.Context) ([]crawler.ArticleRecord, error) {
				rec, err := o.deps.Extractor.CrawlWithCustomSelectors(ctx, s.URL, s.Selectors, crawler.SourceCustomCrawl)
				if err != nil {
					return nil, err
				}
				return []crawler.ArticleRecord{rec}, nil
			},
		})
	}
	return o.runAll(ctx, units)
}

func (o *Orchestrator) runAll(ctx context.Context, units []unit) ([]crawler.ArticleRecord, Summary) {
	start := time.Now()
	sink := newSink()
	o.dispatch(ctx, o.cfg.Workers, units, sink)
	return sink.finish(time.Since(start))
}

// dispatch runs units with at most limit in flight. Cancellation of ctx stops
// dispatching; units already started run to completion on a detached context.
func (o *Orchestrator) dispatch(ctx context.Context, limit int, units []unit, sink *sink) {
	var g errgroup.Group
	g.SetLimit(limit)
	for _, u := range units {
		if ctx.Err() != nil {
			o.logger.Warn("run canceled, skipping remaining units",
				zap.String("kind", string(u.kind)),
				zap.Error(ctx.Err()))
			break
		}
		g.Go(func() error {
			sink.add(o.execute(ctx, u))
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) processSeed(ctx context.Context, seed string, sink *sink) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.UnitTimeout)
	sitemaps := o.deps.Discoverer.DiscoverSitemaps(dctx, seed)
	cancel()

	units := make([]unit, 0, len(sitemaps)+1)
	for _, sm := range sitemaps {
		units = append(units, unit{
			kind:   KindSitemap,
			target: sm,
			run: func(ctx context.Context) ([]crawler.ArticleRecord, error) {
				return o.harvestSitemap(ctx, sm)
			},
		})
	}
	sink.sitemaps(len(sitemaps))
	if o.cfg.CrawlHTML {
		units = append(units, unit{
			kind:   KindHTML,
			target: seed,
			run: func(ctx context.Context) ([]crawler.ArticleRecord, error) {
				return o.harvestPage(ctx, seed)
			},
		})
	}
	o.dispatch(ctx, o.cfg.SitemapWorkers, units, sink)
}

func (o *Orchestrator) harvestSitemap(ctx context.Context, sitemapURL string) ([]crawler.ArticleRecord, error) {
	body, err := o.fetchSitemap(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	records := sitemap.ExtractNewsData(body, o.logger)
	if len(records) == 0 && o.cfg.FollowSitemapIndex {
		for _, child := range sitemap.ExtractSitemapIndex(body) {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			childBody, err := o.fetchSitemap(ctx, child)
			if err != nil {
				o.logger.Warn("child sitemap failed", zap.String("sitemap", child), zap.Error(err))
				continue
			}
			records = append(records, sitemap.ExtractNewsData(childBody, o.logger)...)
		}
	}
	observeExtracted(records)
	return records, nil
}

func (o *Orchestrator) fetchSitemap(ctx context.Context, sitemapURL string) ([]byte, error) {
	resp, err := o.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: sitemapURL})
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	o.archive(ctx, sitemapURL, resp.Body)
	return resp.Body, nil
}

func (o *Orchestrator) harvestPage(ctx context.Context, pageURL string) ([]crawler.ArticleRecord, error) {
	if o.cfg.RespectRobots && o.deps.Robots != nil && !o.deps.Robots.Allowed(ctx, pageURL) {
		return nil, ErrDisallowed
	}
	var cfg selector.Config
	if o.cfg.UseProfiles && o.deps.Resolver != nil {
		var match string
		cfg, match = o.deps.Resolver.Resolve(pageURL)
		if match != "" {
			o.logger.Debug("selectors resolved", zap.String("url", pageURL), zap.String("match", match))
		}
	}
	rec, err := o.deps.Extractor.CrawlHTMLContent(ctx, pageURL, cfg)
	if err != nil {
		return nil, err
	}
	return []crawler.ArticleRecord{rec}, nil
}

// archive stores the raw body under <prefix>/<host>/<sha256>.xml. Failures are logged.
func (o *Orchestrator) archive(ctx context.Context, sourceURL string, body []byte) {
	if o.deps.Archive == nil {
		return
	}
	host, err := crawler.DomainOf(sourceURL)
	if err != nil {
		o.logger.Warn("archive skipped", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	sum, err := o.deps.Hasher.Hash(body)
	if err != nil {
		o.logger.Warn("archive hash failed", zap.String("url", sourceURL), zap.Error(err))
		return
	}
	path := ArchivePath(o.cfg.ArchivePrefix, host, sum)
	uri, err := o.deps.Archive.PutObject(ctx, path, "application/xml", bytes.NewReader(body))
	if err != nil {
		o.logger.Warn("archive write failed", zap.String("url", sourceURL), zap.String("path", path), zap.Error(err))
		return
	}
	o.logger.Debug("sitemap archived", zap.String("url", sourceURL), zap.String("uri", uri))
}

// ArchivePath builds the object name for an archived sitemap body.
func ArchivePath(prefix, host, digest string) string {
	prefix = strings.Trim(prefix, "/")
	host = strings.ReplaceAll(host, ":", "_")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.xml", host, digest)
	}
	return fmt.Sprintf("%s/%s/%s.xml", prefix, host, digest)
}

func observeExtracted(records []crawler.ArticleRecord) {
	counts := make(map[crawler.SourceType]int)
	for _, r := range records {
		counts[r.SourceType]++
	}
	for st, n := range counts {
		metrics.ObserveExtracted(string(st), n)
	}
}

type sink struct {
	mu      sync.Mutex
	records []crawler.ArticleRecord
	summary Summary
}

func newSink() *sink { return &sink{} }

func (s *sink) seed() {
	s.mu.Lock()
	s.summary.Seeds++
	s.mu.Unlock()
}

func (s *sink) sitemaps(n int) {
	s.mu.Lock()
	s.summary.Sitemaps += n
	s.mu.Unlock()
}

func (s *sink) add(res UnitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Units++
	switch res.Status() {
	case StatusFailed:
		s.summary.Failed++
		s.summary.Failures = append(s.summary.Failures, UnitResult{Kind: res.Kind, Target: res.Target, Err: res.Err, Duration: res.Duration})
	case StatusSkipped:
		s.summary.Skipped++
	}
	s.records = append(s.records, res.Records...)
	s.summary.Records += len(res.Records)
}

func (s *sink) finish(d time.Duration) ([]crawler.ArticleRecord, Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Duration = d
	return s.records, s.summary
}
