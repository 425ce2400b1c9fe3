// Package ingest deduplicates, enriches and persists harvested records.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// Config tunes the ingestion phases.
type Config struct {
	FilterConcurrency int
	EnrichImages      bool
	ImageTimeout      time.Duration
	ImageConcurrency  int
	Topic             string
}

// Result summarises one Run.
type Result struct {
	Received      int
	Admitted      int
	Dropped       map[Reason]int
	ImagesFound   int
	Inserted      int
	FailedInserts int
	Published     int
	Stored        []crawler.ArticleRecord
}

// Pipeline runs Filter, Enrich and Persist in that order.
type Pipeline struct {
	store     crawler.ArticleStore
	fetcher   crawler.Fetcher
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// Deps are the Pipeline's collaborators. Only Store is required.
type Deps struct {
	Store     crawler.ArticleStore
	Fetcher   crawler.Fetcher
	Publisher crawler.Publisher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Logger    *zap.Logger
}

// New builds a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("article store is required")
	}
	if cfg.FilterConcurrency <= 0 {
		cfg.FilterConcurrency = 8
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		ids:       deps.IDs,
		cfg:       cfg,
		logger:    logger.Named("ingest"),
	}, nil
}

// Run filters records, enriches the admitted ones and persists them.
// It fails only when ctx ends before anything is written.
func (p *Pipeline) Run(ctx context.Context, records []crawler.ArticleRecord) (Result, error) {
	res := Result{Received: len(records), Dropped: make(map[Reason]int)}

	decisions := p.Filter(ctx, records)
	admitted := make([]crawler.ArticleRecord, 0, len(decisions))
	for _, d := range decisions {
		if d.Admit {
			admitted = append(admitted, d.Record)
			continue
		}
		res.Dropped[d.Reason]++
	}
	res.Admitted = len(admitted)
	p.logger.Info("filter complete",
		zap.Int("received", res.Received),
		zap.Int("admitted", res.Admitted),
		zap.Int("duplicate", res.Dropped[ReasonDuplicate]),
		zap.Int("stale", res.Dropped[ReasonStale]),
		zap.Int("invalid", res.Dropped[ReasonInvalid]),
	)
	if len(admitted) == 0 {
		return res, nil
	}

	admitted, res.ImagesFound = p.Enrich(ctx, admitted)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("ingest canceled before persist: %w", err)
	}

	res.Stored, res.FailedInserts = p.Persist(ctx, admitted)
	res.Inserted = len(res.Stored)
	res.Published = p.Publish(ctx, res.Stored)
	return res, nil
}

func (p *Pipeline) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
