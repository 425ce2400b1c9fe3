package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Kind names the type of work a unit performs.
type Kind string

// Unit kinds.
const (
	KindSitemap Kind = "sitemap"
	KindHTML    Kind = "html"
	KindProfile Kind = "profile"
	KindCustom  Kind = "custom"
)

// Unit statuses reported to metrics.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// UnitResult is the outcome of one unit of work. A failed unit carries Err
// and no records.
type UnitResult struct {
	Kind     Kind
	Target   string
	Records  []crawler.ArticleRecord
	Err      error
	Duration time.Duration
}

// Status classifies the result.
func (r UnitResult) Status() string {
	switch {
	case r.Err == nil:
		return StatusOK
	case errors.Is(r.Err, ErrDisallowed):
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Summary aggregates the unit results of one Run.
type Summary struct {
	Seeds    int
	Sitemaps int
	Units    int
	Failed   int
	Skipped  int
	Records  int
	Duration time.Duration
	Failures []UnitResult
}

type unit struct {
	kind   Kind
	target string
	run    func(ctx context.Context) ([]crawler.ArticleRecord, error)
}

// execute runs u on a context detached from the run's cancellation and
// bounded by the unit timeout.
func (o *Orchestrator) execute(ctx context.Context, u unit) UnitResult {
	start := time.Now()
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.UnitTimeout)
	defer cancel()

	var (
		records []crawler.ArticleRecord
		err     error
	)
	if o.cfg.Mode == ModeIsolated {
		records, err = isolate(uctx, u.run)
	} else {
		records, err = guard(uctx, u.run)
	}
	if err != nil {
		records = nil
	}
	res := UnitResult{Kind: u.kind, Target: u.target, Records: records, Err: err, Duration: time.Since(start)}
	metrics.ObserveUnit(string(u.kind), res.Status())

	fields := []zap.Field{
		zap.String("kind", string(u.kind)),
		zap.String("target", u.target),
		zap.Int("records", len(records)),
		zap.Duration("duration", res.Duration),
	}
	switch res.Status() {
	case StatusFailed:
		o.logger.Warn("unit failed", append(fields, zap.Error(err))...)
	case StatusSkipped:
		o.logger.Info("unit skipped", append(fields, zap.Error(err))...)
	default:
		o.logger.Info("unit finished", fields...)
	}
	return res
}

type outcome struct {
	records []crawler.ArticleRecord
	err     error
}

// isolate runs fn in its own goroutine and stops waiting once ctx expires.
// An abandoned goroutine's result is discarded.
// guard runs fn inline, turning a panic into an error.
func guard(ctx context.Context, fn func(context.Context) ([]crawler.ArticleRecord, error)) (records []crawler.ArticleRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			records, err = nil, fmt.Errorf("unit panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func isolate(ctx context.Context, fn func(context.Context) ([]crawler.ArticleRecord, error)) ([]crawler.ArticleRecord, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("unit panicked: %v", p)}
			}
		}()
		records, err := fn(ctx)
		done <- outcome{records: records, err: err}
	}()
	select {
	case out := <-done:
		return out.records, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("unit abandoned: %w", ctx.Err())
	}
}
