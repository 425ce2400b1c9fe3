package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Persist stores records with one bulk insert, falling back to one insert per
// record when the bulk insert fails. It returns the records that were stored.
func (p *Pipeline) Persist(ctx context.Context, records []crawler.ArticleRecord) ([]crawler.ArticleRecord, int) {
	if len(records) == 0 {
		return nil, 0
	}
	batch := p.assignIDs(records)

	n, err := p.store.InsertMany(ctx, batch)
	if err == nil {
		metrics.ObserveInserted(n)
		p.logger.Info("bulk insert complete", zap.Int("inserted", n))
		return batch, 0
	}
	var bulk *crawler.BulkInsertError
	if errors.As(err, &bulk) {
		p.logger.Warn("bulk insert failed; inserting individually",
			zap.Int("records", len(batch)),
			zap.Int("known_failures", len(bulk.Failures)),
			zap.Error(err))
	} else {
		p.logger.Warn("bulk insert failed; inserting individually", zap.Int("records", len(batch)), zap.Error(err))
	}

	stored := make([]crawler.ArticleRecord, 0, len(batch))
	failed := 0
	for _, rec := range batch {
		if err := p.store.InsertOne(ctx, rec); err != nil {
			failed++
			metrics.ObserveInsertFailure()
			p.logger.Error("insert failed", zap.String("url", rec.IdentifyingURL()), zap.Error(err))
			continue
		}
		stored = append(stored, rec)
	}
	metrics.ObserveInserted(len(stored))
	p.logger.Info("individual inserts complete", zap.Int("inserted", len(stored)), zap.Int("failed", failed))
	return stored, failed
}

func (p *Pipeline) assignIDs(records []crawler.ArticleRecord) []crawler.ArticleRecord {
	out := make([]crawler.ArticleRecord, len(records))
	copy(out, records)
	if p.ids == nil {
		return out
	}
	for i := range out {
		if out[i].ID != "" {
			continue
		}
		id, err := p.ids.NewID()
		if err != nil {
			p.logger.Warn("id generation failed; store will assign", zap.Error(err))
			continue
		}
		out[i].ID = id
	}
	return out
}

// Publish announces stored records on the configured topic. Failures are logged.
func (p *Pipeline) Publish(ctx context.Context, stored []crawler.ArticleRecord) int {
	if p.publisher == nil || p.cfg.Topic == "" {
		return 0
	}
	sent := 0
	for _, rec := range stored {
		payload := map[string]any{
			"id":               rec.ID,
			"url":              rec.IdentifyingURL(),
			"source_type":      string(rec.SourceType),
			"title":            rec.Title,
			"publication_date": rec.PublicationDate,
			"image_url":        rec.ImageURL,
			"timestamp":        p.now().Format(time.RFC3339),
		}
		id, err := p.publisher.Publish(ctx, p.cfg.Topic, payload)
		if err != nil {
			p.logger.Warn("publish failed", zap.String("url", rec.IdentifyingURL()), zap.Error(err))
			continue
		}
		sent++
		p.logger.Debug("article published", zap.String("url", rec.IdentifyingURL()), zap.String("message_id", id))
	}
	return sent
}
