package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Reason explains why a record was dropped.
type Reason string

// Drop reasons.
const (
	ReasonInvalid   Reason = "invalid"
	ReasonDuplicate Reason = "duplicate"
	ReasonStale     Reason = "stale"
)

// Decision is the filter verdict for one record.
type Decision struct {
	Record crawler.ArticleRecord
	Admit  bool
	Reason Reason
}

// IsValidPublicationDate reports whether raw is an ISO-8601 timestamp no
// later than now.
func IsValidPublicationDate(raw string, now time.Time) bool {
	ts, err := crawler.ParseTimestamp(raw)
	if err != nil {
		return false
	}
	return !ts.After(now)
}

// InferSourceType tags records that arrive without provenance.
func InferSourceType(rec crawler.ArticleRecord) crawler.SourceType {
	if rec.SourceType != "" {
		return rec.SourceType
	}
	if strings.TrimSpace(rec.PublicationName) != "" && strings.TrimSpace(rec.Title) != "" {
		return crawler.SourceSitemapNews
	}
	return crawler.SourceHTMLContent
}

// Filter decides which records are new. Decisions come back in input order.
// Store errors count as "not present".
func (p *Pipeline) Filter(ctx context.Context, records []crawler.ArticleRecord) []Decision {
	decisions := make([]Decision, len(records))
	pending := make([]int, 0, len(records))
	for i, rec := range records {
		rec.SourceType = InferSourceType(rec)
		decisions[i] = Decision{Record: rec}
		if rec.IdentifyingURL() == "" {
			decisions[i].Reason = ReasonInvalid
			continue
		}
		pending = append(pending, i)
	}

	now := p.now()
	domains := &domainMemo{store: p.store, logger: p.logger, slots: make(map[string]*domainSlot)}
	var g errgroup.Group
	g.SetLimit(p.cfg.FilterConcurrency)
	for _, i := range pending {
		g.Go(func() error {
			decisions[i] = p.decide(ctx, decisions[i].Record, now, domains)
			return nil
		})
	}
	_ = g.Wait()

	dedupAdmitted(decisions)

	for _, d := range decisions {
		if !d.Admit {
			metrics.ObserveDropped(string(d.Reason))
			p.logger.Debug("record dropped",
				zap.String("url", d.Record.IdentifyingURL()),
				zap.String("reason", string(d.Reason)))
		}
	}
	return decisions
}

// dedupAdmitted keeps one admitted record per URL. A sitemap_news copy beats
// any other; otherwise the earliest wins.
func dedupAdmitted(decisions []Decision) {
	keep := make(map[string]int, len(decisions))
	for i, d := range decisions {
		if !d.Admit {
			continue
		}
		url := d.Record.IdentifyingURL()
		j, ok := keep[url]
		if !ok {
			keep[url] = i
			continue
		}
		loser := i
		if d.Record.SourceType == crawler.SourceSitemapNews && decisions[j].Record.SourceType != crawler.SourceSitemapNews {
			keep[url] = i
			loser = j
		}
		decisions[loser].Admit = false
		decisions[loser].Reason = ReasonDuplicate
	}
}

func (p *Pipeline) decide(ctx context.Context, rec crawler.ArticleRecord, now time.Time, domains *domainMemo) Decision {
	url := rec.IdentifyingURL()
	exists, err := p.store.Exists(ctx, url)
	if err != nil {
		p.logger.Warn("existence check failed; treating as new", zap.String("url", url), zap.Error(err))
		exists = false
	}
	if exists {
		return Decision{Record: rec, Reason: ReasonDuplicate}
	}
	if !rec.SourceType.IsSitemap() {
		return Decision{Record: rec, Admit: true}
	}

	domain, err := crawler.DomainOf(url)
	if err != nil {
		return Decision{Record: rec, Reason: ReasonInvalid}
	}
	if !domains.known(ctx, domain) {
		return Decision{Record: rec, Admit: true}
	}
	if !IsValidPublicationDate(rec.PublicationDate, now) {
		return Decision{Record: rec, Reason: ReasonStale}
	}
	return Decision{Record: rec, Admit: true}
}

// domainMemo answers DomainHasAnyArticle once per domain for a Filter call.
type domainMemo struct {
	store  crawler.ArticleStore
	logger *zap.Logger

	mu    sync.Mutex
	slots map[string]*domainSlot
}

type domainSlot struct {
	once  sync.Once
	found bool
}

func (m *domainMemo) known(ctx context.Context, domain string) bool {
	m.mu.Lock()
	s, ok := m.slots[domain]
	if !ok {
		s = &domainSlot{}
		m.slots[domain] = s
	}
	m.mu.Unlock()

	s.once.Do(func() {
		found, err := m.store.DomainHasAnyArticle(ctx, domain)
		if err != nil {
			m.logger.Warn("domain check failed; treating as unseen", zap.String("domain", domain), zap.Error(err))
			return
		}
		s.found = found
	})
	return s.found
}
