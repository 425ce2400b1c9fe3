// Package memory holds in-process stores used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// ArticleStore keeps records in a map keyed by identifying URL.
type ArticleStore struct {
	mu      sync.RWMutex
	records map[string]crawler.ArticleRecord
	order   []string
	domains map[string]int
}

// NewArticleStore returns an empty store.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		records: make(map[string]crawler.ArticleRecord),
		domains: make(map[string]int),
	}
}

// Exists reports whether url is stored.
func (s *ArticleStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[url]
	return ok, nil
}

// DomainHasAnyArticle reports whether any stored record belongs to domain.
func (s *ArticleStore) DomainHasAnyArticle(_ context.Context, domain string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domains[domain] > 0, nil
}

// InsertMany stores every record or none of them.
func (s *ArticleStore) InsertMany(_ context.Context, records []crawler.ArticleRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	var failures []crawler.RecordError
	for _, rec := range records {
		url := rec.IdentifyingURL()
		if url == "" {
			failures = append(failures, crawler.RecordError{Err: crawler.ErrValidationFailed})
			continue
		}
		if _, err := crawler.DomainOf(url); err != nil {
			failures = append(failures, crawler.RecordError{URL: url, Err: err})
			continue
		}
		if _, ok := s.records[url]; ok {
			failures = append(failures, crawler.RecordError{URL: url, Err: crawler.ErrDuplicate})
			continue
		}
		if _, ok := seen[url]; ok {
			failures = append(failures, crawler.RecordError{URL: url, Err: crawler.ErrDuplicate})
			continue
		}
		seen[url] = struct{}{}
	}
	if len(failures) > 0 {
		return 0, &crawler.BulkInsertError{Failures: failures}
	}
	for _, rec := range records {
		s.put(rec)
	}
	return len(records), nil
}

// InsertOne stores a single record.
func (s *ArticleStore) InsertOne(_ context.Context, record crawler.ArticleRecord) error {
	url := record.IdentifyingURL()
	if _, err := crawler.DomainOf(url); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[url]; ok {
		return fmt.Errorf("insert %s: %w", url, crawler.ErrDuplicate)
	}
	s.put(record)
	return nil
}

func (s *ArticleStore) put(rec crawler.ArticleRecord) {
	url := rec.IdentifyingURL()
	domain, _ := crawler.DomainOf(url)
	s.records[url] = rec
	s.order = append(s.order, url)
	s.domains[domain]++
}

// Records returns stored records in insertion order.
func (s *ArticleStore) Records() []crawler.ArticleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ArticleRecord, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.records[url])
	}
	return out
}

// Len returns the number of stored records.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
