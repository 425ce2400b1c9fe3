// Package robots fetches and caches robots.txt once per host for the duration of a run.
package robots

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

// Entry is the cached outcome of one robots.txt lookup.
type Entry struct {
	URL    string
	Body   []byte
	Status int
	Err    error
	data   *robotstxt.RobotsData
}

type slot struct {
	mu    sync.Mutex
	done  bool
	entry Entry
}

// Cache fetches robots.txt through a crawler.Fetcher and remembers the result per host.
type Cache struct {
	fetcher   crawler.Fetcher
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	hosts map[string]*slot
}

// NewCache builds an empty Cache.
func NewCache(fetcher crawler.Fetcher, userAgent string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger.Named("robots"),
		hosts:     make(map[string]*slot),
	}
}

// Lookup returns the robots.txt entry for the host of rawURL, fetching it on first use.
// Concurrent callers for the same host share one fetch. A lookup cut short by
// the caller's context is not remembered.
func (c *Cache) Lookup(ctx context.Context, rawURL string) (Entry, error) {
	robotsURL, err := crawler.RobotsURL(rawURL)
	if err != nil {
		return Entry{}, err
	}
	key := strings.ToLower(robotsURL)

	c.mu.Lock()
	s, ok := c.hosts[key]
	if !ok {
		s = &slot{}
		c.hosts[key] = s
	}
	c.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.entry, s.entry.Err
	}
	entry := c.load(ctx, robotsURL)
	if entry.Err != nil && (ctx.Err() != nil || interrupted(entry.Err)) {
		return entry, entry.Err
	}
	s.entry, s.done = entry, true
	return entry, entry.Err
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) load(ctx context.Context, robotsURL string) Entry {
	entry := Entry{URL: robotsURL}
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: robotsURL})
	if err != nil {
		entry.Err = fmt.Errorf("fetch robots.txt: %w", err)
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			entry.Status = fetchErr.StatusCode
		}
		return entry
	}
	entry.Body = resp.Body
	entry.Status = resp.StatusCode
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		c.logger.Debug("robots.txt unparsable; directives ignored", zap.String("url", robotsURL), zap.Error(err))
		return entry
	}
	entry.data = data
	return entry
}

// Allowed reports whether rawURL may be fetched. Lookup failures and
// unparsable files allow access.
func (c *Cache) Allowed(ctx context.Context, rawURL string) bool {
	entry, err := c.Lookup(ctx, rawURL)
	if err != nil {
		c.logger.Warn("robots unavailable; allowing access", zap.String("url", rawURL), zap.Error(err))
		return true
	}
	if entry.data == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group := entry.data.FindGroup(c.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}
