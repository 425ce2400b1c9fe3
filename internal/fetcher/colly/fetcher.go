// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/policy/ratelimit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	InsecureSkipVerify bool
	MaxBodyBytes       int
}

// Browser-like request headers. Some publishers serve bots a stripped page.
var browserHeaders = http.Header{
	"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language":           {"en-US,en;q=0.5"},
	"Accept-Encoding":           {"gzip"},
	"Connection":                {"keep-alive"},
	"Upgrade-Insecure-Requests": {"1"},
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Deadlines come from the per-attempt context.
	c.SetRequestTimeout(0)
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger.Named("fetcher"),
		sleep:         sleepContext,
	}
}

// Fetch GETs request.URL, retrying non-200 answers and transport errors with
// exponential backoff until the attempt budget is spent.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	maxAttempts := request.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = f.cfg.MaxRetries
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	policy := crawler.NewExponentialRetryPolicy(maxAttempts, f.cfg.BackoffBase, 0)

	start := time.Now()
	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			lastErr = err
			break
		}

		resp, err := f.attempt(ctx, request, timeout, start)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Attempts = attempts
			metrics.ObserveFetchAttempt(request.URL, "ok", len(resp.Body))
			metrics.ObserveFetch("ok", time.Since(start))
			return resp, nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		lastErr = err
		lastStatus = resp.StatusCode
		metrics.ObserveFetchAttempt(request.URL, "error", 0)
		f.logger.Debug("fetch attempt failed",
			zap.String("url", request.URL),
			zap.Int("attempt", attempts),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)

		if !policy.ShouldRetry(err, attempt) {
			break
		}
		if err := f.sleep(ctx, policy.Backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	metrics.ObserveFetch("error", time.Since(start))
	fetchErr := &crawler.FetchError{
		URL:        request.URL,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Err:        lastErr,
	}
	f.logger.Error("fetch failed",
		zap.String("url", request.URL),
		zap.Int("attempts", attempts),
		zap.Int("status", lastStatus),
		zap.Error(lastErr),
	)
	return crawler.FetchResponse{StatusCode: lastStatus}, fetchErr
}

func (f *Fetcher) attempt(
	ctx context.Context,
	request crawler.FetchRequest,
	timeout time.Duration,
	start time.Time,
) (crawler.FetchResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(attemptCtx, request, start, &result, &fetchErr)
	if err := f.runCollector(attemptCtx, collector, request.URL, &fetchErr); err != nil {
		if attemptCtx.Err() != nil {
			// The visit goroutine may still be writing result.
			return crawler.FetchResponse{}, err
		}
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	for key, values := range browserHeaders {
		r.Headers.Set(key, values[0])
	}
	for key, values := range request.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		//nolint:gosec // several publishers serve broken certificate chains
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
