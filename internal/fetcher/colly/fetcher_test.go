package collyfetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/crawler"
)

func newTestFetcher(cfg Config) (*Fetcher, *[]time.Duration) {
	f := New(cfg, nil, zap.NewNop())
	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return f, &sleeps
}

func TestFetchSuccessSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotUA, gotLang, gotUpgrade string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotUpgrade = r.Header.Get("Upgrade-Insecure-Requests")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{UserAgent: "browser-agent"})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
	assert.Equal(t, 1, resp.Attempts)
	assert.Empty(t, *sleeps)
	assert.Equal(t, "browser-agent", gotUA)
	assert.Equal(t, "en-US,en;q=0.5", gotLang)
	assert.Equal(t, "1", gotUpgrade)
}

func TestFetchRetriesWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{BackoffBase: time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	assert.Equal(t, "finally", string(resp.Body))
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL, MaxRetries: 3})
	require.Error(t, err)
	require.ErrorIs(t, err, crawler.ErrFetchFailed)

	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, *sleeps, 2)
}

func TestFetchSingleAttempt(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, sleeps := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL, MaxRetries: 1})
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, *sleeps)
}

func TestFetchTransportErrorIsRetried(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	f, sleeps := newTestFetcher(Config{MaxRetries: 2})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: target})
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	assert.Len(t, *sleeps, 1)
}

func TestFetchCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Config{BackoffBase: time.Hour}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL, MaxRetries: 3})
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchDecodesGzipBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/xml")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<urlset></urlset>"))
		_ = gz.Close()
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "<urlset></urlset>", string(resp.Body))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}, "Accept-Language": {"hi-IN"}},
	}
	start := time.Unix(0, 0)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	assert.Equal(t, "hi-IN", collyReq.Headers.Get("Accept-Language"))
	assert.Equal(t, "gzip", collyReq.Headers.Get("Accept-Encoding"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusTeapot}, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
	assert.Equal(t, http.StatusTeapot, result.StatusCode)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
