package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyingURLPrefersLocation(t *testing.T) {
	t.Parallel()

	rec := ArticleRecord{LocationURL: " https://a.example/x ", PageURL: "https://b.example/y"}
	assert.Equal(t, "https://a.example/x", rec.IdentifyingURL())

	rec = ArticleRecord{PageURL: "https://b.example/y"}
	assert.Equal(t, "https://b.example/y", rec.IdentifyingURL())

	assert.Empty(t, ArticleRecord{}.IdentifyingURL())
}

func TestSourceTypeIsSitemap(t *testing.T) {
	t.Parallel()

	assert.True(t, SourceSitemapNews.IsSitemap())
	assert.True(t, SourceSitemapRegular.IsSitemap())
	assert.False(t, SourceHTMLContent.IsSitemap())
	assert.False(t, SourceCustomCrawl.IsSitemap())
	assert.Equal(t, SourceType("custom_ndtv"), CustomSourceType("ndtv"))
}

func TestExponentialRetryPolicyBackoffDoubles(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, time.Second, 10*time.Second)
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 10*time.Second, p.Backoff(5))
}

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 0, 0)
	boom := errors.New("boom")
	assert.Equal(t, 3, p.MaxAttempts())
	assert.True(t, p.ShouldRetry(boom, 0))
	assert.True(t, p.ShouldRetry(boom, 1))
	assert.False(t, p.ShouldRetry(boom, 2), "third attempt is the last")
	assert.False(t, p.ShouldRetry(nil, 0))
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 0))
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	transport := errors.New("connection reset")
	err := error(&FetchError{URL: "https://example.com", Attempts: 3, Err: transport})
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, transport)

	statusOnly := error(&FetchError{URL: "https://example.com", Attempts: 2, StatusCode: 503})
	require.ErrorIs(t, statusOnly, ErrFetchFailed)
	assert.Contains(t, statusOnly.Error(), "status 503")
}

func TestBulkInsertErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := error(&BulkInsertError{Failures: []RecordError{{URL: "https://example.com/a", Err: ErrDuplicate}}})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "https://example.com/a")
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	domain, err := DomainOf("https://News.Example.com:8443/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "news.example.com:8443", domain)

	_, err = DomainOf("not a url")
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestRobotsURL(t *testing.T) {
	t.Parallel()

	got, err := RobotsURL("https://example.com/news/today?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/robots.txt", got)

	_, err = RobotsURL("example.com/news")
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	utc := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T09:30:00Z", utc(2024, 5, 1, 9, 30, 0)},
		{"2024-05-01T15:00:00+05:30", utc(2024, 5, 1, 9, 30, 0)},
		{"2024-05-01T15:00:00+0530", utc(2024, 5, 1, 9, 30, 0)},
		{"2024-05-01T09:30+00:00", utc(2024, 5, 1, 9, 30, 0)},
		{"2024-05-01T09:30:00", utc(2024, 5, 1, 9, 30, 0)},
		{" 2024-05-01 09:30:00 ", utc(2024, 5, 1, 9, 30, 0)},
		{"2024-05-01", utc(2024, 5, 1, 0, 0, 0)},
		{"20240501", utc(2024, 5, 1, 0, 0, 0)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	for _, bad := range []string{"", "yesterday", "01/05/2024"} {
		_, err := ParseTimestamp(bad)
		require.ErrorIs(t, err, ErrValidationFailed, bad)
	}
}
