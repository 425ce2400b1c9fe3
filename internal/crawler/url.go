package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DomainOf returns the lowercased host (with port, if any) of rawURL.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host: %w", rawURL, ErrValidationFailed)
	}
	return strings.ToLower(u.Host), nil
}

// RobotsURL returns {scheme}://{host}/robots.txt for rawURL.
func RobotsURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, ErrValidationFailed)
	}
	return fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host), nil
}

// SameHost reports whether two URLs share a host (including port).
func SameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}
