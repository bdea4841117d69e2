package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks URLs whose host cannot be parsed.
var ErrInvalidURL = errors.New("invalid url")

// NormalizeURL canonicalizes a tenant-supplied URL: trims whitespace,
// defaults the scheme to https, rewrites http to https, lowercases the
// host, and strips a leading www. Path, query, and fragment are kept.
// Idempotent: NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidURL, raw)
	}
	u.Host = host
	return u.String(), nil
}

// ResolveURL interprets rel relative to base, normalizing base first so
// that ResolveURL(rel, base) == ResolveURL(rel, NormalizeURL(base)).
func ResolveURL(rel, base string) (string, error) {
	nb, err := NormalizeURL(base)
	if err != nil {
		return "", err
	}
	bu, err := url.Parse(nb)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	ru, err := url.Parse(strings.TrimSpace(rel))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return bu.ResolveReference(ru).String(), nil
}

// Hostname extracts the lowercased host (without port) for rate limiting.
func Hostname(rawurl string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawurl)
	}
	return strings.ToLower(u.Hostname()), nil
}
