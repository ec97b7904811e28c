package httpclient

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const (
	// DefaultTimeout bounds a whole request, including reading the body
	DefaultTimeout = 10 * time.Minute
	// DefaultUserAgent identifies the installer to release hosts
	DefaultUserAgent = "vsci"

	maxRedirects = 10
)

// Option configures a client built by New
type Option func(*http.Client, *transport)

// WithTimeout overrides DefaultTimeout. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client, _ *transport) {
		c.Timeout = d
	}
}

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(ua string) Option {
	return func(_ *http.Client, t *transport) {
		t.UserAgent = ua
	}
}

// WithBaseTransport sets the RoundTripper requests are finally sent through
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(_ *http.Client, t *transport) {
		t.Base = rt
	}
}

// New creates an HTTP client for release downloads.
// It follows redirects, sets a User-Agent and adds the GitHub token from GITHUB_TOKEN
// to requests for GitHub hosts.
func New(opts ...Option) *http.Client {
	t := &transport{
		Base:      http.DefaultTransport,
		UserAgent: DefaultUserAgent,
	}
	c := &http.Client{
		Timeout:       DefaultTimeout,
		CheckRedirect: checkRedirect,
	}
	for _, opt := range opts {
		opt(c, t)
	}
	c.Transport = t
	return c
}

// transport is a custom RoundTripper that adds headers to every request
type transport struct {
	Base      http.RoundTripper
	UserAgent string
}

// RoundTrip implements the http.RoundTripper interface
func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req2 := req.Clone(req.Context())

	if t.UserAgent != "" && req2.Header.Get("User-Agent") == "" {
		req2.Header.Set("User-Agent", t.UserAgent)
	}

	// The token is dropped when a redirect leaves GitHub, e.g. for the CDN hosting assets
	if isGitHubHost(req2.URL.Hostname()) {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			req2.Header.Set("Authorization", "Bearer "+token)
		}
	} else {
		req2.Header.Del("Authorization")
	}

	return t.Base.RoundTrip(req2)
}

// checkRedirect logs each hop and keeps the standard library's redirect limit
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}
	log.WithFields(log.Fields{
		"from": via[len(via)-1].URL.Redacted(),
		"to":   req.URL.Redacted(),
	}).Debug("following redirect")
	return nil
}

// isGitHubHost checks if a host belongs to GitHub
func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" ||
		strings.HasSuffix(host, ".github.com") ||
		strings.HasSuffix(host, ".githubusercontent.com")
}
