// Package fetch downloads single files over HTTP(S).
//
// Redirects are followed up to a fixed number of hops and every download is
// bounded by a timeout. There is no retry: a failed attempt is returned to
// the caller as-is.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/grammardist/internal/log"
)

const (
	// DefaultTimeout bounds one download including redirects and body transfer.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxRedirects is the redirect hop cap.
	DefaultMaxRedirects = 5
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the hop cap.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrTimeout is returned when a download exceeds its timeout.
	ErrTimeout = errors.New("download timed out")
)

// StatusError is returned for a final response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Client downloads files.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxRedirects int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-download timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRedirects sets the redirect hop cap.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		c.maxRedirects = n
	}
}

// WithTransport sets the HTTP transport.
// Used primarily for testing.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// New creates a new Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{},
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.CheckRedirect = c.checkRedirect
	return c
}

// checkRedirect allows at most maxRedirects hops. via holds the requests
// already sent, so the n-th redirect sees len(via) == n.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("%w: stopped after %d hops at %s", ErrTooManyRedirects, c.maxRedirects, req.URL)
	}
	log.Trace("following redirect", "to", req.URL.String(), "hop", len(via))
	return nil
}

// Download fetches url into dest. The body is written to a temp file next to
// dest and renamed into place, so dest is either complete or untouched.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := c.download(ctx, url, dest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: GET %s after %s", ErrTimeout, url, c.timeout)
		}
		return err
	}

	log.FromContext(ctx).Debug("downloaded file", "url", url, "dest", dest, "bytes", n, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Client) download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename into %s: %w", dest, err)
	}
	return n, nil
}
