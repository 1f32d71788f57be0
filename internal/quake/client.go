package quake

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultFeedURL lists every earthquake of the past 30 days.
const DefaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_month.geojson"

// PayloadCache stores raw upstream documents. A nil value from Get is a miss.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client loads the earthquake feed and the plate overlay.
type Client struct {
	httpClient *http.Client
	cache      PayloadCache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache keeps a copy of every successful download and serves it when
// the upstream request fails.
func WithCache(cache PayloadCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "quake_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFeed downloads and parses the earthquake feed at url.
func (c *Client) FetchFeed(ctx context.Context, url string) (*Feed, error) {
	return fetch(ctx, c, url, ParseFeed)
}

// LoadPlates reads the plate overlay from a local path or an http(s) URL.
func (c *Client) LoadPlates(ctx context.Context, source string) ([]Plate, error) {
	return fetch(ctx, c, source, ParsePlates)
}

// fetch loads and parses source. Only payloads that parse are cached, and
// the cached copy is used when the download or its parse fails.
func fetch[T any](ctx context.Context, c *Client, source string, parse func([]byte) (T, error)) (T, error) {
	var zero T
	if !isRemote(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return zero, fmt.Errorf("%w: reading %s: %w", ErrFetchFailure, source, err)
		}
		return parse(data)
	}

	data, err := c.get(ctx, source)
	if err == nil {
		v, perr := parse(data)
		if perr == nil {
			c.store(ctx, source, data)
			return v, nil
		}
		err = perr
	}

	if cached := c.cached(ctx, source); cached != nil {
		if v, cerr := parse(cached); cerr == nil {
			c.logger.Warn("upstream failed, serving cached payload", "url", source, "error", err)
			return v, nil
		}
	}
	return zero, err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrFetchFailure, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrFetchFailure, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailure, err)
	}

	c.logger.Debug("fetched", "url", url, "size_bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

func (c *Client) store(ctx context.Context, key string, data []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
	}
}

func (c *Client) cached(ctx context.Context, key string) []byte {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	return data
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
