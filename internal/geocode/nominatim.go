// Package geocode turns coordinates into display addresses through a
// Nominatim reverse-geocoding endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
)

const (
	DefaultURL       = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent = "PharmacyFinder/1.0"
	DefaultTimeout   = 5 * time.Second
	defaultCacheSize = 4096
)

// ErrNoAddress is returned when the service answers without a display name.
var ErrNoAddress = errors.New("no address for coordinate")

// Options configures a Client.
type Options struct {
	URL       string
	UserAgent string
	// Timeout bounds each request. Lookups are never retried.
	Timeout      time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Metrics      *metrics.Collector
}

// Client performs reverse lookups. It is safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	cache     *ttlCache
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// New builds a client from opts, filling in defaults.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger := opts.Logger.With("component", "geocode")

	c := &Client{
		baseURL:   opts.URL,
		userAgent: opts.UserAgent,
		http:      opts.HTTPClient,
		logger:    logger,
		metrics:   opts.Metrics,
	}
	if opts.CacheEnabled {
		c.cache = newTTLCache(defaultCacheSize, opts.CacheTTL)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nominatim",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// An empty answer is not a service fault.
			return err == nil || errors.Is(err, ErrNoAddress)
		},
	})
	return c
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Lookup returns the display address of (lat, lon). Failures are
// domain.KindLookup errors; callers substitute a placeholder.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if c.cache != nil {
		if addr, ok := c.cache.Get(key); ok {
			c.metrics.ObserveGeocode("hit")
			return addr, nil
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, lat, lon)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "open"
		}
		c.metrics.ObserveGeocode(outcome)
		return "", domain.NewError(domain.KindLookup, "reverse geocode", err)
	}

	addr := res.(string)
	c.metrics.ObserveGeocode("miss")
	if c.cache != nil {
		c.cache.Set(key, addr)
	}
	return addr, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse geocoder url: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "18")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build reverse request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse request: unexpected status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode reverse response: %w", err)
	}
	if body.DisplayName == "" {
		if body.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrNoAddress, body.Error)
		}
		return "", ErrNoAddress
	}
	return body.DisplayName, nil
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
}
