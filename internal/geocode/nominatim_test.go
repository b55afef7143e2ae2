package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

func TestLookupReturnsDisplayName(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "PharmacyFinder/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "34.034900", r.URL.Query().Get("lat"))
		assert.Equal(t, "-4.976400", r.URL.Query().Get("lon"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"Avenue Hassan II, Fès, Maroc"}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, CacheEnabled: true})

	addr, err := c.Lookup(context.Background(), 34.0349, -4.9764)
	require.NoError(t, err)
	assert.Equal(t, "Avenue Hassan II, Fès, Maroc", addr)

	addr, err = c.Lookup(context.Background(), 34.0349, -4.9764)
	require.NoError(t, err)
	assert.Equal(t, "Avenue Hassan II, Fès, Maroc", addr)
	assert.Equal(t, int32(1), hits.Load(), "second lookup must come from cache")
}

func TestLookupWithoutCacheHitsServerEachTime(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"display_name":"somewhere"}`))
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL})
	for i := 0; i < 2; i++ {
		_, err := c.Lookup(context.Background(), 1, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestLookupTimeoutIsLookupError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{URL: srv.URL, Timeout: 50 * time.Millisecond})

	started := time.Now()
	_, err := c.Lookup(context.Background(), 34.0349, -4.9764)
	require.Error(t, err)
	assert.Equal(t, domain.KindLookup, domain.KindOf(err))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestLookupNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Options{URL: srv.URL}).Lookup(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, domain.KindLookup, domain.KindOf(err))
}

func TestLookupEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	_, err := New(Options{URL: srv.URL}).Lookup(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL})
	for i := 0; i < 3; i++ {
		_, err := c.Lookup(context.Background(), 1, 2)
		require.Error(t, err)
	}
	_, err := c.Lookup(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), hits.Load())
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "A")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCacheEvictsWhenFull(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "A")
	now = now.Add(time.Second)
	c.Set("b", "B")
	now = now.Add(time.Second)
	c.Set("c", "C")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok, "entry closest to expiry is evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)
}
