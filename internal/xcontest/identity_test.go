package xcontest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveID(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/world/en/pilots/detail:bob", r.URL.Path)
		w.Write([]byte(`<html><body><a href="/world/en/flights/search/?filter[pilot]=12345">flights</a></body></html>`))
	}))
	defer server.Close()

	resolver := NewResolver(newTestClient(t, server.URL), NewIDCache(0), testLogger(t))

	pilot := Pilot{Username: "bob"}
	id, err := resolver.ResolveID(context.Background(), &pilot)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)
	assert.Equal(t, int64(12345), pilot.SiteID)

	// second resolution is served from the cache
	other := Pilot{Username: "bob"}
	id, err = resolver.ResolveID(context.Background(), &other)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)
	assert.Equal(t, 1, requests)
}

func TestResolveIDNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>profile without any flight search link</body></html>`))
	}))
	defer server.Close()

	resolver := NewResolver(newTestClient(t, server.URL), NewIDCache(0), testLogger(t))

	pilot := Pilot{Username: "ghost"}
	_, err := resolver.ResolveID(context.Background(), &pilot)
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestIDCacheBound(t *testing.T) {
	cache := NewIDCache(2)
	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	assert.Equal(t, 2, cache.Len())
	id, ok := cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

func TestIDCacheUnbounded(t *testing.T) {
	cache := NewIDCache(0)
	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)
	assert.Equal(t, 3, cache.Len())
}
