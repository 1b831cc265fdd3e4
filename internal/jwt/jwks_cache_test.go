package jwt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/proctoken/internal/cache"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWKCache_MaterialIsFetchedOnce(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", time.Now().Add(time.Hour))
	f := newFakeFetcher().withMaterial("kid-1", km.PublicMaterial())
	c := NewJWKCache(f, nil)

	e1 := c.Get(context.Background(), "kid-1")
	e2 := c.Get(context.Background(), "kid-1")
	assert.Equal(t, EntryMaterial, e1.State)
	assert.Equal(t, e1, e2)
	assert.Equal(t, 1, f.count("kid-1"))
}

func TestJWKCache_ClientErrorIsCachedAsLookupFailed(t *testing.T) {
	f := newFakeFetcher().withFailure("kid-404", 404, keyregistry.FailureNotFound)
	c := NewJWKCache(f, nil)

	for i := 0; i < 3; i++ {
		e := c.Get(context.Background(), "kid-404")
		assert.Equal(t, EntryLookupFailed, e.State)
		assert.Equal(t, 404, e.StatusCode)
	}
	assert.Equal(t, 1, f.count("kid-404"))
}

func TestJWKCache_ServerErrorIsNotCached(t *testing.T) {
	f := newFakeFetcher().withFailure("kid-5xx", 503, keyregistry.FailureServerError)
	c := NewJWKCache(f, nil)

	assert.Equal(t, EntryUnavailable, c.Get(context.Background(), "kid-5xx").State)
	assert.Equal(t, EntryUnavailable, c.Get(context.Background(), "kid-5xx").State)
	assert.Equal(t, 2, f.count("kid-5xx"))
	assert.Equal(t, 0, c.Len())
}

func TestJWKCache_UnavailableIsNotCached(t *testing.T) {
	f := newFakeFetcher().withFailure("kid-x", 0, keyregistry.FailureUnavailable)
	c := NewJWKCache(f, nil)

	c.Get(context.Background(), "kid-x")
	c.Get(context.Background(), "kid-x")
	assert.Equal(t, 2, f.count("kid-x"))
}

func TestJWKCache_MarkExpiredIsTerminal(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", time.Now().Add(time.Hour))
	f := newFakeFetcher().withMaterial("kid-1", km.PublicMaterial())
	c := NewJWKCache(f, nil)

	c.MarkExpired("kid-1")
	for i := 0; i < 3; i++ {
		assert.Equal(t, EntryExpired, c.Get(context.Background(), "kid-1").State)
	}
	assert.Equal(t, 0, f.count("kid-1"))
}

func TestJWKCache_StoreSkipsRegistry(t *testing.T) {
	f := newFakeFetcher()
	c := NewJWKCache(f, nil)
	c.Store("kid-dev", []byte(`{"kty":"RSA"}`))

	e := c.Get(context.Background(), "kid-dev")
	assert.Equal(t, EntryMaterial, e.State)
	assert.Equal(t, 0, f.count("kid-dev"))
}

func TestJWKCache_ConcurrentMissesCollapse(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", time.Now().Add(time.Hour))
	f := newFakeFetcher().withMaterial("kid-1", km.PublicMaterial())
	f.delay = 50 * time.Millisecond
	c := NewJWKCache(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, EntryMaterial, c.Get(context.Background(), "kid-1").State)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.count("kid-1"))
}

func TestJWKCache_SharedTier(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewMemory("test")
	km := testKeyModel(t, 0, "kid-1", "alpha", time.Now().Add(time.Hour))

	// nodo A resuelve contra el registry y publica en el tier compartido
	fa := newFakeFetcher().withMaterial("kid-1", km.PublicMaterial())
	a := NewJWKCache(fa, shared)
	require.Equal(t, EntryMaterial, a.Get(ctx, "kid-1").State)
	ok, err := shared.Exists(ctx, sharedKeyPrefix+"kid-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// nodo B lo encuentra sin llamar al registry
	fb := newFakeFetcher()
	b := NewJWKCache(fb, shared)
	e := b.Get(ctx, "kid-1")
	assert.Equal(t, EntryMaterial, e.State)
	assert.Equal(t, km.PublicMaterial(), e.Material)
	assert.Equal(t, 0, fb.count("kid-1"))

	// los sentinels no se comparten
	fa.withFailure("kid-404", 404, keyregistry.FailureNotFound)
	a.Get(ctx, "kid-404")
	ok, _ = shared.Exists(ctx, sharedKeyPrefix+"kid-404")
	assert.False(t, ok)

	// expired borra la copia compartida
	a.MarkExpired("kid-1")
	ok, _ = shared.Exists(ctx, sharedKeyPrefix+"kid-1")
	assert.False(t, ok)
}

func TestJWKCache_SharedTierSkipsExpiredMaterial(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewMemory("")
	km := testKeyModel(t, 0, "kid-old", "alpha", time.Now().Add(-time.Minute))
	c := NewJWKCache(newFakeFetcher().withMaterial("kid-old", km.PublicMaterial()), shared)

	assert.Equal(t, EntryMaterial, c.Get(ctx, "kid-old").State)
	ok, _ := shared.Exists(ctx, sharedKeyPrefix+"kid-old")
	assert.False(t, ok)
}

func TestJWKCache_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	km := testKeyModel(t, 0, "kid-1", "alpha", time.Now().Add(time.Hour))
	f := newFakeFetcher().withMaterial("kid-1", km.PublicMaterial())
	f.delay = 100 * time.Millisecond
	c := NewJWKCache(f, nil)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan CacheEntry, 1)
	go func() { firstDone <- c.Get(first, "kid-1") }()

	// el segundo caller se suma al fetch en vuelo
	time.Sleep(10 * time.Millisecond)
	waiterDone := make(chan CacheEntry, 1)
	go func() { waiterDone <- c.Get(context.Background(), "kid-1") }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.Equal(t, EntryUnavailable, (<-firstDone).State)
	e := <-waiterDone
	assert.Equal(t, EntryMaterial, e.State)
	assert.Equal(t, km.PublicMaterial(), e.Material)
	assert.Equal(t, 1, f.count("kid-1"))

	// el resultado quedó cacheado aunque el primer caller se fue
	assert.Equal(t, EntryMaterial, c.Get(context.Background(), "kid-1").State)
	assert.Equal(t, 1, f.count("kid-1"))
}

func TestJWKCache_SharedFetchIsBoundedByLookupTimeout(t *testing.T) {
	f := newFakeFetcher().withMaterial("kid-slow", []byte(`{}`))
	f.delay = time.Second
	c := NewJWKCache(f, nil, WithLookupTimeout(20*time.Millisecond))

	start := time.Now()
	assert.Equal(t, EntryUnavailable, c.Get(context.Background(), "kid-slow").State)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestJWKCache_LookupFailedExpiresAfterTTL(t *testing.T) {
	f := newFakeFetcher().withFailure("kid-404", 404, keyregistry.FailureNotFound)
	c := NewJWKCache(f, nil, WithFailurePolicy(50*time.Millisecond, 0))

	assert.Equal(t, EntryLookupFailed, c.Get(context.Background(), "kid-404").State)
	assert.Equal(t, EntryLookupFailed, c.Get(context.Background(), "kid-404").State)
	assert.Equal(t, 1, f.count("kid-404"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, EntryLookupFailed, c.Get(context.Background(), "kid-404").State)
	assert.Equal(t, 2, f.count("kid-404"))
}

func TestJWKCache_LookupFailedIsBounded(t *testing.T) {
	f := newFakeFetcher()
	c := NewJWKCache(f, nil, WithFailurePolicy(time.Hour, 2))

	for _, kid := range []string{"r-1", "r-2", "r-3"} {
		assert.Equal(t, EntryLookupFailed, c.Get(context.Background(), kid).State)
	}
	assert.Equal(t, 2, c.Len())

	// sin cupo, r-3 no se cacheó y vuelve al registry
	c.Get(context.Background(), "r-3")
	assert.Equal(t, 2, f.count("r-3"))
	c.Get(context.Background(), "r-1")
	assert.Equal(t, 1, f.count("r-1"))
}

func TestJWKCache_MarkExpiredOverridesLookupFailed(t *testing.T) {
	f := newFakeFetcher().withFailure("kid-404", 404, keyregistry.FailureNotFound)
	c := NewJWKCache(f, nil)

	assert.Equal(t, EntryLookupFailed, c.Get(context.Background(), "kid-404").State)
	c.MarkExpired("kid-404")
	assert.Equal(t, EntryExpired, c.Get(context.Background(), "kid-404").State)
	assert.Equal(t, 1, c.Len())
}
