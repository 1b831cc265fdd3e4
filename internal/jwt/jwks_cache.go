package jwt

import (
	"context"
	"time"

	"github.com/dropDatabas3/proctoken/internal/cache"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	cmap "github.com/orcaman/concurrent-map/v2"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EntryState es el estado de una entrada del JWKCache.
type EntryState int

const (
	// EntryMaterial: JSON público disponible.
	EntryMaterial EntryState = iota
	// EntryLookupFailed: el registry respondió 4xx. Queda cacheado con TTL y cupo acotados.
	EntryLookupFailed
	// EntryExpired: la clave expiró. Terminal, nunca se vuelve a pedir.
	EntryExpired
	// EntryUnavailable: 5xx o falla de transporte. No se cachea.
	EntryUnavailable
)

func (s EntryState) String() string {
	switch s {
	case EntryMaterial:
		return "material"
	case EntryLookupFailed:
		return "lookup_failed"
	case EntryExpired:
		return "expired"
	case EntryUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// CacheEntry es lo que devuelve JWKCache.Get.
type CacheEntry struct {
	State      EntryState
	Material   []byte
	StatusCode int
	Message    string
}

// Fetcher es el lado lectura del key registry.
type Fetcher interface {
	Fetch(ctx context.Context, kid string) keyregistry.LookupResult
}

const (
	sharedKeyPrefix = "jwk:"

	DefaultLookupTimeout    = 30 * time.Second
	DefaultFailureTTL       = 15 * time.Minute
	DefaultMaxFailedLookups = 10000
)

// JWKCacheOption ajusta un JWKCache.
type JWKCacheOption func(*JWKCache)

// WithLookupTimeout acota el fetch compartido, que corre desacoplado del ctx de cada caller.
func WithLookupTimeout(d time.Duration) JWKCacheOption {
	return func(c *JWKCache) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// WithFailurePolicy define cuánto vive un LookupFailed y cuántos kids fallidos se retienen.
func WithFailurePolicy(ttl time.Duration, max int) JWKCacheOption {
	return func(c *JWKCache) {
		if ttl > 0 {
			c.failureTTL = ttl
		}
		if max > 0 {
			c.maxFailures = max
		}
	}
}

// JWKCache mapea kid -> material público.
// L1 es local al nodo: material y sentinel expired en entries, LookupFailed en failures (TTL + cupo).
// L2 opcional es compartido y solo guarda material.
type JWKCache struct {
	entries  cmap.ConcurrentMap[string, CacheEntry]
	failures *gocache.Cache
	fetcher  Fetcher
	shared   cache.Client
	group    singleflight.Group
	now      func() time.Time
	log      *zap.Logger

	lookupTimeout time.Duration
	failureTTL    time.Duration
	maxFailures   int
}

// NewJWKCache crea el cache. shared puede ser nil.
func NewJWKCache(fetcher Fetcher, shared cache.Client, opts ...JWKCacheOption) *JWKCache {
	c := &JWKCache{
		entries:       cmap.New[CacheEntry](),
		fetcher:       fetcher,
		shared:        shared,
		now:           time.Now,
		log:           logger.Named("jwkcache"),
		lookupTimeout: DefaultLookupTimeout,
		failureTTL:    DefaultFailureTTL,
		maxFailures:   DefaultMaxFailedLookups,
	}
	for _, o := range opts {
		o(c)
	}
	c.failures = gocache.New(c.failureTTL, c.failureTTL)
	return c
}

// Get resuelve kid. Una entrada presente (sentinels incluidos) se devuelve sin tocar el registry.
// Los misses concurrentes comparten un único fetch; cada caller espera solo mientras su ctx siga vivo.
func (c *JWKCache) Get(ctx context.Context, kid string) CacheEntry {
	if e, ok := c.lookup(kid); ok {
		metrics.RecordCacheLookup("hit")
		return e
	}

	// el fetch no hereda la cancelación del primer caller: los demás siguen esperándolo
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(kid, func() (any, error) {
		fctx, cancel := context.WithTimeout(detached, c.lookupTimeout)
		defer cancel()

		// otro caller pudo haber resuelto mientras esperábamos
		if e, ok := c.lookup(kid); ok {
			return e, nil
		}
		if raw, ok := c.sharedGet(fctx, kid); ok {
			metrics.RecordCacheLookup("shared_hit")
			return c.remember(kid, CacheEntry{State: EntryMaterial, Material: raw}), nil
		}
		return c.fetch(fctx, kid), nil
	})

	select {
	case r := <-ch:
		return r.Val.(CacheEntry)
	case <-ctx.Done():
		metrics.RecordCacheLookup("abandoned")
		return CacheEntry{State: EntryUnavailable, Message: "lookup abandoned: " + ctx.Err().Error()}
	}
}

func (c *JWKCache) lookup(kid string) (CacheEntry, bool) {
	if e, ok := c.entries.Get(kid); ok {
		return e, true
	}
	if v, ok := c.failures.Get(kid); ok {
		return v.(CacheEntry), true
	}
	return CacheEntry{}, false
}

func (c *JWKCache) fetch(ctx context.Context, kid string) CacheEntry {
	res := c.fetcher.Fetch(ctx, kid)
	switch {
	case res.OK():
		metrics.RecordCacheLookup("fetched")
		e := c.remember(kid, CacheEntry{State: EntryMaterial, Material: res.Material, StatusCode: res.StatusCode})
		if e.State == EntryMaterial {
			c.sharedSet(ctx, kid, res.Material)
		}
		return e
	case res.Definitive():
		metrics.RecordCacheLookup("lookup_failed")
		c.log.Info("public key lookup failed", logger.KeyID(kid), logger.Status(res.StatusCode), logger.String("failure", res.Failure.String()))
		return c.rememberFailure(kid, CacheEntry{State: EntryLookupFailed, StatusCode: res.StatusCode, Message: res.Message})
	default:
		metrics.RecordCacheLookup("unavailable")
		c.log.Warn("public key lookup unavailable", logger.KeyID(kid), logger.Status(res.StatusCode), logger.String("failure", res.Failure.String()))
		return CacheEntry{State: EntryUnavailable, StatusCode: res.StatusCode, Message: res.Message}
	}
}

// remember guarda e solo si kid no tiene entrada y devuelve la que quedó vigente.
func (c *JWKCache) remember(kid string, e CacheEntry) CacheEntry {
	if c.entries.SetIfAbsent(kid, e) {
		return e
	}
	cur, ok := c.entries.Get(kid)
	if !ok {
		return e
	}
	return cur
}

// rememberFailure cachea un 4xx con TTL. Con el cupo lleno el resultado se devuelve sin cachear.
func (c *JWKCache) rememberFailure(kid string, e CacheEntry) CacheEntry {
	if c.failures.ItemCount() >= c.maxFailures {
		c.log.Warn("failed lookup cache full, not caching", logger.KeyID(kid), logger.Int("max", c.maxFailures))
		return e
	}
	if err := c.failures.Add(kid, e, gocache.DefaultExpiration); err != nil {
		if cur, ok := c.failures.Get(kid); ok {
			return cur.(CacheEntry)
		}
	}
	return e
}

// MarkExpired pisa la entrada de kid con el sentinel expired.
func (c *JWKCache) MarkExpired(kid string) {
	c.entries.Set(kid, CacheEntry{State: EntryExpired, Message: "public key expired"})
	c.failures.Delete(kid)
	if c.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := c.shared.Delete(ctx, sharedKeyPrefix+kid); err != nil {
			c.log.Debug("shared jwk delete failed", logger.KeyID(kid), logger.Err(err))
		}
	}
}

// Store inserta material directamente (publish en modo desarrollo).
func (c *JWKCache) Store(kid string, material []byte) {
	c.entries.Set(kid, CacheEntry{State: EntryMaterial, Material: material})
	c.failures.Delete(kid)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.sharedSet(ctx, kid, material)
}

// Len devuelve la cantidad de kids en L1, fallidos incluidos.
func (c *JWKCache) Len() int {
	return c.entries.Count() + c.failures.ItemCount()
}

func (c *JWKCache) sharedGet(ctx context.Context, kid string) ([]byte, bool) {
	if c.shared == nil {
		return nil, false
	}
	v, err := c.shared.Get(ctx, sharedKeyPrefix+kid)
	if err != nil {
		if !cache.IsNotFound(err) {
			c.log.Debug("shared jwk get failed", logger.KeyID(kid), logger.Err(err))
		}
		return nil, false
	}
	return []byte(v), v != ""
}

// sharedSet publica el material en L2 con TTL hasta el exp embebido. Sin exp no se comparte.
func (c *JWKCache) sharedSet(ctx context.Context, kid string, material []byte) {
	if c.shared == nil {
		return
	}
	pm, err := ParsePublicMaterial(material)
	if err != nil || pm.ExpiresAt <= 0 {
		return
	}
	ttl := time.Unix(pm.ExpiresAt, 0).Sub(c.now())
	if ttl <= 0 {
		return
	}
	if err := c.shared.Set(ctx, sharedKeyPrefix+kid, string(material), ttl); err != nil {
		c.log.Debug("shared jwk set failed", logger.KeyID(kid), logger.Err(err))
	}
}
