package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/proctoken/internal/audit"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// t0 tiene nanos en cero para que los iat truncados sean deterministas.
var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	keyOnce  sync.Once
	keyPool  []*rsa.PrivateKey
	keyPoolE error
)

// testRSAKey reutiliza claves entre tests; generarlas es lo más caro del paquete.
func testRSAKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		for n := 0; n < 3; n++ {
			k, err := rsa.GenerateKey(rand.Reader, DefaultRSABits)
			if err != nil {
				keyPoolE = err
				return
			}
			keyPool = append(keyPool, k)
		}
	})
	require.NoError(t, keyPoolE)
	return keyPool[i]
}

func testKeyModel(t *testing.T, i int, kid, productID string, expiresAt time.Time) *KeyModel {
	t.Helper()
	km, err := NewKeyModel(kid, testRSAKey(t, i), productID, expiresAt.Unix())
	require.NoError(t, err)
	return km
}

func signRaw(t *testing.T, priv *rsa.PrivateKey, header map[string]any, claims jwtv5.MapClaims) string {
	t.Helper()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	for k, v := range header {
		tk.Header[k] = v
	}
	s, err := tk.SignedString(priv)
	require.NoError(t, err)
	return s
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]keyregistry.LookupResult
	calls   map[string]int
	delay   time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: map[string]keyregistry.LookupResult{},
		calls:   map[string]int{},
	}
}

func (f *fakeFetcher) withMaterial(kid string, material []byte) *fakeFetcher {
	f.results[kid] = keyregistry.LookupResult{Material: material, StatusCode: 200}
	return f
}

func (f *fakeFetcher) withFailure(kid string, status int, failure keyregistry.Failure) *fakeFetcher {
	f.results[kid] = keyregistry.LookupResult{StatusCode: status, Failure: failure, Message: failure.String()}
	return f
}

// Fetch respeta ctx como lo haría el cliente HTTP real.
func (f *fakeFetcher) Fetch(ctx context.Context, kid string) keyregistry.LookupResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return keyregistry.LookupResult{Failure: keyregistry.FailureUnavailable, Message: ctx.Err().Error()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kid]++
	if r, ok := f.results[kid]; ok {
		return r
	}
	return keyregistry.LookupResult{StatusCode: 404, Failure: keyregistry.FailureNotFound}
}

func (f *fakeFetcher) count(kid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kid]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev audit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audit.Event(nil), p.events...)
}
