package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/stretchr/testify/assert"
)

type fakeReadiness struct{ ready, rotating bool }

func (f fakeReadiness) IsReady() bool  { return f.ready }
func (f fakeReadiness) Rotating() bool { return f.rotating }

func TestCheck_NotReadyIsUnavailable(t *testing.T) {
	s := NewHealthService(Deps{Readiness: fakeReadiness{ready: false}, Issuer: jwt.NewIssuer()})

	resp := s.Check(context.Background())
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "error", resp.Components["key_lifecycle"].Status)
}

func TestCheck_RotationDisabledIsReady(t *testing.T) {
	s := NewHealthService(Deps{Readiness: fakeReadiness{ready: true, rotating: false}, Issuer: jwt.NewIssuer()})

	resp := s.Check(context.Background())
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "disabled", resp.Components["signing_key"].Status)
	assert.Empty(t, resp.ActiveKeyID)
}

func TestCheck_MissingKeyWhileRotatingIsDegraded(t *testing.T) {
	s := NewHealthService(Deps{Readiness: fakeReadiness{ready: true, rotating: true}, Issuer: jwt.NewIssuer()})

	resp := s.Check(context.Background())
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "error", resp.Components["signing_key"].Status)
}

func TestCheck_FailingProbesDegrade(t *testing.T) {
	km, err := jwt.GenerateKeyModel("product-a", 7, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	issuer := jwt.NewIssuer()
	issuer.SetActive(km)

	s := NewHealthService(Deps{
		Readiness:  fakeReadiness{ready: true, rotating: true},
		Issuer:     issuer,
		CacheCheck: func(context.Context) error { return errors.New("connection refused") },
		AuditCheck: func(context.Context) error { return nil },
		Version:    "1.2.3",
	})

	resp := s.Check(context.Background())
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, km.KeyID(), resp.ActiveKeyID)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Contains(t, resp.Components["jwk_shared_cache"].Message, "connection refused")
	assert.Equal(t, "ok", resp.Components["audit_store"].Status)
}
