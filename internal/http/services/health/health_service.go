// Package health contiene el service para health checks.
package health

import (
	"context"
	"fmt"
	"time"

	dto "github.com/dropDatabas3/proctoken/internal/http/dto/health"
	"github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Readiness abstrae el manager de claves.
type Readiness interface {
	IsReady() bool
	Rotating() bool
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	Readiness  Readiness
	Issuer     *jwt.Issuer
	CacheCheck func(ctx context.Context) error // nil = sin tier compartido
	AuditCheck func(ctx context.Context) error // nil = sin sink durable
	Version    string
}

type healthService struct {
	deps Deps
}

func NewHealthService(deps Deps) HealthService {
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("HealthService.Check"))

	resp := dto.HealthResponse{
		Version:    s.deps.Version,
		Components: make(map[string]dto.HealthStatus),
		Timestamp:  time.Now().UTC(),
	}

	critical := false
	degraded := false

	// 1) readiness del ciclo de claves (crítico)
	if s.deps.Readiness != nil && !s.deps.Readiness.IsReady() {
		resp.Components["key_lifecycle"] = dto.HealthStatus{Status: "error", Message: "startup health gate failed"}
		critical = true
	} else {
		resp.Components["key_lifecycle"] = dto.HealthStatus{Status: "ok"}
	}

	// 2) clave de firma activa (degradado: la validación sigue funcionando)
	if s.deps.Issuer != nil {
		km := s.deps.Issuer.Active()
		switch {
		case km == nil && s.deps.Readiness != nil && !s.deps.Readiness.Rotating():
			resp.Components["signing_key"] = dto.HealthStatus{Status: "disabled", Message: "rotation disabled"}
		case km == nil:
			resp.Components["signing_key"] = dto.HealthStatus{Status: "error", Message: "no active signing key"}
			degraded = true
		case km.Expired(time.Now()):
			resp.Components["signing_key"] = dto.HealthStatus{Status: "error", Message: "active signing key expired"}
			degraded = true
		default:
			resp.ActiveKeyID = km.KeyID()
			resp.Components["signing_key"] = dto.HealthStatus{Status: "ok"}
		}
	}

	degraded = s.probe(ctx, resp.Components, "jwk_shared_cache", s.deps.CacheCheck) || degraded
	degraded = s.probe(ctx, resp.Components, "audit_store", s.deps.AuditCheck) || degraded

	switch {
	case critical:
		resp.Status = "unavailable"
	case degraded:
		resp.Status = "degraded"
	default:
		resp.Status = "ready"
	}
	if resp.Status != "ready" {
		log.Warn("health check not ready", logger.String("status", resp.Status))
	}
	return resp
}

// probe corre un check opcional y devuelve true si falló.
func (s *healthService) probe(ctx context.Context, out map[string]dto.HealthStatus, name string, check func(context.Context) error) bool {
	if check == nil {
		out[name] = dto.HealthStatus{Status: "disabled"}
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := check(cctx); err != nil {
		out[name] = dto.HealthStatus{Status: "error", Message: fmt.Sprintf("unavailable: %v", err)}
		return true
	}
	out[name] = dto.HealthStatus{Status: "ok"}
	return false
}
