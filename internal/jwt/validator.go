package jwt

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/proctoken/internal/audit"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
)

const validMessage = "Token is valid"

// KeyResolver resuelve material público por kid. JWKCache lo implementa.
type KeyResolver interface {
	Get(ctx context.Context, kid string) CacheEntry
	MarkExpired(kid string)
}

// ValidatorConfig configura el Validator.
type ValidatorConfig struct {
	// ServiceProductIDValidation habilita el binding de product id a nivel servicio.
	// Solo se aplica si además el caller lo pide.
	ServiceProductIDValidation bool
	ExpectedProductID          string
}

// Result es el resultado de Validate. Reason es nil si el token es válido.
type Result struct {
	Valid        bool
	Reason       *Reason
	Claims       map[string]any
	KeyID        string
	KeyProductID string
}

// Validator decide Valid/Invalid y reporta exactamente un evento de audit por llamada.
type Validator struct {
	keys      KeyResolver
	publisher audit.Publisher
	cfg       ValidatorConfig
	now       func() time.Time
}

func NewValidator(keys KeyResolver, publisher audit.Publisher, cfg ValidatorConfig) *Validator {
	if publisher == nil {
		publisher = audit.Nop{}
	}
	return &Validator{keys: keys, publisher: publisher, cfg: cfg, now: time.Now}
}

// Validate corre los chequeos en orden y corta en el primer rechazo.
func (v *Validator) Validate(ctx context.Context, token string, requestProductIDValidation bool) Result {
	res, keyProductID := v.validate(ctx, token, requestProductIDValidation)
	v.report(ctx, res, keyProductID, requestProductIDValidation)
	return res
}

// validate devuelve además el product id observado (nil si nunca se resolvió material).
func (v *Validator) validate(ctx context.Context, token string, requestProductIDValidation bool) (Result, *string) {
	if strings.TrimSpace(token) == "" {
		return reject(ReasonNullToken, ""), nil
	}

	tok, claims, err := parseUnverified(token)
	if err != nil {
		return reject(ReasonMalformedToken, ""), nil
	}

	now := v.now()
	if err := checkTimeClaims(claims, now); err != nil {
		return reject(ReasonInvalidClaims, ""), nil
	}

	kid, ok := headerKID(tok)
	if !ok {
		return reject(ReasonInvalidKey, ""), nil
	}

	entry := v.keys.Get(ctx, kid)
	switch entry.State {
	case EntryExpired:
		return reject(ReasonPublicKeyExpired, kid), nil
	case EntryMaterial:
	default:
		return reject(ReasonMissingCertificate, kid), nil
	}

	pm, err := ParsePublicMaterial(entry.Material)
	if err != nil {
		logger.From(ctx).Warn("unusable public key material", logger.KeyID(kid), logger.Err(err))
		return reject(ReasonMissingCertificate, kid), nil
	}
	// material sin exp o publicado bajo otro kid no es confiable
	if pm.ExpiresAt <= 0 || (pm.KeyID != "" && pm.KeyID != kid) {
		logger.From(ctx).Warn("public key material rejected", logger.KeyID(kid),
			logger.String("material_kid", pm.KeyID), logger.ExpiresAt(pm.ExpiresAt))
		return reject(ReasonMissingCertificate, kid), nil
	}
	keyProductID := pm.ProductID

	if v.cfg.ServiceProductIDValidation && requestProductIDValidation && pm.ProductID != v.cfg.ExpectedProductID {
		r := reject(ReasonProductIDMismatch, kid)
		r.KeyProductID = keyProductID
		return r, &keyProductID
	}

	if !now.Before(time.Unix(pm.ExpiresAt, 0)) {
		v.keys.MarkExpired(kid)
		r := reject(ReasonPublicKeyExpired, kid)
		r.KeyProductID = keyProductID
		return r, &keyProductID
	}

	if err := verifySignature(token, pm.Key); err != nil {
		r := reject(ReasonInvalidSignature, kid)
		r.KeyProductID = keyProductID
		return r, &keyProductID
	}

	return Result{
		Valid:        true,
		Claims:       claims,
		KeyID:        kid,
		KeyProductID: keyProductID,
	}, &keyProductID
}

func reject(r *Reason, kid string) Result {
	return Result{Reason: r, KeyID: kid}
}

func (v *Validator) report(ctx context.Context, res Result, keyProductID *string, requested bool) {
	ev := audit.Event{
		OccurredAt:                   v.now().UTC(),
		KeyID:                        res.KeyID,
		Message:                      validMessage,
		ServiceProductIDValidation:   v.cfg.ServiceProductIDValidation,
		RequestedProductIDValidation: requested,
		KeyProductID:                 keyProductID,
		ExpectedProductID:            v.cfg.ExpectedProductID,
	}
	code := "VALID"
	if res.Reason != nil {
		code = res.Reason.Code
		ev.Message = res.Reason.Message
		ev.ReasonCode = &code
	}
	metrics.RecordValidation(code)
	v.publisher.Publish(ctx, ev)
}
