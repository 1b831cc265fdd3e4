// Package tokens contiene el service de emisión y validación de tokens.
package tokens

import (
	"context"
	"errors"
	"strings"

	dto "github.com/dropDatabas3/proctoken/internal/http/dto/tokens"
	httperrors "github.com/dropDatabas3/proctoken/internal/http/errors"
	"github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/dropDatabas3/proctoken/internal/keys"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
)

// TokenService define las operaciones expuestas por HTTP.
type TokenService interface {
	Issue(ctx context.Context, req dto.IssueRequest) (dto.IssueResponse, error)
	Validate(ctx context.Context, req dto.ValidateRequest) dto.ValidateResponse
	ActiveKey(ctx context.Context) dto.ActiveKeyResponse
}

// RotationStatus expone el snapshot del manager de claves.
type RotationStatus interface {
	State() keys.RotationState
	Rotating() bool
}

// Deps del service.
type Deps struct {
	Issuer    *jwt.Issuer
	Validator *jwt.Validator
	Rotation  RotationStatus
}

type tokenService struct {
	deps Deps
}

func NewTokenService(deps Deps) TokenService {
	return &tokenService{deps: deps}
}

func (s *tokenService) Issue(ctx context.Context, req dto.IssueRequest) (dto.IssueResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("TokenService.Issue"))

	pid := strings.TrimSpace(req.ProcessID)
	if pid == "" {
		return dto.IssueResponse{}, httperrors.ErrMissingFields.WithDetail("processId is required")
	}

	out, err := s.deps.Issuer.Issue(pid, req.Claims, req.ValiditySeconds)
	if err != nil {
		if errors.Is(err, jwt.ErrNoActiveKey) || errors.Is(err, jwt.ErrActiveKeyExpired) {
			log.Error("cannot issue token", logger.ProcessID(pid), logger.Err(err))
			return dto.IssueResponse{}, httperrors.ErrSigningUnavailable.WithCause(err)
		}
		return dto.IssueResponse{}, err
	}
	metrics.TokensIssued.Inc()
	log.Debug("token issued", logger.ProcessID(pid), logger.KeyID(out.KeyID))
	return dto.IssueResponse{Token: out.Token, ExpiresAt: out.ExpiresAt, KeyID: out.KeyID}, nil
}

func (s *tokenService) Validate(ctx context.Context, req dto.ValidateRequest) dto.ValidateResponse {
	res := s.deps.Validator.Validate(ctx, req.Token, req.ValidateProductID)
	if res.Valid {
		return dto.ValidateResponse{Valid: true, KeyID: res.KeyID, Claims: res.Claims}
	}
	return dto.ValidateResponse{
		Code:        res.Reason.Code,
		Message:     res.Reason.Message,
		Description: res.Reason.Description,
		KeyID:       res.KeyID,
	}
}

func (s *tokenService) ActiveKey(_ context.Context) dto.ActiveKeyResponse {
	out := dto.ActiveKeyResponse{}
	if s.deps.Rotation != nil {
		st := s.deps.Rotation.State()
		out.LastPublishStatus = st.Status
		out.Rotating = s.deps.Rotation.Rotating()
	}
	if km := s.deps.Issuer.Active(); km != nil {
		out.KeyID = km.KeyID()
		out.ProductID = km.ProductID()
		out.ExpiresAt = km.ExpiresAt()
	}
	return out
}
