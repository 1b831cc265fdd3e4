// Package tokens contiene los controllers de emisión y validación de tokens.
package tokens

import (
	"net/http"

	dto "github.com/dropDatabas3/proctoken/internal/http/dto/tokens"
	httperrors "github.com/dropDatabas3/proctoken/internal/http/errors"
	"github.com/dropDatabas3/proctoken/internal/http/helpers"
	svc "github.com/dropDatabas3/proctoken/internal/http/services/tokens"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
)

// TokensController maneja POST /v1/tokens y POST /v1/tokens/validate.
type TokensController struct {
	service svc.TokenService
}

func NewTokensController(service svc.TokenService) *TokensController {
	return &TokensController{service: service}
}

// Issue maneja POST /v1/tokens
func (c *TokensController) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("TokensController.Issue"))

	var req dto.IssueRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp, err := c.service.Issue(ctx, req)
	if err != nil {
		log.Debug("issue failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, resp)
}

// Validate maneja POST /v1/tokens/validate. Un token inválido responde 401 con el motivo.
func (c *TokensController) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	resp := c.service.Validate(r.Context(), req)
	status := http.StatusOK
	if !resp.Valid {
		status = http.StatusUnauthorized
	}
	helpers.WriteJSON(w, status, resp)
}
