// Package keys expone el estado de la clave de firma activa.
package keys

import (
	"net/http"

	"github.com/dropDatabas3/proctoken/internal/http/helpers"
	svc "github.com/dropDatabas3/proctoken/internal/http/services/tokens"
)

// KeysController maneja GET /v1/keys/active.
type KeysController struct {
	service svc.TokenService
}

func NewKeysController(service svc.TokenService) *KeysController {
	return &KeysController{service: service}
}

// Active responde el kid, product id y expiración. 404 si no hay clave activa.
func (c *KeysController) Active(w http.ResponseWriter, r *http.Request) {
	resp := c.service.ActiveKey(r.Context())
	status := http.StatusOK
	if resp.KeyID == "" {
		status = http.StatusNotFound
	}
	helpers.WriteJSON(w, status, resp)
}
