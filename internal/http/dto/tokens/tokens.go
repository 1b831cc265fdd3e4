// Package tokens contiene los DTOs de emisión y validación de tokens.
package tokens

import "time"

// IssueRequest es el body de POST /v1/tokens.
type IssueRequest struct {
	ProcessID       string         `json:"processId"`
	Claims          map[string]any `json:"claims,omitempty"`
	ValiditySeconds int            `json:"validitySeconds,omitempty"`
}

type IssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	KeyID     string    `json:"kid"`
}

// ValidateRequest es el body de POST /v1/tokens/validate.
type ValidateRequest struct {
	Token             string `json:"token"`
	ValidateProductID bool   `json:"validateProductId,omitempty"`
}

type ValidateResponse struct {
	Valid       bool           `json:"valid"`
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
	Description string         `json:"description,omitempty"`
	KeyID       string         `json:"kid,omitempty"`
	Claims      map[string]any `json:"claims,omitempty"`
}

// ActiveKeyResponse describe la clave de firma activa. Nunca lleva material privado.
type ActiveKeyResponse struct {
	KeyID             string `json:"kid,omitempty"`
	ProductID         string `json:"productId,omitempty"`
	ExpiresAt         int64  `json:"expiresAt,omitempty"`
	LastPublishStatus int    `json:"lastPublishStatus"`
	Rotating          bool   `json:"rotating"`
}
