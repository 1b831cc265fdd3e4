package jwt

// Reason es el motivo (cerrado) por el cual un token fue rechazado.
// Code es estable y machine-readable; Message y Description van al audit.
type Reason struct {
	Code        string
	Message     string
	Description string
}

func (r *Reason) Error() string { return r.Code + ": " + r.Message }

// Catálogo de rechazos. Se comparan por identidad (errors.Is / ==).
var (
	ReasonNullToken = &Reason{
		Code:        "JWT_NULL_TOKEN",
		Message:     "Token is null",
		Description: "No token was supplied for validation",
	}
	ReasonMalformedToken = &Reason{
		Code:        "JWT_MALFORMED_TOKEN",
		Message:     "Token is malformed",
		Description: "The token payload could not be parsed as a claims set",
	}
	ReasonInvalidClaims = &Reason{
		Code:        "JWS_INVALID_CLAIMS",
		Message:     "Token claims are invalid",
		Description: "The iat claim must be in the past and the exp claim must be in the future",
	}
	ReasonInvalidKey = &Reason{
		Code:        "JWT_INVALID_KEY",
		Message:     "Token key id is invalid",
		Description: "The token header does not carry a usable kid",
	}
	ReasonMissingCertificate = &Reason{
		Code:        "JWT_MISSING_CERTIFICATE",
		Message:     "Public key not found",
		Description: "The public key for the token kid could not be retrieved from the key registry",
	}
	ReasonPublicKeyExpired = &Reason{
		Code:        "JWT_PUBLIC_KEY_EXPIRED",
		Message:     "Public key expired",
		Description: "The public key referenced by the token kid has expired",
	}
	ReasonProductIDMismatch = &Reason{
		Code:        "JWT_PRODUCTID_MISMATCH",
		Message:     "Product id mismatch",
		Description: "The product id bound to the signing key does not match the expected product id",
	}
	ReasonInvalidSignature = &Reason{
		Code:        "JWT_INVALID_SIGNATURE",
		Message:     "Token signature is invalid",
		Description: "The token signature could not be verified with the resolved public key",
	}
)

// Reasons lista el catálogo completo (útil para métricas y tests).
func Reasons() []*Reason {
	return []*Reason{
		ReasonNullToken,
		ReasonMalformedToken,
		ReasonInvalidClaims,
		ReasonInvalidKey,
		ReasonMissingCertificate,
		ReasonPublicKeyExpired,
		ReasonProductIDMismatch,
		ReasonInvalidSignature,
	}
}
