package jwt

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Campos extra que viajan junto al JWK estándar hacia el registry.
const (
	MaterialExpiryField    = "exp"
	MaterialProductIDField = "productId"
)

var (
	ErrMaterialNotRSA = errors.New("public_material_not_rsa")
	ErrMaterialEmpty  = errors.New("public_material_empty")
)

// PublicMaterial es la vista parseada de un JWK publicado por algún nodo.
type PublicMaterial struct {
	KeyID     string
	Key       *rsa.PublicKey
	ProductID string
	// ExpiresAt en epoch seconds; 0 si el material no trae "exp".
	ExpiresAt int64
}

// BuildPublicMaterial serializa la pública como JWK (kty/n/e/kid/alg/use)
// aumentado con exp y productId.
func BuildPublicMaterial(kid string, pub *rsa.PublicKey, productID string, expiresAt int64) ([]byte, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("jwk from rsa public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	if err := key.Set(MaterialExpiryField, expiresAt); err != nil {
		return nil, err
	}
	if err := key.Set(MaterialProductIDField, productID); err != nil {
		return nil, err
	}
	b, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal jwk: %w", err)
	}
	return b, nil
}

// ParsePublicMaterial parsea el JSON devuelto por el registry.
func ParsePublicMaterial(raw []byte) (*PublicMaterial, error) {
	if len(raw) == 0 {
		return nil, ErrMaterialEmpty
	}
	key, err := jwk.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}

	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("jwk raw: %w", err)
	}
	var pub *rsa.PublicKey
	switch k := rawKey.(type) {
	case *rsa.PublicKey:
		pub = k
	case rsa.PublicKey:
		pub = &k
	default:
		return nil, ErrMaterialNotRSA
	}

	out := &PublicMaterial{KeyID: key.KeyID(), Key: pub}
	if v, ok := key.Get(MaterialProductIDField); ok {
		if s, ok := v.(string); ok {
			out.ProductID = s
		}
	}
	if v, ok := key.Get(MaterialExpiryField); ok {
		exp, err := numericField(v)
		if err != nil {
			return nil, fmt.Errorf("material exp: %w", err)
		}
		out.ExpiresAt = exp
	}
	return out, nil
}

// numericField normaliza los distintos tipos numéricos que puede devolver el decoder.
func numericField(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
