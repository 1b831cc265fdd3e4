package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// MinKeyLifetimeDays / MaxKeyLifetimeDays acotan la vida de cada par de claves.
	MinKeyLifetimeDays = 3
	MaxKeyLifetimeDays = 7

	// DefaultRSABits tamaño del módulo RSA generado en cada rotación.
	DefaultRSABits = 2048

	// SigningAlg es el único algoritmo que emitimos y aceptamos.
	SigningAlg = "RS256"
)

var (
	ErrNilPrivateKey = errors.New("nil_private_key")
	ErrEmptyKeyID    = errors.New("empty_key_id")
)

// KeyModel es un snapshot inmutable de una generación de par de claves RSA.
// Nunca se muta: la siguiente rotación crea otro KeyModel y el Issuer hace swap del puntero.
type KeyModel struct {
	kid       string
	priv      *rsa.PrivateKey
	material  []byte
	productID string
	expiresAt int64
}

// ClampLifetimeDays devuelve max(3, min(7, days)).
func ClampLifetimeDays(days int) int {
	if days < MinKeyLifetimeDays {
		return MinKeyLifetimeDays
	}
	if days > MaxKeyLifetimeDays {
		return MaxKeyLifetimeDays
	}
	return days
}

// GenerateKeyModel genera un par RSA nuevo con un kid aleatorio (UUID v4).
// La expiración es now + lifetimeDays (ya acotado a [3,7]).
func GenerateKeyModel(productID string, lifetimeDays int, now time.Time) (*KeyModel, error) {
	priv, err := rsa.GenerateKey(rand.Reader, DefaultRSABits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	days := ClampLifetimeDays(lifetimeDays)
	exp := now.Add(time.Duration(days) * 24 * time.Hour).Unix()
	return NewKeyModel(uuid.NewString(), priv, productID, exp)
}

// NewKeyModel arma un KeyModel a partir de una clave existente.
// Construye el material público (JWK + exp + productId) una sola vez.
func NewKeyModel(kid string, priv *rsa.PrivateKey, productID string, expiresAt int64) (*KeyModel, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	if kid == "" {
		return nil, ErrEmptyKeyID
	}
	material, err := BuildPublicMaterial(kid, &priv.PublicKey, productID, expiresAt)
	if err != nil {
		return nil, err
	}
	return &KeyModel{
		kid:       kid,
		priv:      priv,
		material:  material,
		productID: productID,
		expiresAt: expiresAt,
	}, nil
}

// KeyID devuelve el kid.
func (k *KeyModel) KeyID() string { return k.kid }

// PrivateKey devuelve la clave privada. Solo la usan el Issuer y el manager de rotación.
func (k *KeyModel) PrivateKey() *rsa.PrivateKey { return k.priv }

// PublicKey devuelve la parte pública.
func (k *KeyModel) PublicKey() *rsa.PublicKey { return &k.priv.PublicKey }

// PublicMaterial devuelve una copia del JWK publicable.
func (k *KeyModel) PublicMaterial() []byte {
	out := make([]byte, len(k.material))
	copy(out, k.material)
	return out
}

// ProductID devuelve el product id embebido en el material público.
func (k *KeyModel) ProductID() string { return k.productID }

// ExpiresAt devuelve la expiración en epoch seconds.
func (k *KeyModel) ExpiresAt() int64 { return k.expiresAt }

// Expired indica si la clave ya no debe usarse para firmar.
func (k *KeyModel) Expired(now time.Time) bool {
	return !now.Before(time.Unix(k.expiresAt, 0))
}
